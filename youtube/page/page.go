// Package page fetches the mobile watch page with a fixed browser header bundle.
package page

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ytget/ytstream/client"
	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
)

// DefaultBaseURL is the mobile site root.
const DefaultBaseURL = "https://m.youtube.com"

const (
	headerUserAgent      = "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Mobile Safari/537.36"
	headerAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	headerAcceptEncoding = "gzip, deflate, br, zstd"
	headerAcceptLanguage = "en-GB,en-US;q=0.9,en;q=0.8,hi;q=0.7"
	headerReferer        = "https://m.youtube.com/"
)

// Headers is the browser header bundle sent with every page request, minus Cookie.
func Headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", headerUserAgent)
	h.Set("Accept", headerAccept)
	h.Set("Accept-Encoding", headerAcceptEncoding)
	h.Set("Accept-Language", headerAcceptLanguage)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Priority", "u=0, i")
	h.Set("Referer", headerReferer)
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Ch-Ua", `"Not)A;Brand";v="8", "Chromium";v="138", "Google Chrome";v="138"`)
	h.Set("Sec-Ch-Ua-Mobile", "?1")
	h.Set("Sec-Ch-Ua-Platform", `"Android"`)
	h.Set("Sec-Ch-Ua-Arch", `""`)
	h.Set("Sec-Ch-Ua-Bitness", `""`)
	h.Set("Sec-Ch-Ua-Full-Version", `"138.0.7204.184"`)
	h.Set("Sec-Ch-Ua-Full-Version-List", `"Not)A;Brand";v="8.0.0.0", "Chromium";v="138.0.7204.184", "Google Chrome";v="138.0.7204.184"`)
	h.Set("Sec-Ch-Ua-Model", `"Nexus 5"`)
	h.Set("Sec-Ch-Ua-Platform-Version", `"6.0"`)
	h.Set("Sec-Ch-Ua-Wow64", "?0")
	return h
}

// CookieSource provides the Cookie header value.
type CookieSource interface {
	Header() string
}

// Fetcher retrieves watch pages.
type Fetcher struct {
	client  *client.Client
	cookies CookieSource
	baseURL string
}

// NewFetcher creates a fetcher. An empty baseURL means DefaultBaseURL.
func NewFetcher(c *client.Client, cookies CookieSource, baseURL string) *Fetcher {
	if c == nil {
		c = client.New()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{client: c, cookies: cookies, baseURL: strings.TrimRight(baseURL, "/")}
}

// WatchURL returns the watch page URL for videoID. The ID is only query-escaped.
func (f *Fetcher) WatchURL(videoID string) string {
	return f.baseURL + "/watch?v=" + url.QueryEscape(videoID)
}

// Fetch returns the decoded HTML of the watch page.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	log := logger.WithComponent(logger.ComponentFetcher)

	if videoID == "" {
		return "", errs.E(errs.KindValidation, "fetch page", errs.ErrEmptyVideoID)
	}

	target := f.WatchURL(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", errs.E(errs.KindInternal, "build request", err)
	}
	req.Header = Headers()
	if f.cookies != nil {
		if c := f.cookies.Header(); c != "" {
			req.Header.Set("Cookie", c)
		}
	}

	log.Info("fetching watch page", map[string]interface{}{"video_id": videoID, "url": target})
	body, err := f.client.Fetch(ctx, req)
	if err != nil {
		log.Error("watch page fetch failed", map[string]interface{}{"video_id": videoID, "error": err.Error()})
		return "", err
	}
	log.Debug("watch page fetched", map[string]interface{}{"video_id": videoID, "bytes": len(body)})
	return string(body), nil
}
