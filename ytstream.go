// Package ytstream resolves a YouTube video ID into its metadata and a list
// of stream descriptors: it fetches the mobile watch page, extracts the
// embedded player response, hands it to a Decipherer and normalizes the
// outcome.
package ytstream

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/ytget/ytstream/client"
	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/types"
	"github.com/ytget/ytstream/youtube/decipher"
	"github.com/ytget/ytstream/youtube/extract"
	"github.com/ytget/ytstream/youtube/formats"
	"github.com/ytget/ytstream/youtube/page"
)

// Extractor runs the resolve pipeline. Concurrent calls for the same video
// ID share one pipeline run.
type Extractor struct {
	fetcher    *page.Fetcher
	decipherer decipher.Decipherer
	group      singleflight.Group
}

// New creates an Extractor that fetches without cookies and deciphers with
// the external script bridge at its default paths.
func New() *Extractor {
	return &Extractor{
		fetcher:    page.NewFetcher(client.New(), nil, ""),
		decipherer: decipher.NewExternal(decipher.ExternalConfig{}),
	}
}

// WithFetcher sets the watch page fetcher.
func (e *Extractor) WithFetcher(f *page.Fetcher) *Extractor {
	if f != nil {
		e.fetcher = f
	}
	return e
}

// WithDecipherer sets the decipher back end.
func (e *Extractor) WithDecipherer(d decipher.Decipherer) *Extractor {
	if d != nil {
		e.decipherer = d
	}
	return e
}

// Decipherer returns the configured back end.
func (e *Extractor) Decipherer() decipher.Decipherer {
	return e.decipherer
}

// Page holds what is extracted from a watch page before deciphering.
type Page struct {
	PlayerResponse *types.PlayerResponse
	PlayerJSURL    string
}

// FetchPage fetches the watch page of videoID and extracts the player
// response and player script URL.
func (e *Extractor) FetchPage(ctx context.Context, videoID string) (*Page, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, errs.E(errs.KindValidation, "resolve", errs.ErrEmptyVideoID)
	}
	html, err := e.fetcher.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	doc := extract.Parse(html)
	pr, err := doc.PlayerResponse()
	if err != nil {
		return nil, err
	}
	return &Page{PlayerResponse: pr, PlayerJSURL: doc.PlayerJSURL()}, nil
}

// Resolve runs the full pipeline for videoID. A player response without
// videoDetails yields a KindNotFound error wrapping errs.ErrVideoNotFound.
// Decipher failures never fail the call: the raw formats are returned instead.
// Canceling ctx returns early without aborting a run other callers share.
func (e *Extractor) Resolve(ctx context.Context, videoID string) (*types.Result, error) {
	videoID = strings.TrimSpace(videoID)
	// The shared run outlives any single caller; fetch and bridge timeouts
	// still bound it.
	ch := e.group.DoChan(videoID, func() (interface{}, error) {
		return e.resolve(context.WithoutCancel(ctx), videoID)
	})
	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, errs.E(errs.KindUpstream, "resolve "+videoID, ctx.Err())
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	res := r.Val.(*types.Result)
	if r.Shared {
		logger.WithComponent(logger.ComponentApp).Debug("shared in-flight resolve", map[string]interface{}{"video_id": videoID})
		res = cloneResult(res)
	}
	return res, nil
}

func (e *Extractor) resolve(ctx context.Context, videoID string) (*types.Result, error) {
	log := logger.WithComponent(logger.ComponentExtractor)

	p, err := e.FetchPage(ctx, videoID)
	if err != nil {
		return nil, err
	}
	pr := p.PlayerResponse
	if _, ok := pr.VideoDetails(); !ok {
		log.Warn("player response has no videoDetails", map[string]interface{}{"video_id": videoID})
		return nil, errs.E(errs.KindNotFound, "resolve "+videoID, errs.ErrVideoNotFound)
	}
	info := pr.Info()
	log.Info("player response extracted", map[string]interface{}{
		"video_id":      videoID,
		"title":         info.Title,
		"player_js_url": p.PlayerJSURL,
		"formats":       len(pr.Formats()),
	})

	m, derr := e.decipherer.Decipher(ctx, decipher.Request{
		VideoID:        videoID,
		PlayerResponse: pr,
		PlayerJSURL:    p.PlayerJSURL,
	})
	if derr != nil {
		fields := map[string]interface{}{"video_id": videoID, "method": e.decipherer.Name(), "error": derr.Error()}
		if !errors.Is(derr, decipher.ErrUnavailable) {
			log.Error("decipherer failed unexpectedly", fields)
		} else {
			log.Warn("decipher unavailable, returning raw formats", fields)
		}
	}

	streams, deciphered := formats.Normalize(pr, m, derr)
	logger.WithComponent(logger.ComponentNormalizer).Debug("streams normalized", map[string]interface{}{
		"video_id":   videoID,
		"streams":    len(streams),
		"deciphered": deciphered,
	})

	res := &types.Result{
		Success:     true,
		VideoID:     videoID,
		Title:       info.Title,
		Duration:    info.Duration,
		Author:      info.Author,
		ViewCount:   info.ViewCount,
		PlayerJSURL: p.PlayerJSURL,
	}
	if h, ok := e.decipherer.(decipher.HandOff); ok {
		if in, out := h.Files(videoID); in != "" {
			res.FilesSaved = &types.FilesSaved{ResJSON: in, ExpectedOutput: out}
		}
	}
	res.DecipherMethod = e.decipherer.Name()
	SetStreams(res, streams)
	return res, nil
}

// SetStreams replaces the streams of res and recomputes its counters.
func SetStreams(res *types.Result, streams []types.StreamDescriptor) {
	if streams == nil {
		streams = []types.StreamDescriptor{}
	}
	res.Streams = streams
	res.TotalStreams = len(streams)
	res.DecipheredStreams = formats.CountDeciphered(streams)
	res.NeedsDecipherCount = formats.CountNeedsDecipher(streams)
}

// Select returns a copy of res keeping only the streams matched by sel.
func Select(res *types.Result, sel formats.Selector) *types.Result {
	out := cloneResult(res)
	if !sel.IsZero() {
		SetStreams(out, sel.Apply(out.Streams))
	}
	return out
}

// cloneResult copies res and its stream slice. Descriptors are shared and
// must be treated as read-only.
func cloneResult(res *types.Result) *types.Result {
	out := *res
	out.Streams = append([]types.StreamDescriptor(nil), res.Streams...)
	if res.FilesSaved != nil {
		fs := *res.FilesSaved
		out.FilesSaved = &fs
	}
	return &out
}

// ExtractVideoID accepts a bare video ID or a watch, short-link or shorts
// URL and returns the video ID.
func ExtractVideoID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errs.E(errs.KindValidation, "parse video id", errs.ErrEmptyVideoID)
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, "?") {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", errs.E(errs.KindValidation, "parse video id", err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	}
	if id == "" || strings.Contains(id, "/") {
		return "", errs.Ef(errs.KindValidation, "parse video id", "not a YouTube video URL: %s", s)
	}
	return id, nil
}
