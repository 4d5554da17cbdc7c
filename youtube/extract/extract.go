// Package extract pulls the embedded player response and the player script URL
// out of a watch page.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/types"
)

const (
	// PlayerResponseMarker is the global the page assigns the player response to.
	PlayerResponseMarker = "ytInitialPlayerResponse"

	// FallbackPlayerJSURL is returned when no pattern matches. It may be stale.
	FallbackPlayerJSURL = "https://m.youtube.com/s/player/69b31e11/player-plasma-ias-phone-en_US.vflset/base.js"

	ytBase = "https://www.youtube.com"
)

// Document is a parsed watch page. goquery parsing is done once and shared by
// both scans.
type Document struct {
	html string
	doc  *goquery.Document
}

// Parse wraps html. Malformed markup is tolerated; the raw text is always
// searched as a fallback.
func Parse(html string) *Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.WithComponent(logger.ComponentExtractor).Debug("html parse failed, using raw text", map[string]interface{}{"error": err.Error()})
		doc = nil
	}
	return &Document{html: html, doc: doc}
}

// PlayerResponse is a shortcut for Parse(html).PlayerResponse().
func PlayerResponse(html string) (*types.PlayerResponse, error) {
	return Parse(html).PlayerResponse()
}

// PlayerJSURL is a shortcut for Parse(html).PlayerJSURL().
func PlayerJSURL(html string) string {
	return Parse(html).PlayerJSURL()
}

// PlayerResponse locates `ytInitialPlayerResponse = {` and decodes exactly one
// complete JSON value from there. Payloads containing "};" inside strings are
// handled because the decoder, not a terminator search, decides where it ends.
func (d *Document) PlayerResponse() (*types.PlayerResponse, error) {
	var firstErr error
	try := func(text string) *types.PlayerResponse {
		raw, err := scanAssignment(text, PlayerResponseMarker)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		if raw == nil {
			return nil
		}
		pr, err := types.ParsePlayerResponse(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		return pr
	}

	var found *types.PlayerResponse
	if d.doc != nil {
		d.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if !strings.Contains(text, PlayerResponseMarker) {
				return true
			}
			found = try(text)
			return found == nil
		})
	}
	if found == nil {
		found = try(d.html)
	}
	if found != nil {
		return found, nil
	}
	if firstErr != nil {
		return nil, errs.E(errs.KindExtraction, "parse player response", firstErr)
	}
	return nil, errs.E(errs.KindExtraction, "extract player response", errs.ErrPlayerResponseNotFound)
}

// scanAssignment returns the JSON object assigned to marker in text. It
// returns (nil, nil) when no assignment of an object literal exists, and the
// first decode error when one existed but was not valid JSON.
func scanAssignment(text, marker string) (json.RawMessage, error) {
	var firstErr error
	for offset := 0; ; {
		i := strings.Index(text[offset:], marker)
		if i < 0 {
			return nil, firstErr
		}
		offset += i + len(marker)

		rest := strings.TrimLeft(text[offset:], " \t\r\n")
		if !strings.HasPrefix(rest, "=") {
			continue
		}
		rest = strings.TrimLeft(rest[1:], " \t\r\n")
		if !strings.HasPrefix(rest, "{") {
			continue
		}

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return raw, nil
	}
}

var playerJSPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"jsUrl"\s*:\s*"([^"]*)"`),
	regexp.MustCompile(`"PLAYER_JS_URL"\s*:\s*"([^"]*)"`),
	regexp.MustCompile(`/s/player/[^/"'\s]+/[^/"'\s]+/base\.js`),
	regexp.MustCompile(`src="([^"]*base\.js[^"]*)"`),
}

// PlayerJSURL returns the absolute player script URL, trying in order: the
// jsUrl field, the PLAYER_JS_URL field, a /s/player/<id>/<variant>/base.js
// path and a <script src> containing base.js. Without a match it returns
// FallbackPlayerJSURL.
func (d *Document) PlayerJSURL() string {
	log := logger.WithComponent(logger.ComponentExtractor)

	for i, re := range playerJSPatterns {
		var candidate string
		if i == 3 {
			candidate = d.scriptSrc()
		}
		if candidate == "" {
			m := re.FindStringSubmatch(d.html)
			if m == nil {
				continue
			}
			candidate = m[len(m)-1]
		}
		if candidate == "" {
			continue
		}
		u := NormalizePlayerURL(candidate)
		log.Debug("player js url found", map[string]interface{}{"pattern": i + 1, "url": u})
		return u
	}

	log.Warn("player js url not found, using fallback", map[string]interface{}{"url": FallbackPlayerJSURL})
	return FallbackPlayerJSURL
}

func (d *Document) scriptSrc() string {
	if d.doc == nil {
		return ""
	}
	src, _ := d.doc.Find(`script[src*="base.js"]`).First().Attr("src")
	return src
}

// NormalizePlayerURL unescapes JSON slashes and makes protocol-relative and
// host-relative URLs absolute.
func NormalizePlayerURL(u string) string {
	u = strings.ReplaceAll(u, `\/`, "/")
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		return ytBase + u
	default:
		return u
	}
}
