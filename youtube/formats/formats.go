// Package formats turns either a deciphered URL map or the raw player
// response formats into the uniform stream descriptors returned to clients.
package formats

import (
	"sort"

	"github.com/ytget/ytstream/types"
	"github.com/ytget/ytstream/youtube/decipher"
)

// Descriptor keys set by the normalizer.
const (
	KeyURL             = "url"
	KeySignatureCipher = "signatureCipher"
	KeyDeciphered      = "deciphered"
	KeyNeedsDecipher   = "needs_decipher"
)

// projected lists the raw format fields copied in the fallback branch.
var projected = []string{
	"itag",
	"mimeType",
	"quality",
	"qualityLabel",
	"bitrate",
	"audioChannels",
	"fps",
	"width",
	"height",
	"contentLength",
}

// FromDeciphered builds one descriptor per (url, info) pair, ordered by URL.
// A resolved URL never needs deciphering, so needs_decipher is removed and
// deciphered is true.
func FromDeciphered(m decipher.Map) []types.StreamDescriptor {
	urls := make([]string, 0, len(m))
	for u := range m {
		if u != "" {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)

	out := make([]types.StreamDescriptor, 0, len(urls))
	for _, u := range urls {
		d := make(types.StreamDescriptor, len(m[u])+2)
		for k, v := range m[u] {
			if v != nil {
				d[k] = v
			}
		}
		delete(d, KeyNeedsDecipher)
		d[KeyURL] = u
		d[KeyDeciphered] = true
		out = append(out, d)
	}
	return out
}

// FromPlayerResponse projects formats followed by adaptiveFormats, keeping
// their order and duplicates. A direct url wins over signatureCipher; a
// format with neither carries neither.
func FromPlayerResponse(pr *types.PlayerResponse) []types.StreamDescriptor {
	raw := pr.Formats()
	out := make([]types.StreamDescriptor, 0, len(raw))
	for _, f := range raw {
		d := make(types.StreamDescriptor, len(projected)+2)
		for _, k := range projected {
			if v, ok := f[k]; ok && v != nil {
				d[k] = v
			}
		}
		if u, ok := f[KeyURL].(string); ok && u != "" {
			d[KeyURL] = u
		} else if sc, ok := f[KeySignatureCipher].(string); ok && sc != "" {
			d[KeySignatureCipher] = sc
			d[KeyNeedsDecipher] = true
		}
		d[KeyDeciphered] = false
		out = append(out, d)
	}
	return out
}

// Normalize picks the deciphered branch when m is a non-empty map produced
// without error, and the fallback branch otherwise. The second result
// reports which branch was taken.
func Normalize(pr *types.PlayerResponse, m decipher.Map, err error) ([]types.StreamDescriptor, bool) {
	if err == nil && len(m) > 0 {
		if streams := FromDeciphered(m); len(streams) > 0 {
			return streams, true
		}
	}
	return FromPlayerResponse(pr), false
}

// CountDeciphered returns the number of descriptors with deciphered=true.
func CountDeciphered(streams []types.StreamDescriptor) int {
	n := 0
	for _, s := range streams {
		if s.Deciphered() {
			n++
		}
	}
	return n
}

// CountNeedsDecipher returns the number of descriptors with needs_decipher=true.
func CountNeedsDecipher(streams []types.StreamDescriptor) int {
	n := 0
	for _, s := range streams {
		if s.NeedsDecipher() {
			n++
		}
	}
	return n
}
