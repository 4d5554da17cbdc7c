package formats

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ytget/ytstream/types"
)

var heightRe = regexp.MustCompile(`([0-9]{3,4})p`)

// Selector narrows a descriptor list. The zero value keeps everything.
type Selector struct {
	// Ext matches the MIME subtype, e.g. "mp4" or "webm".
	Ext       string
	Itag      int
	MinHeight int
	MaxHeight int
	// Best and Worst keep a single descriptor ranked by height, then bitrate.
	Best  bool
	Worst bool
}

// ParseSelector reads a quality expression and an extension:
//   - itag=NN: a specific format
//   - best / worst: highest or lowest by height, then bitrate
//   - height<=NNN / height>=NNN: height bounds
//
// An empty quality selects by extension only.
func ParseSelector(quality, ext string) (Selector, error) {
	s := Selector{Ext: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")}
	q := strings.ToLower(strings.TrimSpace(quality))
	var err error
	switch {
	case q == "":
	case q == "best":
		s.Best = true
	case q == "worst":
		s.Worst = true
	case strings.HasPrefix(q, "itag="):
		s.Itag, err = strconv.Atoi(strings.TrimPrefix(q, "itag="))
	case strings.HasPrefix(q, "height<="):
		s.MaxHeight, err = strconv.Atoi(strings.TrimPrefix(q, "height<="))
	case strings.HasPrefix(q, "height>="):
		s.MinHeight, err = strconv.Atoi(strings.TrimPrefix(q, "height>="))
	default:
		return Selector{}, fmt.Errorf("unsupported quality selector %q", quality)
	}
	if err != nil {
		return Selector{}, fmt.Errorf("invalid quality selector %q: %w", quality, err)
	}
	return s, nil
}

// IsZero reports whether s keeps every descriptor.
func (s Selector) IsZero() bool {
	return s == Selector{}
}

// Apply returns the descriptors matching s, preserving order.
func (s Selector) Apply(streams []types.StreamDescriptor) []types.StreamDescriptor {
	if s.IsZero() {
		return streams
	}
	out := make([]types.StreamDescriptor, 0, len(streams))
	for _, d := range streams {
		if mimeSubtypeEquals(d, s.Ext) && itagEquals(d, s.Itag) && withinHeight(d, s.MinHeight, s.MaxHeight) {
			out = append(out, d)
		}
	}
	if len(out) == 0 || !(s.Best || s.Worst) {
		return out
	}
	pick := out[0]
	for _, d := range out[1:] {
		if s.Best && betterByHeightThenBitrate(d, pick) || s.Worst && betterByHeightThenBitrate(pick, d) {
			pick = d
		}
	}
	return []types.StreamDescriptor{pick}
}

func getSubtype(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// mimeSubtypeEquals checks the MIME subtype. An empty want matches anything.
func mimeSubtypeEquals(d types.StreamDescriptor, want string) bool {
	if want == "" {
		return true
	}
	mime, _ := d["mimeType"].(string)
	return getSubtype(mime) == want
}

// itagEquals checks the itag. A non-positive want matches anything.
func itagEquals(d types.StreamDescriptor, want int) bool {
	return want <= 0 || intField(d, "itag") == want
}

// withinHeight checks [minHeight, maxHeight]; a zero bound is ignored.
// Descriptors of unknown height (audio) fail any active bound.
func withinHeight(d types.StreamDescriptor, minHeight, maxHeight int) bool {
	if minHeight <= 0 && maxHeight <= 0 {
		return true
	}
	h := height(d)
	if h == 0 {
		return false
	}
	if minHeight > 0 && h < minHeight {
		return false
	}
	if maxHeight > 0 && h > maxHeight {
		return false
	}
	return true
}

// betterByHeightThenBitrate reports whether candidate outranks current.
func betterByHeightThenBitrate(candidate, current types.StreamDescriptor) bool {
	ch, cu := height(candidate), height(current)
	if ch != cu {
		return ch > cu
	}
	return intField(candidate, "bitrate") > intField(current, "bitrate")
}

// height prefers the numeric field and falls back to the quality label.
func height(d types.StreamDescriptor) int {
	if h := intField(d, "height"); h > 0 {
		return h
	}
	label, _ := d["qualityLabel"].(string)
	if m := heightRe.FindStringSubmatch(label); len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// intField reads a numeric field whatever its decoded representation.
func intField(d types.StreamDescriptor, key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
