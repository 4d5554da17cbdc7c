package formats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstream/types"
)

func sampleStreams() []types.StreamDescriptor {
	return []types.StreamDescriptor{
		{"itag": json.Number("18"), "mimeType": `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, "height": json.Number("360"), "bitrate": json.Number("500000"), "url": "u18"},
		{"itag": json.Number("22"), "mimeType": "video/mp4", "qualityLabel": "720p", "bitrate": 2000000, "url": "u22"},
		{"itag": 248, "mimeType": "video/webm", "height": 1080, "bitrate": 3000000, "url": "u248"},
		{"itag": 140, "mimeType": "audio/mp4", "bitrate": 130000, "url": "u140"},
	}
}

func urls(streams []types.StreamDescriptor) []string {
	var out []string
	for _, s := range streams {
		out = append(out, s.URL())
	}
	return out
}

func TestParseSelector(t *testing.T) {
	s, err := ParseSelector("", "")
	require.NoError(t, err)
	assert.True(t, s.IsZero())

	s, err = ParseSelector(" ITAG=22 ", ".MP4")
	require.NoError(t, err)
	assert.Equal(t, Selector{Ext: "mp4", Itag: 22}, s)

	s, err = ParseSelector("height<=720", "")
	require.NoError(t, err)
	assert.Equal(t, 720, s.MaxHeight)

	for _, bad := range []string{"itag=x", "height>=abc", "1080p"} {
		_, err := ParseSelector(bad, "")
		assert.Error(t, err, bad)
	}
}

func TestSelectorApply(t *testing.T) {
	tests := []struct {
		quality, ext string
		want         []string
	}{
		{"", "", []string{"u18", "u22", "u248", "u140"}},
		{"", "webm", []string{"u248"}},
		{"", "mp4", []string{"u18", "u22", "u140"}},
		{"itag=18", "", []string{"u18"}},
		{"itag=140", "webm", nil},
		{"height<=720", "", []string{"u18", "u22"}},
		{"height>=720", "", []string{"u22", "u248"}},
		{"best", "", []string{"u248"}},
		{"best", "mp4", []string{"u22"}},
		{"worst", "", []string{"u140"}},
	}
	for _, tt := range tests {
		t.Run(tt.quality+"/"+tt.ext, func(t *testing.T) {
			s, err := ParseSelector(tt.quality, tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, urls(s.Apply(sampleStreams())))
		})
	}
}

func TestIntField(t *testing.T) {
	d := types.StreamDescriptor{"a": json.Number("12"), "b": json.Number("1.5e3"), "c": "42", "d": 7.9, "e": true}
	assert.Equal(t, 12, intField(d, "a"))
	assert.Equal(t, 1500, intField(d, "b"))
	assert.Equal(t, 42, intField(d, "c"))
	assert.Equal(t, 7, intField(d, "d"))
	assert.Equal(t, 0, intField(d, "e"))
	assert.Equal(t, 0, intField(d, "missing"))
}
