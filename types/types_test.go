package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlayerResponse = `{
  "videoDetails": {"videoId": "abc", "title": "T", "lengthSeconds": "61", "author": "A", "viewCount": "12"},
  "streamingData": {
    "formats": [{"itag": 18, "url": "https://a"}],
    "adaptiveFormats": [{"itag": 251, "signatureCipher": "s=x"}, "junk"]
  }
}`

func TestParsePlayerResponse(t *testing.T) {
	pr, err := ParsePlayerResponse([]byte(samplePlayerResponse))
	require.NoError(t, err)

	assert.NotContains(t, string(pr.Raw), "\n")
	vd, ok := pr.VideoDetails()
	require.True(t, ok)
	assert.Equal(t, "T", vd["title"])

	formats := pr.Formats()
	require.Len(t, formats, 2)
	assert.Equal(t, json.Number("18"), formats[0]["itag"])
	assert.Equal(t, json.Number("251"), formats[1]["itag"])
}

func TestParsePlayerResponseRejectsNonObject(t *testing.T) {
	for _, in := range []string{`[1,2]`, `null`, `"x"`, `{`} {
		_, err := ParsePlayerResponse([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestInfo(t *testing.T) {
	pr, err := ParsePlayerResponse([]byte(samplePlayerResponse))
	require.NoError(t, err)
	assert.Equal(t, VideoInfo{ID: "abc", Title: "T", Duration: "61", Author: "A", ViewCount: "12"}, pr.Info())

	empty, err := ParsePlayerResponse([]byte(`{"videoDetails":{"lengthSeconds":61}}`))
	require.NoError(t, err)
	info := empty.Info()
	assert.Equal(t, Unknown, info.Title)
	assert.Equal(t, "61", info.Duration)
}

func TestVideoDetailsMissing(t *testing.T) {
	pr, err := ParsePlayerResponse([]byte(`{"playabilityStatus":{"status":"ERROR"}}`))
	require.NoError(t, err)
	_, ok := pr.VideoDetails()
	assert.False(t, ok)
	assert.Empty(t, pr.Formats())

	var nilPR *PlayerResponse
	_, ok = nilPR.VideoDetails()
	assert.False(t, ok)
}

func TestStreamDescriptorAccessors(t *testing.T) {
	sd := StreamDescriptor{"url": "https://a", "deciphered": true}
	assert.Equal(t, "https://a", sd.URL())
	assert.True(t, sd.Deciphered())
	assert.False(t, sd.NeedsDecipher())

	var zero StreamDescriptor
	assert.Empty(t, zero.URL())
	assert.False(t, zero.Deciphered())
}

func TestResultJSON(t *testing.T) {
	res := Result{Success: true, VideoID: "abc", Streams: []StreamDescriptor{}}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"streams":[]`)
	assert.NotContains(t, string(data), "files_saved")

	res.FilesSaved = &FilesSaved{ResJSON: "old/res.json", ExpectedOutput: "old/de.json"}
	data, err = json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"files_saved":{"res_json":"old/res.json","expected_output":"old/de.json"}`)
}
