package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Unknown is reported for video details missing from the player response.
const Unknown = "Unknown"

// PlayerResponse holds the ytInitialPlayerResponse object both as compact
// bytes (handed to decipherers verbatim) and as a decoded tree. Numbers are
// kept as json.Number so re-encoding does not alter them.
type PlayerResponse struct {
	Raw  json.RawMessage
	Data map[string]any
}

// ParsePlayerResponse decodes raw into a PlayerResponse. raw must hold a JSON object.
func ParsePlayerResponse(raw []byte) (*PlayerResponse, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, fmt.Errorf("compact player response: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(compact.Bytes()))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	if data == nil {
		return nil, errors.New("player response is not an object")
	}
	return &PlayerResponse{Raw: compact.Bytes(), Data: data}, nil
}

// VideoDetails returns the videoDetails object, if any.
func (p *PlayerResponse) VideoDetails() (map[string]any, bool) {
	if p == nil {
		return nil, false
	}
	vd, ok := p.Data["videoDetails"].(map[string]any)
	return vd, ok
}

// Formats returns streamingData.formats followed by streamingData.adaptiveFormats.
// Entries that are not objects are skipped; order is preserved and nothing is deduplicated.
func (p *PlayerResponse) Formats() []map[string]any {
	if p == nil {
		return nil
	}
	sd, ok := p.Data["streamingData"].(map[string]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, key := range []string{"formats", "adaptiveFormats"} {
		list, _ := sd[key].([]any)
		for _, item := range list {
			if f, ok := item.(map[string]any); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// VideoInfo summarizes videoDetails.
type VideoInfo struct {
	ID        string
	Title     string
	Duration  string
	Author    string
	ViewCount string
}

// Info extracts the summary fields. Missing values read as Unknown.
func (p *PlayerResponse) Info() VideoInfo {
	vd, _ := p.VideoDetails()
	return VideoInfo{
		ID:        detail(vd, "videoId"),
		Title:     detail(vd, "title"),
		Duration:  detail(vd, "lengthSeconds"),
		Author:    detail(vd, "author"),
		ViewCount: detail(vd, "viewCount"),
	}
}

func detail(vd map[string]any, key string) string {
	switch v := vd[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return Unknown
	default:
		return fmt.Sprint(v)
	}
}

// StreamDescriptor is one normalized stream record. Absent values are never
// stored, so encoding it yields no null members.
type StreamDescriptor map[string]any

// URL returns the resolved stream URL, if any.
func (s StreamDescriptor) URL() string {
	u, _ := s["url"].(string)
	return u
}

// Deciphered reports whether the record came from a decipherer.
func (s StreamDescriptor) Deciphered() bool {
	b, _ := s["deciphered"].(bool)
	return b
}

// NeedsDecipher reports whether the record still carries a signatureCipher.
func (s StreamDescriptor) NeedsDecipher() bool {
	b, _ := s["needs_decipher"].(bool)
	return b
}

// FilesSaved names the hand-off files of the decipher bridge.
type FilesSaved struct {
	ResJSON        string `json:"res_json"`
	ExpectedOutput string `json:"expected_output"`
}

// Result is the /stream response body.
type Result struct {
	Success            bool               `json:"success"`
	VideoID            string             `json:"video_id"`
	Title              string             `json:"title"`
	Duration           string             `json:"duration"`
	Author             string             `json:"author"`
	ViewCount          string             `json:"view_count"`
	Streams            []StreamDescriptor `json:"streams"`
	PlayerJSURL        string             `json:"player_js_url"`
	TotalStreams       int                `json:"total_streams"`
	DecipheredStreams  int                `json:"deciphered_streams"`
	NeedsDecipherCount int                `json:"needs_decipher_count"`
	DecipherMethod     string             `json:"decipher_method"`
	FilesSaved         *FilesSaved        `json:"files_saved,omitempty"`
}
