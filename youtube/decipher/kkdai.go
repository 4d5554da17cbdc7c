package decipher

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/ytget/ytstream/internal/logger"
)

// KkdaiName is reported for the kkdai/youtube back end.
const KkdaiName = "kkdai_youtube"

// Kkdai resolves stream URLs with the signature handling built into
// github.com/kkdai/youtube. It loads the video through its own client; the
// page-derived player response only supplies the video ID.
type Kkdai struct {
	client  *youtube.Client
	timeout time.Duration
}

// NewKkdai creates the back end. httpClient may be nil.
func NewKkdai(httpClient *http.Client, timeout time.Duration) *Kkdai {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Kkdai{client: &youtube.Client{HTTPClient: httpClient}, timeout: timeout}
}

func (k *Kkdai) Name() string { return KkdaiName }

func (k *Kkdai) Decipher(ctx context.Context, req Request) (Map, error) {
	log := logger.WithComponent(logger.ComponentBridge)

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	video, err := k.client.GetVideoContext(ctx, req.VideoID)
	if err != nil {
		return nil, unavailable("load video", err)
	}

	out := make(Map, len(video.Formats))
	var failed int
	for i := range video.Formats {
		f := &video.Formats[i]
		u, err := k.client.GetStreamURLContext(ctx, video, f)
		if err != nil || u == "" {
			failed++
			continue
		}
		out[u] = kkdaiInfo(f)
	}
	if len(out) == 0 {
		return nil, unavailable("no stream url resolved", nil)
	}
	log.Info("kkdai resolved streams", map[string]interface{}{"video_id": req.VideoID, "entries": len(out), "failed": failed})
	return out, nil
}

func kkdaiInfo(f *youtube.Format) map[string]any {
	info := map[string]any{"itag": f.ItagNo}
	setString := func(key, v string) {
		if v != "" {
			info[key] = v
		}
	}
	setInt := func(key string, v int) {
		if v > 0 {
			info[key] = v
		}
	}
	setString("mimeType", f.MimeType)
	setString("quality", f.Quality)
	setString("qualityLabel", f.QualityLabel)
	setInt("bitrate", f.Bitrate)
	setInt("audioChannels", f.AudioChannels)
	setInt("fps", f.FPS)
	setInt("width", f.Width)
	setInt("height", f.Height)
	if f.ContentLength > 0 {
		info["contentLength"] = strconv.FormatInt(f.ContentLength, 10)
	}
	return info
}
