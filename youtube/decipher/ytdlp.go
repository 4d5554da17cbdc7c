package decipher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/ytstream/internal/logger"
)

// YtdlpName is reported for the yt-dlp back end.
const YtdlpName = "yt_dlp"

// YtdlpConfig configures the yt-dlp back end.
type YtdlpConfig struct {
	Timeout time.Duration
	Proxy   string
	// Install downloads a yt-dlp binary on first use when none is available.
	Install bool
}

// installTimeout bounds a yt-dlp binary download.
const installTimeout = 5 * time.Minute

// Ytdlp resolves stream URLs by running yt-dlp through go-ytdlp.
type Ytdlp struct {
	cfg YtdlpConfig

	mu        sync.Mutex
	installed bool
	install   func(ctx context.Context) error
}

// NewYtdlp creates the yt-dlp back end.
func NewYtdlp(cfg YtdlpConfig) *Ytdlp {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Ytdlp{
		cfg: cfg,
		install: func(ctx context.Context) error {
			_, err := ytdlp.Install(ctx, nil)
			return err
		},
	}
}

// ensureInstalled installs yt-dlp once. The download is detached from the
// caller so a canceled request cannot fail it, and only success is remembered.
func (y *Ytdlp) ensureInstalled(ctx context.Context) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.installed {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), installTimeout)
	defer cancel()
	if err := y.install(ctx); err != nil {
		return err
	}
	y.installed = true
	return nil
}

func (y *Ytdlp) Name() string { return YtdlpName }

func (y *Ytdlp) Decipher(ctx context.Context, req Request) (Map, error) {
	log := logger.WithComponent(logger.ComponentBridge)

	if y.cfg.Install {
		if err := y.ensureInstalled(ctx); err != nil {
			return nil, unavailable("install yt-dlp", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	dl := ytdlp.New().
		SkipDownload().
		PrintJSON()
	if y.cfg.Proxy != "" {
		dl = dl.Proxy(y.cfg.Proxy)
	}

	result, err := dl.Run(ctx, "https://www.youtube.com/watch?v="+req.VideoID)
	if err != nil {
		return nil, unavailable("run yt-dlp", err)
	}
	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, unavailable("read yt-dlp output", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, unavailable("yt-dlp returned no video info", nil)
	}

	// The typed info is re-read as a tree so that only documented yt-dlp
	// format keys are relied upon.
	data, err := json.Marshal(infos[0])
	if err != nil {
		return nil, unavailable("encode yt-dlp info", err)
	}
	m, err := mapFromYtdlpInfo(data)
	if err != nil {
		return nil, unavailable("parse yt-dlp info", err)
	}
	log.Info("yt-dlp finished", map[string]interface{}{"video_id": req.VideoID, "entries": len(m)})
	return m, nil
}

// mapFromYtdlpInfo turns yt-dlp's "formats" list into a url -> info map with
// the player response field names.
func mapFromYtdlpInfo(data []byte) (Map, error) {
	var info struct {
		Formats []map[string]any `json:"formats"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}

	out := make(Map, len(info.Formats))
	for _, f := range info.Formats {
		u, _ := f["url"].(string)
		if u == "" || f["protocol"] == "mhtml" {
			continue
		}
		entry := map[string]any{}
		if id, ok := f["format_id"].(string); ok {
			if n, err := strconv.Atoi(strings.SplitN(id, "-", 2)[0]); err == nil {
				entry["itag"] = n
			} else {
				entry["itag"] = id
			}
		}
		if mt := ytdlpMimeType(f); mt != "" {
			entry["mimeType"] = mt
		}
		if note, ok := f["format_note"].(string); ok && note != "" {
			entry["qualityLabel"] = note
		}
		if tbr, ok := f["tbr"].(float64); ok && tbr > 0 {
			entry["bitrate"] = int(tbr * 1000)
		}
		copyNumber(entry, "audioChannels", f["audio_channels"])
		copyNumber(entry, "fps", f["fps"])
		copyNumber(entry, "width", f["width"])
		copyNumber(entry, "height", f["height"])
		if size, ok := f["filesize"].(float64); ok && size > 0 {
			entry["contentLength"] = strconv.FormatInt(int64(size), 10)
		}
		out[u] = entry
	}
	return out, nil
}

func copyNumber(dst map[string]any, key string, v any) {
	if n, ok := v.(float64); ok && n > 0 {
		dst[key] = int(n)
	}
}

func ytdlpMimeType(f map[string]any) string {
	ext, _ := f["ext"].(string)
	if ext == "" {
		return ""
	}
	vcodec, _ := f["vcodec"].(string)
	acodec, _ := f["acodec"].(string)
	kind := "video"
	var codecs []string
	if vcodec == "" || vcodec == "none" {
		kind = "audio"
		if ext == "m4a" {
			ext = "mp4"
		}
	} else {
		codecs = append(codecs, vcodec)
	}
	if acodec != "" && acodec != "none" {
		codecs = append(codecs, acodec)
	}
	if len(codecs) == 0 {
		return kind + "/" + ext
	}
	return fmt.Sprintf(`%s/%s; codecs="%s"`, kind, ext, strings.Join(codecs, ", "))
}
