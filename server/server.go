// Package server exposes the resolve pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ytget/ytstream"
	"github.com/ytget/ytstream/cookies"
	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/youtube/formats"
)

const (
	defaultAddr            = ":5000"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 2 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds listener settings and the paths reported by /health.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	CookiesPath string
	WorkDir     string
	Script      string
}

// Server serves /, /health and /stream/{videoID}.
type Server struct {
	cfg       Config
	jar       *cookies.Jar
	extractor *ytstream.Extractor
	log       *logger.ComponentLogger
}

// New creates a Server. jar is read-only for the server's lifetime; a jar
// that failed to load makes every /stream request fail without fetching.
func New(cfg Config, jar *cookies.Jar, extractor *ytstream.Extractor) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if extractor == nil {
		extractor = ytstream.New()
	}
	return &Server{
		cfg:       cfg,
		jar:       jar,
		extractor: extractor,
		log:       logger.WithComponent(logger.ComponentServer),
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stream/{videoID}", s.handleStream)
	return s.withLogging(mux)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.log.Info("listening", map[string]interface{}{"addr": s.cfg.Addr})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown did not complete", map[string]interface{}{"error": err.Error()})
		}
		s.log.Info("stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoID")

	if !s.jar.Ready() {
		s.log.Warn("stream requested without cookies", map[string]interface{}{"video_id": videoID})
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "Cookies not loaded",
			Message: "Please ensure cookies.json file exists and is properly formatted",
		})
		return
	}

	q := r.URL.Query()
	sel, err := formats.ParseSelector(q.Get("quality"), q.Get("ext"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid request",
			Message: err.Error(),
			VideoID: videoID,
			Kind:    errs.KindValidation.String(),
		})
		return
	}

	res, err := s.extractor.Resolve(r.Context(), videoID)
	if err != nil {
		s.writeResolveError(w, videoID, err)
		return
	}
	writeJSON(w, http.StatusOK, ytstream.Select(res, sel))
}

func (s *Server) writeResolveError(w http.ResponseWriter, videoID string, err error) {
	if errors.Is(err, errs.ErrVideoNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "Video not found",
			Message: "Could not retrieve video details",
		})
		return
	}
	kind := errs.KindOf(err)
	status := kind.HTTPStatus()
	fields := map[string]interface{}{"video_id": videoID, "kind": kind.String(), "status": status, "error": err.Error()}
	if status >= http.StatusInternalServerError {
		s.log.Error("failed to process video", fields)
	} else {
		s.log.Warn("failed to process video", fields)
	}
	writeJSON(w, status, errorBody{
		Error:   "Failed to process video",
		Message: err.Error(),
		VideoID: videoID,
		Kind:    kind.String(),
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	VideoID string `json:"video_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type healthBody struct {
	Status             string          `json:"status"`
	CookiesReady       bool            `json:"cookies_ready"`
	CookiesCount       int             `json:"cookies_count"`
	OldDirectoryExists bool            `json:"old_directory_exists"`
	YtJSExists         bool            `json:"yt_js_exists"`
	RequiredFiles      map[string]bool `json:"required_files"`
	DecipherMethod     string          `json:"decipher_method"`
}

// handleHealth only inspects local state: no network or child processes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	scriptExists := fileExists(s.cfg.Script)
	writeJSON(w, http.StatusOK, healthBody{
		Status:             "healthy",
		CookiesReady:       s.jar.Ready(),
		CookiesCount:       s.jar.Len(),
		OldDirectoryExists: dirExists(s.cfg.WorkDir),
		YtJSExists:         scriptExists,
		RequiredFiles: map[string]bool{
			s.cfg.CookiesPath: fileExists(s.cfg.CookiesPath),
			s.cfg.Script:      scriptExists,
		},
		DecipherMethod: s.extractor.Decipherer().Name(),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "YouTube Stream Extractor API",
		"endpoints": map[string]string{
			"/stream/<video_id>": "Get deciphered stream URLs for a video (optional ?quality=best|worst|itag=NN|height<=NNN|height>=NNN&ext=mp4)",
			"/health":            "Health check and system status",
		},
		"usage":           "GET /stream/UYw6v-naagY",
		"decipher_method": s.extractor.Decipherer().Name(),
		"cookies_ready":   s.jar.Ready(),
		"workflow": []string{
			"1. Fetch YouTube player response",
			"2. Save response to " + s.cfg.WorkDir + "/res.json",
			"3. Run " + s.cfg.Script + " (your deciphering script)",
			"4. Read deciphered data from " + s.cfg.WorkDir + "/de.json",
			"5. Return processed streams",
		},
		"required_files": []string{
			s.cfg.CookiesPath,
			s.cfg.Script + " (your deciphering script)",
		},
		"generated_files": []string{
			s.cfg.WorkDir + "/res.json (exact player response JSON)",
			s.cfg.WorkDir + "/de.json (deciphered output from your script)",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
