package decipher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/internal/sanitize"
)

// ExternalName is reported as decipher_method for the external back end.
const ExternalName = "external_node_script"

const (
	inputFile  = "res.json"
	outputFile = "de.json"

	defaultWorkDir     = "./old"
	defaultScript      = "./old/yt.js"
	defaultInterpreter = "node"
	defaultTimeout     = 60 * time.Second
	// waitDelay bounds how long pipes may stay open after the child is killed.
	waitDelay = 2 * time.Second
	// maxCapturedOutput caps the child's stdout/stderr kept for logging.
	maxCapturedOutput = 4 << 10
)

// Environment variables exported to the child process.
const (
	EnvInput       = "YTSTREAM_INPUT"
	EnvOutput      = "YTSTREAM_OUTPUT"
	EnvVideoID     = "YTSTREAM_VIDEO_ID"
	EnvPlayerJSURL = "YTSTREAM_PLAYER_JS_URL"
)

// ExternalConfig configures the external script bridge.
type ExternalConfig struct {
	WorkDir     string
	Script      string
	Interpreter string
	Timeout     time.Duration
	// UniquePaths gives every call its own hand-off files. Without it the
	// fixed res.json/de.json pair is used and calls are serialized.
	UniquePaths bool
	// Concurrency bounds in-flight child processes when UniquePaths is set.
	Concurrency int
}

// External runs a user-supplied script as a child process. The script reads
// the player response from the input file and writes a url -> info object to
// the output file.
type External struct {
	cfg ExternalConfig
	sem *semaphore.Weighted
	log *logger.ComponentLogger
}

// NewExternal creates the bridge. Zero config values use the defaults.
func NewExternal(cfg ExternalConfig) *External {
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaultWorkDir
	}
	if cfg.Script == "" {
		cfg.Script = defaultScript
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = defaultInterpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if !cfg.UniquePaths || cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &External{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.Concurrency)),
		log: logger.WithComponent(logger.ComponentBridge),
	}
}

func (e *External) Name() string { return ExternalName }

// Files returns the fixed hand-off paths, or the name templates in unique mode.
func (e *External) Files(videoID string) (string, string) {
	if !e.cfg.UniquePaths {
		return filepath.Join(e.cfg.WorkDir, inputFile), filepath.Join(e.cfg.WorkDir, outputFile)
	}
	id := sanitize.ToSafeName(videoID)
	return filepath.Join(e.cfg.WorkDir, "res-"+id+"-<uuid>.json"), filepath.Join(e.cfg.WorkDir, "de-"+id+"-<uuid>.json")
}

func (e *External) paths(videoID string) (string, string) {
	if !e.cfg.UniquePaths {
		return e.Files(videoID)
	}
	suffix := sanitize.ToSafeName(videoID) + "-" + uuid.NewString()
	return filepath.Join(e.cfg.WorkDir, sanitize.ToSafeFilename("res-"+suffix, "json")),
		filepath.Join(e.cfg.WorkDir, sanitize.ToSafeFilename("de-"+suffix, "json"))
}

// ScriptExists reports whether the configured script is present.
func (e *External) ScriptExists() bool {
	info, err := os.Stat(e.cfg.Script)
	return err == nil && !info.IsDir()
}

// WorkDirExists reports whether the hand-off directory is present.
func (e *External) WorkDirExists() bool {
	info, err := os.Stat(e.cfg.WorkDir)
	return err == nil && info.IsDir()
}

// Decipher writes the player response, runs the script and reads its output.
// Both hand-off files are removed before returning, whatever the outcome.
func (e *External) Decipher(ctx context.Context, req Request) (Map, error) {
	if req.PlayerResponse == nil {
		return nil, unavailable("no player response", nil)
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, unavailable("waiting for bridge slot", err)
	}
	defer e.sem.Release(1)

	fields := map[string]interface{}{"video_id": req.VideoID}

	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return nil, unavailable("create work dir", err)
	}

	in, out := e.paths(req.VideoID)
	defer e.cleanup(in, out)
	e.remove(out)

	if err := os.WriteFile(in, req.PlayerResponse.Raw, 0o644); err != nil {
		return nil, unavailable("write input", err)
	}
	e.log.Debug("player response saved", map[string]interface{}{"video_id": req.VideoID, "path": in, "bytes": len(req.PlayerResponse.Raw)})

	if !e.ScriptExists() {
		e.log.Warn("decipher script not found, using raw formats", map[string]interface{}{"video_id": req.VideoID, "script": e.cfg.Script})
		return nil, unavailable("script not found: "+e.cfg.Script, nil)
	}

	if err := e.run(ctx, req, in, out); err != nil {
		fields["error"] = err.Error()
		e.log.Warn("decipher script failed", fields)
		return nil, err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, unavailable("read output", err)
	}
	m, err := ParseMap(data)
	if err != nil {
		return nil, unavailable("parse output", err)
	}
	e.log.Info("decipher script finished", map[string]interface{}{"video_id": req.VideoID, "entries": len(m)})
	return m, nil
}

func (e *External) run(ctx context.Context, req Request, in, out string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.Interpreter, e.cfg.Script)
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(),
		EnvInput+"="+in,
		EnvOutput+"="+out,
		EnvVideoID+"="+req.VideoID,
		EnvPlayerJSURL+"="+req.PlayerJSURL,
	)
	stdout := &limitedBuffer{max: maxCapturedOutput}
	stderr := &limitedBuffer{max: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	fields := map[string]interface{}{
		"video_id": req.VideoID,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}
	if s := strings.TrimSpace(stdout.String()); s != "" {
		fields["stdout"] = s
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		fields["stderr"] = s
	}
	e.log.Debug("decipher script exited", fields)

	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return unavailable("script timed out after "+e.cfg.Timeout.String(), ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return unavailable("script exited with non-zero status", err)
	}
	return unavailable("run script", err)
}

func (e *External) cleanup(paths ...string) {
	for _, p := range paths {
		e.remove(p)
	}
}

func (e *External) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.Warn("failed to remove hand-off file", map[string]interface{}{"path": path, "error": err.Error()})
	}
}

// limitedBuffer keeps the first max bytes written to it and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
