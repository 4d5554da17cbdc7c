// Package app wires configuration into the pipeline components shared by
// the binaries.
package app

import (
	"io"
	"os/exec"

	"github.com/ytget/ytstream"
	"github.com/ytget/ytstream/client"
	"github.com/ytget/ytstream/cookies"
	"github.com/ytget/ytstream/internal/config"
	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/server"
	"github.com/ytget/ytstream/youtube/decipher"
	"github.com/ytget/ytstream/youtube/page"
)

// SetupLogging installs the global logger described by cfg. The returned
// closer flushes a log file, if any.
func SetupLogging(cfg *config.Config) (io.Closer, error) {
	l, closer, err := logger.FromSettings(cfg.Log())
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(l)
	return closer, nil
}

// NewClient builds the outbound HTTP client.
func NewClient(cfg *config.Config) (*client.Client, error) {
	f := cfg.Fetch()
	return client.NewWith(client.Config{
		Timeout:   f.Timeout,
		Retries:   f.Retries,
		UserAgent: f.UserAgent,
		ProxyURL:  f.Proxy,
		NoProxy:   f.NoProxy,
		Rate:      f.Rate,
		Burst:     f.Burst,
	})
}

// NewDecipherer builds the configured decipher back end.
func NewDecipherer(cfg *config.Config, c *client.Client) (decipher.Decipherer, error) {
	b := cfg.Bridge()
	if b.Method == decipher.MethodExternal {
		checkInterpreter(b.Interpreter)
	}
	return decipher.New(decipher.Options{
		Method: b.Method,
		External: decipher.ExternalConfig{
			WorkDir:     b.WorkDir,
			Script:      b.Script,
			Interpreter: b.Interpreter,
			Timeout:     b.Timeout,
			UniquePaths: b.UniquePaths,
			Concurrency: b.Concurrency,
		},
		Ytdlp: decipher.YtdlpConfig{
			Timeout: b.Timeout,
			Proxy:   cfg.Fetch().Proxy,
			Install: b.YtdlpInstall,
		},
		HTTPClient: c.HTTPClient,
		CacheTTL:   b.CacheTTL,
	})
}

// NewExtractor builds the resolve pipeline. jar may be nil.
func NewExtractor(cfg *config.Config, jar *cookies.Jar) (*ytstream.Extractor, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	d, err := NewDecipherer(cfg, c)
	if err != nil {
		return nil, err
	}
	var src page.CookieSource
	if jar != nil {
		src = jar
	}
	return ytstream.New().
		WithFetcher(page.NewFetcher(c, src, cfg.Fetch().BaseURL)).
		WithDecipherer(d), nil
}

// NewServer builds the HTTP facade.
func NewServer(cfg *config.Config, jar *cookies.Jar, extractor *ytstream.Extractor) *server.Server {
	s, b := cfg.Server(), cfg.Bridge()
	return server.New(server.Config{
		Addr:            s.Addr,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
		CookiesPath:     cfg.Cookies().Path,
		WorkDir:         b.WorkDir,
		Script:          b.Script,
	}, jar, extractor)
}

// checkInterpreter warns when the bridge interpreter is not on PATH. The
// service still starts and serves raw formats.
func checkInterpreter(name string) {
	log := logger.WithComponent(logger.ComponentBridge)
	path, err := exec.LookPath(name)
	if err != nil {
		log.Error("decipher interpreter not found, streams will not be deciphered", map[string]interface{}{"interpreter": name, "error": err.Error()})
		return
	}
	log.Debug("decipher interpreter found", map[string]interface{}{"path": path})
}
