// Package config loads ytstream settings from defaults, an optional TOML file
// and YTSTREAM_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/ytget/ytstream/internal/logger"
	"github.com/ytget/ytstream/youtube/decipher"
)

const envPrefix = "YTSTREAM_"

const (
	SERVER_ADDR             = "server.addr"
	SERVER_READ_TIMEOUT     = "server.read_timeout"
	SERVER_WRITE_TIMEOUT    = "server.write_timeout"
	SERVER_SHUTDOWN_TIMEOUT = "server.shutdown_timeout"
	COOKIES_PATH            = "cookies.path"
	FETCH_BASE_URL          = "fetch.base_url"
	FETCH_TIMEOUT           = "fetch.timeout"
	FETCH_RETRIES           = "fetch.retries"
	FETCH_PROXY             = "fetch.proxy"
	FETCH_NO_PROXY          = "fetch.no_proxy"
	FETCH_RATE              = "fetch.rate"
	FETCH_BURST             = "fetch.burst"
	FETCH_USER_AGENT        = "fetch.user_agent"
	BRIDGE_METHOD           = "bridge.method"
	BRIDGE_WORK_DIR         = "bridge.work_dir"
	BRIDGE_SCRIPT           = "bridge.script"
	BRIDGE_INTERPRETER      = "bridge.interpreter"
	BRIDGE_TIMEOUT          = "bridge.timeout"
	BRIDGE_UNIQUE_PATHS     = "bridge.unique_paths"
	BRIDGE_CONCURRENCY      = "bridge.concurrency"
	BRIDGE_YTDLP_INSTALL    = "bridge.ytdlp_install"
	BRIDGE_CACHE_TTL        = "bridge.cache_ttl"
	LOGGING_LEVEL           = "logging.level"
	LOGGING_FORMAT          = "logging.format"
	LOGGING_OUTPUT          = "logging.output"
	LOGGING_COMPONENTS      = "logging.components"
	LOGGING_TIMESTAMP       = "logging.timestamp"
	LOGGING_MAX_SIZE        = "logging.max_size"
	LOGGING_MAX_AGE         = "logging.max_age"
	LOGGING_MAX_BACKUPS     = "logging.max_backups"
	LOGGING_COMPRESS        = "logging.compress"
)

var methods = []string{
	decipher.MethodExternal,
	decipher.MethodGoja,
	decipher.MethodOtto,
	decipher.MethodYtdlp,
	decipher.MethodKkdai,
}

var listKeys = []string{FETCH_NO_PROXY, LOGGING_COMPONENTS}

// Config is read-only after Load.
type Config struct {
	k *koanf.Koanf
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Cookies holds the cookie file location.
type Cookies struct {
	Path string
}

// Fetch holds outbound page fetch settings. Rate is in requests per second; zero disables throttling.
type Fetch struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	Proxy     string
	NoProxy   []string
	Rate      float64
	Burst     int
	UserAgent string
}

// Bridge holds decipher settings.
type Bridge struct {
	Method       string
	WorkDir      string
	Script       string
	Interpreter  string
	Timeout      time.Duration
	UniquePaths  bool
	Concurrency  int
	YtdlpInstall bool
	CacheTTL     time.Duration
}

func defaults() map[string]any {
	return map[string]any{
		SERVER_ADDR:             ":5000",
		SERVER_READ_TIMEOUT:     15 * time.Second,
		SERVER_WRITE_TIMEOUT:    2 * time.Minute,
		SERVER_SHUTDOWN_TIMEOUT: 5 * time.Second,
		COOKIES_PATH:            "./cookies.json",
		FETCH_BASE_URL:          "https://m.youtube.com",
		FETCH_TIMEOUT:           30 * time.Second,
		FETCH_RETRIES:           1,
		FETCH_PROXY:             "",
		FETCH_NO_PROXY:          []string{},
		FETCH_RATE:              0.0,
		FETCH_BURST:             1,
		FETCH_USER_AGENT:        "",
		BRIDGE_METHOD:           decipher.MethodExternal,
		BRIDGE_WORK_DIR:         "./old",
		BRIDGE_SCRIPT:           "./old/yt.js",
		BRIDGE_INTERPRETER:      "node",
		BRIDGE_TIMEOUT:          60 * time.Second,
		BRIDGE_UNIQUE_PATHS:     false,
		BRIDGE_CONCURRENCY:      1,
		BRIDGE_YTDLP_INSTALL:    false,
		BRIDGE_CACHE_TTL:        time.Duration(0),
		LOGGING_LEVEL:           "info",
		LOGGING_FORMAT:          "text",
		LOGGING_OUTPUT:          "stdout",
		LOGGING_COMPONENTS:      []string{},
		LOGGING_TIMESTAMP:       true,
		LOGGING_MAX_SIZE:        "",
		LOGGING_MAX_AGE:         "",
		LOGGING_MAX_BACKUPS:     3,
		LOGGING_COMPRESS:        true,
	}
}

// Load builds the configuration. An explicit path must exist; with an empty
// path the default locations are tried and silently skipped when absent.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", path, err)
		}
	} else {
		for _, p := range defaultPaths() {
			if _, err := os.Stat(p); err == nil {
				if err := k.Load(file.Provider(p), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", p, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	c := &Config{k: k}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// envKey maps YTSTREAM_BRIDGE_WORK_DIR to bridge.work_dir. Only the first
// underscore separates the section; list keys are split on commas.
func envKey(s, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	key = strings.Replace(key, "_", ".", 1)
	if slices.Contains(listKeys, key) {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return key, out
	}
	return key, v
}

func defaultPaths() []string {
	paths := []string{"ytstream.toml", "config.toml"}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		}
	}
	if dir != "" {
		paths = append(paths, filepath.Join(dir, "ytstream", "config.toml"))
	}
	return paths
}

// minDuration rejects bare TOML integers, which read as nanoseconds.
const minDuration = time.Millisecond

func (c *Config) validate() error {
	var problems []error
	if m := c.k.String(BRIDGE_METHOD); !slices.Contains(methods, m) {
		problems = append(problems, fmt.Errorf("%s: unknown method %q (want one of %s)", BRIDGE_METHOD, m, strings.Join(methods, ", ")))
	}
	for _, key := range []string{FETCH_TIMEOUT, BRIDGE_TIMEOUT, SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT} {
		if d := c.k.Duration(key); d < minDuration {
			problems = append(problems, fmt.Errorf("%s: %s is below %s (write a unit, e.g. \"60s\")", key, d, minDuration))
		}
	}
	if ttl := c.k.Duration(BRIDGE_CACHE_TTL); ttl < 0 || (ttl > 0 && ttl < minDuration) {
		problems = append(problems, fmt.Errorf("%s: %s is below %s (use 0 to disable)", BRIDGE_CACHE_TTL, ttl, minDuration))
	}
	if c.k.Int(BRIDGE_CONCURRENCY) < 1 {
		problems = append(problems, fmt.Errorf("%s: must be at least 1", BRIDGE_CONCURRENCY))
	}
	if c.k.Float64(FETCH_RATE) < 0 {
		problems = append(problems, fmt.Errorf("%s: must not be negative", FETCH_RATE))
	}
	if c.k.String(SERVER_ADDR) == "" {
		problems = append(problems, fmt.Errorf("%s: must not be empty", SERVER_ADDR))
	}
	return errors.Join(problems...)
}

func (c *Config) Server() Server {
	return Server{
		Addr:            c.k.String(SERVER_ADDR),
		ReadTimeout:     c.k.Duration(SERVER_READ_TIMEOUT),
		WriteTimeout:    c.k.Duration(SERVER_WRITE_TIMEOUT),
		ShutdownTimeout: c.k.Duration(SERVER_SHUTDOWN_TIMEOUT),
	}
}

func (c *Config) Cookies() Cookies {
	return Cookies{Path: c.k.String(COOKIES_PATH)}
}

func (c *Config) Fetch() Fetch {
	return Fetch{
		BaseURL:   strings.TrimRight(c.k.String(FETCH_BASE_URL), "/"),
		Timeout:   c.k.Duration(FETCH_TIMEOUT),
		Retries:   c.k.Int(FETCH_RETRIES),
		Proxy:     c.k.String(FETCH_PROXY),
		NoProxy:   c.k.Strings(FETCH_NO_PROXY),
		Rate:      c.k.Float64(FETCH_RATE),
		Burst:     c.k.Int(FETCH_BURST),
		UserAgent: c.k.String(FETCH_USER_AGENT),
	}
}

func (c *Config) Bridge() Bridge {
	return Bridge{
		Method:       c.k.String(BRIDGE_METHOD),
		WorkDir:      c.k.String(BRIDGE_WORK_DIR),
		Script:       c.k.String(BRIDGE_SCRIPT),
		Interpreter:  c.k.String(BRIDGE_INTERPRETER),
		Timeout:      c.k.Duration(BRIDGE_TIMEOUT),
		UniquePaths:  c.k.Bool(BRIDGE_UNIQUE_PATHS),
		Concurrency:  c.k.Int(BRIDGE_CONCURRENCY),
		YtdlpInstall: c.k.Bool(BRIDGE_YTDLP_INSTALL),
		CacheTTL:     c.k.Duration(BRIDGE_CACHE_TTL),
	}
}

func (c *Config) Log() logger.Settings {
	return logger.Settings{
		Level:      c.k.String(LOGGING_LEVEL),
		Format:     c.k.String(LOGGING_FORMAT),
		Output:     c.k.String(LOGGING_OUTPUT),
		Components: c.k.Strings(LOGGING_COMPONENTS),
		Timestamp:  c.k.Bool(LOGGING_TIMESTAMP),
		Rotation: logger.RotationSettings{
			MaxSize:    c.k.String(LOGGING_MAX_SIZE),
			MaxAge:     c.k.String(LOGGING_MAX_AGE),
			MaxBackups: c.k.Int(LOGGING_MAX_BACKUPS),
			Compress:   c.k.Bool(LOGGING_COMPRESS),
		},
	}
}
