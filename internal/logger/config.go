package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings is the textual logging configuration as read from config files or
// the environment.
type Settings struct {
	Level      string
	Format     string
	Output     string
	Components []string
	Timestamp  bool
	Rotation   RotationSettings
}

// RotationSettings configures rotation for file outputs. Zero values disable it.
type RotationSettings struct {
	MaxSize    string // e.g. "100MB"
	MaxAge     string // e.g. "7d"
	MaxBackups int
	Compress   bool
}

func (r RotationSettings) enabled() bool {
	return r.MaxSize != "" || r.MaxAge != ""
}

// FromSettings builds a logger. The returned closer releases file outputs and is never nil.
func FromSettings(s Settings) (*Logger, io.Closer, error) {
	level, err := parseLevel(s.Level)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("parse level: %w", err)
	}
	format, err := parseFormat(s.Format)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("parse format: %w", err)
	}

	var out io.Writer
	var closer io.Closer = nopCloser{}
	if path, ok := strings.CutPrefix(s.Output, "file:"); ok && s.Rotation.enabled() {
		rw, err := rotatingWriterFrom(path, s.Rotation)
		if err != nil {
			return nil, nopCloser{}, err
		}
		out, closer = rw, rw
	} else {
		out, err = parseOutput(s.Output)
		if err != nil {
			return nil, nopCloser{}, fmt.Errorf("parse output: %w", err)
		}
		if c, ok := out.(io.Closer); ok && out != os.Stdout && out != os.Stderr {
			closer = c
		}
	}

	components := make(map[Component]bool, len(s.Components))
	for _, c := range s.Components {
		if c = strings.TrimSpace(c); c != "" {
			components[Component(c)] = true
		}
	}

	return New(&Config{
		Level:      level,
		Format:     format,
		Output:     out,
		Components: components,
		Timestamp:  s.Timestamp,
	}), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel parses level string to Level enum
func ParseLevel(levelStr string) (Level, error) {
	return parseLevel(levelStr)
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

func parseOutput(outputStr string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(outputStr)) {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	path, ok := strings.CutPrefix(outputStr, "file:")
	if !ok {
		return nil, fmt.Errorf("unknown output: %s", outputStr)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// parseSize parses size string (e.g., "100MB", "1GB") to bytes
func parseSize(sizeStr string) (int64, error) {
	num, unit, err := splitNumber(sizeStr)
	if err != nil || (num == 0 && unit == "") {
		return num, err
	}
	switch strings.ToUpper(unit) {
	case "B", "":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

// parseAge parses age strings such as "7d", "24h" or "30m"
func parseAge(ageStr string) (time.Duration, error) {
	num, unit, err := splitNumber(ageStr)
	if err != nil || (num == 0 && unit == "") {
		return time.Duration(num), err
	}
	switch strings.ToLower(unit) {
	case "s":
		return time.Duration(num) * time.Second, nil
	case "m":
		return time.Duration(num) * time.Minute, nil
	case "h":
		return time.Duration(num) * time.Hour, nil
	case "d":
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

func splitNumber(s string) (int64, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", nil
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("no number found in %q", s)
	}
	num, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number: %w", err)
	}
	return num, strings.TrimSpace(s[i:]), nil
}
