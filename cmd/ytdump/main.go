package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/ytstream"
	"github.com/ytget/ytstream/cookies"
	"github.com/ytget/ytstream/internal/app"
	"github.com/ytget/ytstream/internal/config"
	"github.com/ytget/ytstream/internal/sanitize"
)

func main() {
	var (
		flagConfig  string
		flagOutput  string
		flagTimeout time.Duration
	)
	flag.StringVar(&flagConfig, "config", "", "Path to a TOML config file")
	flag.StringVar(&flagOutput, "out", "", "Output file or directory (default: <bridge.work_dir>/res.json)")
	flag.DurationVar(&flagTimeout, "timeout", time.Minute, "Overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video_id_or_url>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFetches the watch page and writes the extracted player response as indented JSON.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flagConfig, flagOutput, flagTimeout, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, output string, timeout time.Duration, input string) error {
	videoID, err := ytstream.ExtractVideoID(input)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	closer, err := app.SetupLogging(cfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()

	var jar *cookies.Jar
	if j := cookies.Load(cfg.Cookies().Path); j.Ready() {
		jar = j
	}
	extractor, err := app.NewExtractor(cfg, jar)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	p, err := extractor.FetchPage(ctx, videoID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, p.PlayerResponse.Raw, "", "  "); err != nil {
		return fmt.Errorf("format player response: %w", err)
	}
	buf.WriteByte('\n')

	path := outputPath(output, cfg.Bridge().WorkDir, videoID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Printf("%s\nplayer_js_url: %s\nsaved: %s (%d bytes)\n", p.PlayerResponse.Info().Title, p.PlayerJSURL, path, buf.Len())
	return nil
}

// outputPath resolves -out: empty means <workDir>/res.json, a directory gets
// <video id>.json inside it, anything else is used as is.
func outputPath(output, workDir, videoID string) string {
	if output == "" {
		return filepath.Join(workDir, "res.json")
	}
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return filepath.Join(output, sanitize.ToSafeFilename(videoID, "json"))
	}
	return output
}
