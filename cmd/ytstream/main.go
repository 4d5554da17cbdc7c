package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ytget/ytstream/cookies"
	"github.com/ytget/ytstream/internal/app"
	"github.com/ytget/ytstream/internal/config"
	"github.com/ytget/ytstream/internal/logger"
)

func main() {
	var flagConfig string
	flag.StringVar(&flagConfig, "config", "", "Path to a TOML config file (default: ytstream.toml, config.toml or $XDG_CONFIG_HOME/ytstream/config.toml)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nServes /, /health and /stream/<video_id>. Settings may be overridden with YTSTREAM_* environment variables.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flagConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	closer, err := app.SetupLogging(cfg)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()
	log := logger.WithComponent(logger.ComponentApp)

	jar := cookies.Load(cfg.Cookies().Path)
	extractor, err := app.NewExtractor(cfg, jar)
	if err != nil {
		return err
	}
	log.Info("starting", map[string]interface{}{
		"addr":          cfg.Server().Addr,
		"decipher":      extractor.Decipherer().Name(),
		"cookies_ready": jar.Ready(),
		"cookies_count": jar.Len(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.NewServer(cfg, jar, extractor).ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
