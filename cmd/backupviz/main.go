package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backupviz/internal/capture"
	"backupviz/internal/config"
	"backupviz/internal/derive"
	appLog "backupviz/internal/log"
	"backupviz/internal/refresh"
	"backupviz/internal/source"
	"backupviz/internal/view"
	"backupviz/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	payload    string
	demo       bool
	once       bool
	start      string
	end        string
	capture    bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("backupviz starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	switch {
	case err != nil && conf != nil:
		// First run on a read-only path: defaults are usable.
		appLog.Warn("could not write default config; continuing with defaults", "config_path", flags.configPath, "err", err)
	case err != nil:
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.payload != "" {
		conf.Payload.Path = flags.payload
	}
	if flags.demo {
		conf.Payload.Path = ""
		conf.Payload.URL = ""
	}

	if !flags.debug {
		level, ok := appLog.ParseLevel(conf.LogLevel)
		if !ok {
			appLog.Warn("unknown log_level; using info", "log_level", conf.LogLevel)
		}
		appLog.SetLevel(level)
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Warn("invalid timezone; falling back to UTC", "timezone", conf.Timezone, "err", err)
		loc = time.UTC
	}

	loader := source.FromConfig(conf, loc)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"source", source.Describe(loader),
		"refresh", conf.RefreshCron,
		"match_mode", conf.MatchMode,
		"detail_mode", conf.DetailMode,
		"interval_order", conf.IntervalOrder,
		"once", flags.once,
		"capture", flags.capture,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	loadCtx, loadCancel := context.WithTimeout(ctx, time.Minute)
	payload, err := loader.Load(loadCtx)
	loadCancel()
	if err != nil {
		appLog.Error("initial payload load failed", err, "source", source.Describe(loader))
		os.Exit(1)
	}

	v := view.New(payload, conf.ViewOptions(loc))

	start, end := flags.start, flags.end
	if conf.DefaultWindow != nil {
		if start == "" {
			start = conf.DefaultWindow.Start
		}
		if end == "" {
			end = conf.DefaultWindow.End
		}
	}
	if start != "" || end != "" {
		v.SetStart(start)
		v.SetEnd(end)
		if err := v.Filter(); err != nil && !errors.Is(err, derive.ErrIncompleteWindow) {
			appLog.Warn("initial window rejected", "start", start, "end", end, "err", err)
		}
	}

	if flags.once {
		if err := v.Render(os.Stdout); err != nil {
			appLog.Error("render failed", err)
			os.Exit(1)
		}
		return
	}

	refresher, err := refresh.New(loader, v, conf.RefreshCron, loc)
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	srv := web.NewServer(conf, v, refresher, loc)

	if flags.capture {
		if err := runCapture(ctx, srv, conf); err != nil {
			appLog.Error("capture failed", err)
			os.Exit(1)
		}
		appLog.Info("capture written", "path", conf.Capture.OutputPath)
		return
	}

	go refresher.Run(ctx)

	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server failed", err)
		os.Exit(1)
	}
	appLog.Info("backupviz exiting")
}

// runCapture serves the page just long enough for chromedp to screenshot it.
func runCapture(ctx context.Context, srv *web.Server, conf *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	if err := waitHealthy(ctx, capture.LocalURL(conf.Listen, "/health"), errCh); err != nil {
		return err
	}

	err := capture.PagePNG(ctx, capture.Options{
		URL:        capture.LocalURL(conf.Listen, "/"),
		OutputPath: conf.Capture.OutputPath,
		Width:      conf.Capture.Width,
		Height:     conf.Capture.Height,
		Timeout:    time.Duration(conf.Capture.TimeoutSec) * time.Second,
	})
	cancel()
	if serveErr := <-errCh; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

func waitHealthy(ctx context.Context, url string, errCh <-chan error) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("server did not become healthy")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/backupviz/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.payload, "payload", "", "Payload file (JSON or .ics); overrides config")
	flag.BoolVar(&cfg.demo, "demo", false, "Use the generated demo payload")
	flag.BoolVar(&cfg.once, "once", false, "Render the page once to stdout and exit")
	flag.StringVar(&cfg.start, "start", "", "Initial filter start (e.g. 2024-01-01T00:00)")
	flag.StringVar(&cfg.end, "end", "", "Initial filter end")
	flag.BoolVar(&cfg.capture, "capture", false, "Capture the page to a PNG via headless Chromium and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
