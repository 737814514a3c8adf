package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"uqconnect/internal/calendar"
	"uqconnect/internal/catalogue"
	"uqconnect/internal/config"
	"uqconnect/internal/ics"
	appLog "uqconnect/internal/log"
	"uqconnect/internal/refresh"
	"uqconnect/internal/store"
	"uqconnect/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	appLog.Info("uqconnect starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_dir", conf.DataDir,
		"catalogue_path", conf.CataloguePath,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.Schedule.HorizonDays,
		"max_recommendations", conf.MaxRecommendations,
		"basic_auth", conf.BasicAuth != nil,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("uqconnect exited with error", err)
		os.Exit(1)
	}
	appLog.Info("uqconnect exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	st, err := store.Open(conf.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	cat, err := catalogue.NewLoader(conf.CataloguePath)
	if err != nil {
		return err
	}

	fetcher := ics.NewFetcher(ics.FetcherOptions{
		CacheDir:  conf.CacheDir,
		UserAgent: conf.Import.UserAgent,
		Timeout:   time.Duration(conf.Import.TimeoutSeconds) * time.Second,
		MaxBytes:  conf.Import.MaxBodyBytes,
	})

	svc := calendar.New(st, cat, fetcher, calendar.Options{
		Window:             conf.Window(),
		MaxRecommendations: conf.MaxRecommendations,
	})

	if flags.once {
		report, err := svc.RefreshAll(ctx)
		if err != nil {
			return err
		}
		appLog.Info("refresh pass completed",
			"subscriptions", report.Subscriptions,
			"added", report.Added,
			"failed", report.Failed,
		)
		return nil
	}

	stopWatch, err := cat.Watch()
	if err != nil {
		// Hot reload is a convenience; keep serving the loaded snapshot.
		appLog.Error("catalogue watch unavailable", err, "path", conf.CataloguePath)
	} else {
		defer stopWatch()
	}

	g, gctx := errgroup.WithContext(ctx)

	if conf.RefreshEnabled() {
		sched, err := refresh.New(conf.RefreshCron, svc)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Start(gctx) })
	}

	g.Go(func() error { return web.StartServer(gctx, conf, svc, cat) })

	return g.Wait()
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one subscription refresh pass and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
