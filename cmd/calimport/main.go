package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"calimport/internal/api"
	"calimport/internal/cache"
	"calimport/internal/config"
	"calimport/internal/ics"
	"calimport/internal/importer"
	"calimport/internal/keys"
	appLog "calimport/internal/log"
	"calimport/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	envFile    string
	file       string
	url        string
	listen     string
	keygen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("failed to load env file", "path", flags.envFile, "err", err)
	}

	if flags.keygen != "" {
		if err := generateKeyring(flags.keygen); err != nil {
			appLog.Error("failed to generate keyring", err, "path", flags.keygen)
			os.Exit(1)
		}
		appLog.Info("keyring written", "path", flags.keygen)
		return
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = string(appLog.LevelDebug)
	}
	appLog.Configure(os.Stderr, appLog.ParseLevel(conf.LogLevel), appLog.Format(conf.LogFormat))

	appLog.Info("calimport starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_base_url", conf.API.BaseURL,
		"calendar_id", conf.Import.CalendarID,
		"batch_size", conf.Import.BatchSize,
		"min_batch_spacing", conf.Import.MinBatchSpacing,
		"refresh", conf.Refresh,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(conf)
	if err != nil {
		appLog.Error("failed to initialize importer", err)
		os.Exit(1)
	}

	sources := sourcesFromFlags(flags)
	if len(sources) == 0 {
		sources = sourcesFromConfig(conf)
	}

	if flags.once {
		if n := r.importAll(ctx, sources); n < 0 {
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, conf, r, sources); err != nil {
		appLog.Error("server stopped", err)
		os.Exit(1)
	}
	appLog.Info("calimport exiting")
}

// serve runs the status API and the refresh schedule until ctx is done.
func serve(ctx context.Context, conf *config.Config, r *runner, sources []ics.Source) error {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(appLog.Logger().Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(conf.Refresh, func() { r.importAll(ctx, sources) }); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	// First import right away instead of waiting for the schedule.
	go r.importAll(ctx, sources)

	srv := web.NewServer(conf, r.board, r.events)
	return srv.ListenAndServe(ctx)
}

func generateKeyring(path string) error {
	kr, err := keys.GenerateKeyring(nil)
	if err != nil {
		return err
	}
	return kr.Save(path)
}

func newRunner(conf *config.Config) (*runner, error) {
	kr, err := keys.LoadKeyring(conf.Import.Keyring)
	if err != nil {
		return nil, err
	}

	client := api.NewClient(conf.API.BaseURL, conf.API.Token, api.WithTimeout(conf.API.Timeout))
	proc := importer.NewProcessor(
		keys.NewSealingEncrypter(),
		keys.PrimaryKeyProvider{},
		client,
		importer.WithBatchSize(conf.Import.BatchSize),
		importer.WithMinBatchSpacing(conf.Import.MinBatchSpacing),
		importer.WithLogger(appLog.With("component", "importer")),
	)

	return &runner{
		conf:      conf,
		keyring:   kr,
		fetcher:   ics.NewFetcher(conf.CacheDir),
		processor: proc,
		board:     importer.NewBoard(),
		events:    cache.NewEventCache(conf.EventCacheTTL),
	}, nil
}

func sourcesFromFlags(flags flagConfig) []ics.Source {
	var out []ics.Source
	if flags.file != "" {
		out = append(out, ics.Source{ID: filepath.Base(flags.file), Path: flags.file})
	}
	if flags.url != "" {
		out = append(out, ics.Source{ID: "cli", URL: flags.url})
	}
	return out
}

func sourcesFromConfig(conf *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(conf.ICS))
	for _, csrc := range conf.ICS {
		if csrc.URL == "" {
			continue
		}
		id := csrc.ID
		if id == "" {
			if csrc.Name != "" {
				id = csrc.Name
			} else {
				id = csrc.URL
			}
		}
		out = append(out, ics.Source{ID: id, URL: csrc.URL})
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to a .env file with secrets")
	flag.StringVar(&cfg.file, "file", "", "Import a local .ics file instead of the configured sources")
	flag.StringVar(&cfg.url, "url", "", "Import a single ICS URL instead of the configured sources")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.keygen, "keygen", "", "Write a new keyring to this path and exit")
	flag.BoolVar(&cfg.once, "once", false, "Run one import and exit")
	flag.BoolVar(&cfg.debug, "d", false, "Debug logging")

	flag.Parse()

	return cfg
}
