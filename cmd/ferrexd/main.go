// ferrexd is the scan core's supervised daemon: it loads the core
// configuration, opens every store, and runs the Orchestrator's worker
// pools alongside the filesystem watcher and cron-driven scheduler
// under a suture supervision tree, restarting any layer that panics or
// returns an error.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"ferrex/internal/app"
	"ferrex/internal/config"
	"ferrex/internal/logging"
	"ferrex/internal/rescan"
	"ferrex/internal/schedule"
	"ferrex/internal/watch"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := loadEnvConfig()

	logger, err := logging.New(logging.Options{Level: env.LogLevel, Format: env.LogFormat})
	if err != nil {
		log.Fatalf("ferrexd: init logger: %v", err)
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(env.CoreConfigPath)
	if err != nil {
		logger.Error("load core config", logging.Args(logging.Error(err))...)
		os.Exit(1)
	}

	lock := flock.New(filepath.Join(env.DataDir, "ferrexd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Error("acquire daemon lock", logging.Args(logging.Error(err))...)
		os.Exit(1)
	}
	if !locked {
		logger.Error("another ferrexd instance is already running", logging.Args(logging.String("lock_path", lock.Path()))...)
		os.Exit(1)
	}
	defer lock.Unlock() //nolint:errcheck

	services, err := app.Open(*cfg, app.Paths{DataDir: env.DataDir}, env.FFProbeBinary, logger)
	if err != nil {
		logger.Error("open services", logging.Args(logging.Error(err))...)
		os.Exit(1)
	}
	defer services.Close()

	watcher := &watch.Watcher{
		Libraries: services.Libraries,
		Bus:       services.Events,
		Logger:    logger,
	}
	scheduler := &schedule.Scheduler{
		Libraries:    services.Libraries,
		Orchestrator: services.Orchestrator,
		Logger:       logger,
		CronExpr:     env.ScheduleCron,
	}
	consumer := &rescan.Consumer{
		Bus:           services.Events,
		Libraries:     services.Libraries,
		Folders:       services.Folders,
		Orchestrator:  services.Orchestrator,
		Logger:        logger,
		RetentionDays: cfg.EventBus.RetentionDays,
	}

	root, pipelineLayer, watchLayer := newSupervisorTree()
	pipelineLayer.Add(serveFunc{
		name: "orchestrator",
		start: func(ctx context.Context) error {
			services.Orchestrator.Start(ctx)
			return nil
		},
		stop: services.Orchestrator.Shutdown,
	})
	watchLayer.Add(serveFunc{
		name:  "fs-watcher",
		start: watcher.Start,
		stop:  watcher.Stop,
	})
	watchLayer.Add(serveFunc{
		name:  "scheduler",
		start: scheduler.Start,
		stop:  scheduler.Stop,
	})
	watchLayer.Add(serveFunc{
		name:  "rescan-consumer",
		start: consumer.Start,
		stop:  consumer.Stop,
	})

	logger.Info("ferrexd starting", logging.Args(
		logging.String("data_dir", env.DataDir),
		logging.Int("scan_workers", cfg.Scan.Concurrency.Scan),
		logging.Int("analyze_workers", cfg.Scan.Concurrency.Analyze),
		logging.Int("resolve_workers", cfg.Scan.Concurrency.Resolve),
		logging.Int("index_workers", cfg.Scan.Concurrency.Index),
	)...)

	if err := root.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("supervisor tree exited", logging.Args(logging.Error(err))...)
		os.Exit(1)
	}
	logger.Info("ferrexd shut down")
}

// envConfig holds the deployment-level settings that sit above the
// scan core's own recognized options: where its SQLite files and
// lock live, which ffprobe binary to invoke, how to format its own
// logs, and the scheduler's check cadence. Loading the core's
// scan.*/eventbus.*/demo.* TOML file is config.Load's job; these
// stay as env vars.
type envConfig struct {
	DataDir        string
	CoreConfigPath string
	FFProbeBinary  string
	LogLevel       string
	LogFormat      string
	ScheduleCron   string
}

func loadEnvConfig() envConfig {
	return envConfig{
		DataDir:        envOr("FERREX_DATA_DIR", defaultDataDir()),
		CoreConfigPath: envOr("FERREX_CONFIG", defaultDataDir()+"/ferrex.toml"),
		FFProbeBinary:  envOr("FERREX_FFPROBE", "ffprobe"),
		LogLevel:       envOr("FERREX_LOG_LEVEL", "info"),
		LogFormat:      envOr("FERREX_LOG_FORMAT", "console"),
		ScheduleCron:   envOr("FERREX_SCHEDULE_CRON", "@every 1m"),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./ferrex-data"
	}
	return fmt.Sprintf("%s/.local/share/ferrex", home)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
