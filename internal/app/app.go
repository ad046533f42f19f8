// Package app wires the scan core's stores, ports, and actors into a
// runnable Orchestrator. It exists because both cmd/ferrexd (the
// supervised daemon) and cmd/ferrexctl (the one-shot operator CLI)
// need the exact same collaborator graph.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ferrex/internal/config"
	"ferrex/internal/cursorstore"
	"ferrex/internal/eventbus"
	"ferrex/internal/folderstore"
	"ferrex/internal/fsport"
	"ferrex/internal/librarystore"
	"ferrex/internal/orchestrator"
	"ferrex/internal/pipeline"
	"ferrex/internal/progress"
	"ferrex/internal/provider"
	"ferrex/internal/referencestore"
	"ferrex/internal/statemachine"
)

// Paths locates every SQLite-backed store file under one data
// directory.
type Paths struct {
	DataDir string
}

func (p Paths) folders() string   { return filepath.Join(p.DataDir, "folders.db") }
func (p Paths) cursors() string   { return filepath.Join(p.DataDir, "cursors.db") }
func (p Paths) libraries() string { return filepath.Join(p.DataDir, "libraries.db") }
func (p Paths) events() string    { return filepath.Join(p.DataDir, "events.db") }
func (p Paths) series() string    { return filepath.Join(p.DataDir, "series_state.db") }

// Services is the fully wired scan core: every store plus the
// Orchestrator that drives the Scan/Analyze/Resolve/Index actors
// across them. Close releases every underlying SQLite connection.
type Services struct {
	Config config.Config

	Folders    *folderstore.Store
	Cursors    *cursorstore.Store
	Libraries  *librarystore.Store
	Machine    *statemachine.Machine
	seriesRepo *statemachine.SQLRepository
	Events     eventbus.Bus
	durable    *eventbus.Durable
	References referencestore.Repository
	Publisher  *progress.Broadcaster
	Provider   provider.Provider

	Orchestrator *orchestrator.Orchestrator
}

// Open creates dataDir if needed and builds every store, the fake
// reference repository and metadata searcher standing in for the
// externally-owned reference-repository and TMDB-client
// collaborators, and an Orchestrator wired to drive them.
//
// ffprobeBinary is the path to the ffprobe executable the Analyze
// actor shells out to; pass "" to use $PATH's ffprobe.
func Open(cfg config.Config, paths Paths, ffprobeBinary string, logger *slog.Logger) (*Services, error) {
	if err := os.MkdirAll(paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create data dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	folders, err := folderstore.Open(paths.folders())
	if err != nil {
		return nil, fmt.Errorf("app: open folder store: %w", err)
	}
	cursors, err := cursorstore.Open(paths.cursors())
	if err != nil {
		folders.Close()
		return nil, fmt.Errorf("app: open cursor store: %w", err)
	}
	libraries, err := librarystore.Open(paths.libraries())
	if err != nil {
		folders.Close()
		cursors.Close()
		return nil, fmt.Errorf("app: open library store: %w", err)
	}
	seriesRepo, err := statemachine.OpenSQLRepository(paths.series())
	if err != nil {
		folders.Close()
		cursors.Close()
		libraries.Close()
		return nil, fmt.Errorf("app: open series state store: %w", err)
	}
	durable, err := eventbus.OpenDurable(paths.events())
	if err != nil {
		folders.Close()
		cursors.Close()
		libraries.Close()
		seriesRepo.Close()
		return nil, fmt.Errorf("app: open event bus: %w", err)
	}

	machine := statemachine.New(seriesRepo)
	references := referencestore.NewFakeRepository()
	searcher := &provider.FakeSearcher{}
	client := provider.New(searcher, provider.Config{
		RequestsPerSecond: 4,
		Burst:             4,
		Timeout:           time.Duration(cfg.Scan.ProviderTimeoutMs) * time.Millisecond,
		BreakerName:       "metadata-provider",
	})

	publisher := progress.NewBroadcaster(128)

	deps := orchestrator.Deps{
		Folders: folders,
		Cursors: cursors,
		Machine: machine,
		Scan: &pipeline.ScanActor{
			FS:                fsport.NewOSFS(),
			Folders:           folders,
			Cursors:           cursors,
			Logger:            logger,
			MaxTraversalDepth: 8,
			AllowZeroLength:   cfg.Demo.AllowZeroLength,
		},
		Analyze: &pipeline.AnalyzeActor{
			FFProbeBinary: ffprobeBinaryOrDefault(ffprobeBinary),
			Logger:        logger,
			SkipProbe:     cfg.Demo.SkipMetadataProbe,
		},
		Resolve: &pipeline.ResolveActor{
			Provider:    client,
			Machine:     machine,
			References:  references,
			MaxAttempts: cfg.Scan.MaxRetryAttempts,
		},
		Index: &pipeline.IndexActor{
			References: references,
			Publisher:  publisher,
		},
		Publisher: publisher,
		Logger:    logger,
	}

	orch := orchestrator.New(deps, cfg.Scan)

	return &Services{
		Config:       cfg,
		Folders:      folders,
		Cursors:      cursors,
		Libraries:    libraries,
		Machine:      machine,
		seriesRepo:   seriesRepo,
		Events:       durable,
		durable:      durable,
		References:   references,
		Publisher:    publisher,
		Provider:     client,
		Orchestrator: orch,
	}, nil
}

func ffprobeBinaryOrDefault(binary string) string {
	if binary != "" {
		return binary
	}
	return "ffprobe"
}

// Close releases every SQLite connection this Services opened.
func (s *Services) Close() error {
	var firstErr error
	for _, closer := range []func() error{
		s.Folders.Close,
		s.Cursors.Close,
		s.Libraries.Close,
		s.seriesRepo.Close,
		s.durable.Close,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
