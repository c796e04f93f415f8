// Package app wires every component described in spec §4 into one running
// process: the job repository, platform lock, browser pool, scanner
// registry, workflow engine, per-platform workers, the daily-sync
// scheduler, and the HTTP surface, following the teacher's
// internal/app/app.go "New builds everything, Start launches background
// loops, Run blocks the HTTP server, Close tears down" shape.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scanflow/platform/internal/browserpool"
	"github.com/scanflow/platform/internal/engine"
	"github.com/scanflow/platform/internal/engine/nodes"
	"github.com/scanflow/platform/internal/httpapi"
	"github.com/scanflow/platform/internal/jobrepo"
	"github.com/scanflow/platform/internal/notify"
	"github.com/scanflow/platform/internal/platform/logger"
	"github.com/scanflow/platform/internal/platformconfig"
	"github.com/scanflow/platform/internal/platformlock"
	"github.com/scanflow/platform/internal/reference"
	"github.com/scanflow/platform/internal/scanner"
	"github.com/scanflow/platform/internal/scheduler"
	"github.com/scanflow/platform/internal/worker"
	"github.com/scanflow/platform/internal/workflowconfig"
)

// App owns every long-lived collaborator for one process. A single App
// serves both the HTTP surface and the worker/scheduler background loops;
// cmd/server decides, via RUN_SERVER/RUN_WORKER env toggles, which of
// Start/Serve this particular process instance actually runs.
type App struct {
	Log       *logger.Logger
	Cfg       Config
	Repo      *jobrepo.Repo
	Lock      *platformlock.Lock
	Reference reference.Store
	Browsers  *browserpool.Pool
	Scanners  *scanner.Registry
	Engine    *engine.Engine
	Platforms *platformconfig.Store
	Workflows *workflowconfig.Store
	Workers   []*worker.Worker
	Scheduler *scheduler.Scheduler
	Server    *httpapi.Server

	rdb    *redis.Client
	cancel context.CancelFunc
}

// New builds every component but starts nothing: no worker goroutines, no
// cron loop, no HTTP listener (spec §9 "constructed once, wired together
// at process startup").
func New() (*App, error) {
	log, err := logger.New("development")
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	cfg := LoadConfig(log)
	log, err = logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("app: connect redis: %w", err)
	}

	repo := jobrepo.New(rdb, log)
	lock := platformlock.New(rdb, log)

	var refStore reference.Store
	if cfg.UseFakeReference {
		refStore = reference.NewFakeStore()
	} else {
		gormStore, err := reference.Open(reference.Config{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			DBName:   cfg.PostgresDBName,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("app: connect reference store: %w", err)
		}
		if err := gormStore.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("app: automigrate reference store: %w", err)
		}
		refStore = gormStore
	}

	browsers, err := browserpool.New(cfg.BrowserPoolSize, log,
		browserpool.WithRotationInterval(cfg.BrowserRotationInterval),
		browserpool.WithHeadless(cfg.BrowserHeadless),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init browser pool: %w", err)
	}

	scanners := scanner.NewRegistry()

	platforms, err := platformconfig.Load(cfg.PlatformConfigDir)
	if err != nil {
		return nil, fmt.Errorf("app: load platform configs: %w", err)
	}
	workflows, err := workflowconfig.Load(cfg.WorkflowConfigDir)
	if err != nil {
		return nil, fmt.Errorf("app: load workflow configs: %w", err)
	}

	registry := engine.NewRegistry()
	nodes.RegisterAll(registry, nodes.Deps{
		Reference: refStore,
		Scanners:  scanners,
		Browsers:  browsers,
		Notifier:  notify.NewWebhookNotifier(cfg.WebhookURL, log),
		Repo:      repo,
	})
	eng := engine.New(registry, repo, platforms, log)

	workers := make([]*worker.Worker, 0, len(cfg.WorkerPlatforms))
	for _, p := range cfg.WorkerPlatforms {
		if !p.Valid() {
			log.Warn("skipping unknown platform in WORKER_PLATFORMS", "platform", p)
			continue
		}
		workers = append(workers, worker.New(worker.Config{
			Platform:     p,
			PollInterval: cfg.WorkerPoll,
			LockTTL:      cfg.LockTTL,
			ResultsDir:   cfg.ResultsDir,
		}, repo, lock, eng, workflows, log))
	}

	sched := scheduler.New(repo, platforms, log)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Repo:            repo,
		Workflows:       workflows,
		PlatformConfigs: platforms,
	})
	server := httpapi.NewServer(router)

	return &App{
		Log:       log,
		Cfg:       cfg,
		Repo:      repo,
		Lock:      lock,
		Reference: refStore,
		Browsers:  browsers,
		Scanners:  scanners,
		Engine:    eng,
		Platforms: platforms,
		Workflows: workflows,
		Workers:   workers,
		Scheduler: sched,
		Server:    server,
		rdb:       rdb,
	}, nil
}

// Start launches every background loop: one goroutine per platform worker
// and the daily-sync cron. It does not block; call Serve to run the HTTP
// listener in the foreground.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, w := range a.Workers {
		go w.Run(ctx)
	}
	if _, err := a.Scheduler.Start(ctx, a.Cfg.DailySyncHour, a.Cfg.DailySyncMinute); err != nil {
		a.Log.Error("scheduler start failed", "error", err)
	}
}

// Serve blocks running the HTTP server on addr until it stops or errors.
func (a *App) Serve() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app: not initialized")
	}
	return a.Server.Run(a.Cfg.HTTPAddr)
}

// Close stops background loops and releases every held resource. Safe to
// call on a partially-initialized App.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Server.Shutdown(ctx)
	}
	if a.Browsers != nil {
		a.Browsers.Cleanup()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
