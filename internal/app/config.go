package app

import (
	"time"

	"github.com/scanflow/platform/internal/domain"
	"github.com/scanflow/platform/internal/platform/envcfg"
	"github.com/scanflow/platform/internal/platform/logger"
)

// Config is every process-wide tunable loaded from the environment at
// startup (spec §9 "loaded once at startup; never hot-reloaded").
type Config struct {
	LogMode string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDBName   string
	UseFakeReference bool

	PlatformConfigDir string
	WorkflowConfigDir string

	BrowserPoolSize         int
	BrowserRotationInterval int
	BrowserHeadless         bool

	HTTPAddr string

	WorkerPlatforms []domain.Platform
	WorkerPoll      time.Duration
	LockTTL         time.Duration
	LockHeartbeat   time.Duration
	ResultsDir      string

	DailySyncHour   int
	DailySyncMinute int

	WebhookURL string
}

// LoadConfig reads every Config field from the environment, falling back
// to local-dev-friendly defaults for anything unset.
func LoadConfig(log *logger.Logger) Config {
	platforms := envcfg.GetEnvAsList("WORKER_PLATFORMS", log)
	var workerPlatforms []domain.Platform
	if len(platforms) == 0 {
		workerPlatforms = domain.KnownPlatforms
	} else {
		for _, p := range platforms {
			workerPlatforms = append(workerPlatforms, domain.Platform(p))
		}
	}

	return Config{
		LogMode: envcfg.GetEnv("LOG_MODE", "development", log),

		RedisAddr:     envcfg.GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisPassword: envcfg.GetEnv("REDIS_PASSWORD", "", log),
		RedisDB:       envcfg.GetEnvAsInt("REDIS_DB", 0, log),

		PostgresHost:     envcfg.GetEnv("POSTGRES_HOST", "localhost", log),
		PostgresPort:     envcfg.GetEnv("POSTGRES_PORT", "5432", log),
		PostgresUser:     envcfg.GetEnv("POSTGRES_USER", "postgres", log),
		PostgresPassword: envcfg.GetEnv("POSTGRES_PASSWORD", "", log),
		PostgresDBName:   envcfg.GetEnv("POSTGRES_DB", "scanflow", log),
		UseFakeReference: envcfg.GetEnvAsBool("USE_FAKE_REFERENCE", false, log),

		PlatformConfigDir: envcfg.GetEnv("PLATFORM_CONFIG_DIR", "config/platforms", log),
		WorkflowConfigDir: envcfg.GetEnv("WORKFLOW_CONFIG_DIR", "config/workflows", log),

		BrowserPoolSize:         envcfg.GetEnvAsInt("BROWSER_POOL_SIZE", 3, log),
		BrowserRotationInterval: envcfg.GetEnvAsInt("BROWSER_ROTATION_INTERVAL", 200, log),
		BrowserHeadless:         envcfg.GetEnvAsBool("BROWSER_HEADLESS", true, log),

		HTTPAddr: envcfg.GetEnv("HTTP_ADDR", ":8080", log),

		WorkerPlatforms: workerPlatforms,
		WorkerPoll:      envcfg.GetEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second, log),
		LockTTL:         envcfg.GetEnvAsDuration("LOCK_TTL", 30*time.Second, log),
		LockHeartbeat:   envcfg.GetEnvAsDuration("LOCK_HEARTBEAT_INTERVAL", 10*time.Second, log),
		ResultsDir:      envcfg.GetEnv("RESULTS_DIR", "results", log),

		DailySyncHour:   envcfg.GetEnvAsInt("DAILY_SYNC_HOUR", 3, log),
		DailySyncMinute: envcfg.GetEnvAsInt("DAILY_SYNC_MINUTE", 0, log),

		WebhookURL: envcfg.GetEnv("WEBHOOK_URL", "", log),
	}
}
