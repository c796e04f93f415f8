package domain

import "time"

// LockRecord mirrors the Redis key per platform described in spec §3:
// `platform_lock:<platform>` holding the owner token with TTL.
type LockRecord struct {
	Platform Platform  `json:"platform"`
	Holder   string    `json:"holder"`
	ExpireAt time.Time `json:"expire_at"`
}

// SchedulerState is the per-platform scheduler bookkeeping record
// (spec §3 "Scheduler state").
type SchedulerState struct {
	Platform          Platform   `json:"platform"`
	LastCompletedAt   *time.Time `json:"last_completed_at,omitempty"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
	HeartbeatAt       *time.Time `json:"heartbeat_at,omitempty"`
}

// DailySyncState is the global daily-sync scheduler state (spec §3).
type DailySyncState struct {
	Enabled    bool      `json:"enabled"`
	Hour       int       `json:"hour"`
	Minute     int       `json:"minute"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunSummary string `json:"last_run_summary,omitempty"`
}
