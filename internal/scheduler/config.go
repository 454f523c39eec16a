package scheduler

import (
	"time"

	"github.com/smallbiznis/tugas/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval  time.Duration
	PendingGrace time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	LockTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		PendingGrace: 2 * time.Minute,
		BatchSize:    50,
		JobTimeout:   30 * time.Second,
		LockTTL:      45 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Scheduler.RunInterval,
		PendingGrace: cfg.Scheduler.PendingGrace,
		BatchSize:    cfg.Scheduler.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = defaults.PendingGrace
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	// the lock has to outlive the job or a second replica can start mid-run
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout + 5*time.Second
	}
	return c
}
