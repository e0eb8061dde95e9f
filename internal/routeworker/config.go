package routeworker

import (
	"time"

	"github.com/smallbiznis/recyclesim/internal/config"
)

// Config controls how often the worker runs and how much it takes per run.
type Config struct {
	AutoRun        bool
	Interval       time.Duration
	RunTimeout     time.Duration
	MaxPerTick     int
	CandidateLimit int
	LeaseTTL       time.Duration
	// RerouteOnCapacity moves a delivery to another recycler of the same
	// plant when its own recycler cannot take the load.
	RerouteOnCapacity bool
}

func DefaultConfig() Config {
	return Config{
		AutoRun:        true,
		Interval:       2 * time.Second,
		RunTimeout:     10 * time.Second,
		MaxPerTick:     50,
		CandidateLimit: 20,
		LeaseTTL:       30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		AutoRun:           cfg.Worker.AutoRun,
		Interval:          cfg.Worker.Interval,
		RunTimeout:        cfg.Worker.RunTimeout,
		MaxPerTick:        cfg.Worker.MaxPerTick,
		CandidateLimit:    cfg.Worker.CandidateLimit,
		LeaseTTL:          cfg.Lease.TTL,
		RerouteOnCapacity: cfg.Worker.RerouteOnCapacity,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.MaxPerTick <= 0 {
		c.MaxPerTick = defaults.MaxPerTick
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = defaults.CandidateLimit
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}
