package scheduler

import "time"

// Config tunes the background worker.
type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	StaleRetryAfter time.Duration
	AbandonedCutoff time.Duration
	JobTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.StaleRetryAfter <= 0 {
		c.StaleRetryAfter = 10 * time.Minute
	}
	if c.AbandonedCutoff <= 0 {
		c.AbandonedCutoff = 15 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}
