package broker

import "time"

// Config holds the broker's lifetime settings.
type Config struct {
	AccessTokenTTL time.Duration // broker-issued access tokens, default 1h
	AuthCodeTTL    time.Duration // broker-issued authorization codes, default 10m
	SessionTTL     time.Duration // pending authorization sessions, default 15m
	SweepInterval  time.Duration // background eviction cadence, default 1m
}

// DefaultConfig returns the broker defaults.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL: time.Hour,
		AuthCodeTTL:    10 * time.Minute,
		SessionTTL:     15 * time.Minute,
		SweepInterval:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = d.AccessTokenTTL
	}
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = d.AuthCodeTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}
