// Package config loads the ambient configuration for cmd/vibedbg-host from
// environment variables: plain os.Getenv reads with typed defaults, no
// config file or flag-binding library.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/vibedbg/vibedbg-ext/internal/engine"
	"github.com/vibedbg/vibedbg-ext/internal/pipeserver"
)

// Config is the full set of host-process settings.
type Config struct {
	PipePath          string
	MaxPipeInstances  int
	TCPFallbackAddr   string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration

	EngineWorkers         int
	EngineQueueSize       int
	DefaultCommandTimeout time.Duration
	MaxRetries            int
	BreakerThreshold      int
	BreakerCooldown       time.Duration

	LogPretty bool
	LogLevel  string

	StatusAddr string
}

// FromEnv reads VIBEDBG_* environment variables, falling back to the
// defaults engine.DefaultConfig and pipeserver.DefaultConfig already
// establish.
func FromEnv() Config {
	eng := engine.DefaultConfig()
	pipe := pipeserver.DefaultConfig()

	return Config{
		PipePath:              getenvOr("VIBEDBG_PIPE_PATH", pipe.PipePath),
		MaxPipeInstances:      getenvIntOr("VIBEDBG_MAX_PIPE_INSTANCES", pipe.MaxInstances),
		TCPFallbackAddr:       getenvOr("VIBEDBG_TCP_ADDR", "127.0.0.1:9182"),
		ReadTimeout:           getenvDurationOr("VIBEDBG_READ_TIMEOUT", pipe.ReadTimeout),
		WriteTimeout:          getenvDurationOr("VIBEDBG_WRITE_TIMEOUT", pipe.WriteTimeout),
		HeartbeatInterval:     getenvDurationOr("VIBEDBG_HEARTBEAT_INTERVAL", pipe.HeartbeatInterval),
		EngineWorkers:         getenvIntOr("VIBEDBG_ENGINE_WORKERS", eng.Workers),
		EngineQueueSize:       getenvIntOr("VIBEDBG_ENGINE_QUEUE_SIZE", eng.QueueSize),
		DefaultCommandTimeout: getenvDurationOr("VIBEDBG_COMMAND_TIMEOUT", eng.DefaultTimeout),
		MaxRetries:            getenvIntOr("VIBEDBG_MAX_RETRIES", eng.MaxRetries),
		BreakerThreshold:      getenvIntOr("VIBEDBG_BREAKER_THRESHOLD", eng.BreakerThreshold),
		BreakerCooldown:       getenvDurationOr("VIBEDBG_BREAKER_COOLDOWN", eng.BreakerCooldown),
		LogPretty:             os.Getenv("VIBEDBG_ENV") != "production",
		LogLevel:              getenvOr("VIBEDBG_LOG_LEVEL", "info"),
		StatusAddr:            getenvOr("VIBEDBG_STATUS_ADDR", "127.0.0.1:9181"),
	}
}

// EngineConfig translates the flat env-derived settings into engine.Config.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		Workers:          c.EngineWorkers,
		QueueSize:        c.EngineQueueSize,
		DefaultTimeout:   c.DefaultCommandTimeout,
		MaxRetries:       c.MaxRetries,
		BreakerThreshold: c.BreakerThreshold,
		BreakerCooldown:  c.BreakerCooldown,
	}
}

// PipeConfig translates the flat env-derived settings into pipeserver.Config.
func (c Config) PipeConfig() pipeserver.Config {
	return pipeserver.Config{
		PipePath:          c.PipePath,
		MaxInstances:      c.MaxPipeInstances,
		TCPFallbackAddr:   c.TCPFallbackAddr,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
	}
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
