package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rpcframe/internal/rpcserver"
)

// fileConfig is the optional YAML overlay loaded before env vars are
// applied. Every field is a pointer so "absent from the file" and "present
// but zero" are distinguishable; env vars always win when both are set.
type fileConfig struct {
	ListenAddr      *string `yaml:"listen_addr"`
	MaxFrameSizeMiB *int    `yaml:"max_frame_size_mib"`
	ReadBudgetMS    *int    `yaml:"read_budget_ms"`
	ShutdownMS      *int    `yaml:"shutdown_budget_ms"`
	MaxConnections  *int64  `yaml:"max_connections"`
	MetricsAddr     *string `yaml:"metrics_addr"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// loadConfig builds a rpcserver.Config the same way the rest of this
// repo builds its config structs: a YAML file supplies low-churn defaults,
// environment variables override anything the file set, and everything
// falls back to a hard-coded default if neither is present.
func loadConfig() (rpcserver.Config, string, error) {
	fc, err := loadFileConfig(envOr("RPCFRAME_CONFIG_FILE", "rpcframe.yaml"))
	if err != nil {
		return rpcserver.Config{}, "", err
	}

	cfg := rpcserver.DefaultConfig(envOr("RPCFRAME_LISTEN_ADDR", fileStringOr(fc.ListenAddr, ":7443")))

	if fc.MaxFrameSizeMiB != nil {
		cfg.MaxFrameSize = *fc.MaxFrameSizeMiB << 20
	}
	cfg.MaxFrameSize = intOr("RPCFRAME_MAX_FRAME_MIB", cfg.MaxFrameSize>>20) << 20

	if fc.ReadBudgetMS != nil {
		cfg.ReadBudget = time.Duration(*fc.ReadBudgetMS) * time.Millisecond
	}
	cfg.ReadBudget = durationOr("RPCFRAME_READ_BUDGET", cfg.ReadBudget)

	if fc.ShutdownMS != nil {
		cfg.ShutdownBudget = time.Duration(*fc.ShutdownMS) * time.Millisecond
	}
	cfg.ShutdownBudget = durationOr("RPCFRAME_SHUTDOWN_BUDGET", cfg.ShutdownBudget)

	if fc.MaxConnections != nil {
		cfg.MaxConnections = *fc.MaxConnections
	}
	cfg.MaxConnections = int64(intOr("RPCFRAME_MAX_CONNECTIONS", int(cfg.MaxConnections)))

	metricsAddr := envOr("RPCFRAME_METRICS_ADDR", fileStringOr(fc.MetricsAddr, ":9443"))

	return cfg, metricsAddr, nil
}

func fileStringOr(p *string, fallback string) string {
	if p != nil && strings.TrimSpace(*p) != "" {
		return *p
	}
	return fallback
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func intOr(name string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		parsed, err := strconv.Atoi(v)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func durationOr(name string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		parsed, err := time.ParseDuration(v)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
