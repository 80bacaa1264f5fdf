// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the service configuration: a YAML
// file, then environment overrides for the values that differ per
// deployment (addresses, keys, paths). Secrets never go in the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/VeracityAI/VeracityFOSS/services/assess/memory"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
	"github.com/VeracityAI/VeracityFOSS/services/assess/toolclient"
	"github.com/VeracityAI/VeracityFOSS/services/llm"
)

// Config is the root of the service configuration.
type Config struct {
	Server        ServerConfig                       `yaml:"server"`
	LLM           llm.Config                         `yaml:"llm" validate:"required"`
	Memory        memory.Config                      `yaml:"memory"`
	Targets       map[string]toolclient.TargetConfig `yaml:"targets"`
	Scan          ScanConfig                         `yaml:"scan"`
	Store         StoreConfig                        `yaml:"store"`
	Archive       ArchiveConfig                      `yaml:"archive"`
	Progress      ProgressConfig                     `yaml:"progress"`
	Observability ObservabilityConfig                `yaml:"observability"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScanConfig mirrors the executor options in YAML-friendly form.
type ScanConfig struct {
	BatchSize        int    `yaml:"batch_size" validate:"gte=0,lte=64"`
	MaxIterations    int    `yaml:"max_iterations" validate:"gte=0"`
	MaxTasks         int    `yaml:"max_tasks" validate:"gte=0"`
	MaxToolCalls     int    `yaml:"max_tool_calls" validate:"gte=0"`
	Depth            string `yaml:"depth" validate:"omitempty,oneof=quick standard comprehensive"`
	WaveDelaySeconds int    `yaml:"wave_delay_seconds" validate:"gte=0"`

	// TargetRateLimits caps tool invocations per target per minute.
	TargetRateLimits map[string]int `yaml:"target_rate_limits"`
}

// Options converts to the executor's option struct. Zero values fall
// through to the executor defaults.
func (s ScanConfig) Options() scan.Options {
	return scan.Options{
		BatchSize:     s.BatchSize,
		MaxIterations: s.MaxIterations,
		MaxTasks:      s.MaxTasks,
		MaxToolCalls:  s.MaxToolCalls,
		Depth:         scan.Depth(s.Depth),
		WaveDelay:     time.Duration(s.WaveDelaySeconds) * time.Second,
	}
}

type StoreConfig struct {
	// Path is the badger directory. Empty selects the in-memory store.
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	// Bucket enables report archiving to GCS when set.
	Bucket string `yaml:"bucket"`

	// Anonymous skips credential lookup; for emulators and tests.
	Anonymous bool `yaml:"anonymous"`
}

type ProgressConfig struct {
	Influx InfluxConfig `yaml:"influx"`
}

// InfluxConfig enables the InfluxDB progress sink when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type ObservabilityConfig struct {
	// OTLPEndpoint sends traces to a collector over gRPC when set;
	// empty falls back to stdout exporters.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// StdoutMetrics periodically dumps the metric state to stdout.
	// Local debugging only; Prometheus scraping is always on.
	StdoutMetrics bool `yaml:"stdout_metrics"`
}

// Load reads, overlays, defaults, and validates the configuration.
//
// Inputs:
//   - path: YAML file path. Empty string loads defaults plus
//     environment overrides only.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Unreadable file, malformed YAML, or validation failure.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays deployment-specific values. Environment always
// wins over the file, which is how secrets stay out of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VERACITY_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VERACITY_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("VERACITY_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("VERACITY_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("VERACITY_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("VERACITY_MEMORY_HOST"); v != "" {
		c.Memory.Host = v
	}
	if v := os.Getenv("VERACITY_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("VERACITY_INFLUX_TOKEN"); v != "" {
		c.Progress.Influx.Token = v
	}
	if v := os.Getenv("VERACITY_SCAN_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scan.BatchSize = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8085"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = llm.ProviderOllama
	}
}
