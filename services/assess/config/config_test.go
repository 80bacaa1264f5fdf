// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
	"github.com/VeracityAI/VeracityFOSS/services/llm"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleYAML = `
server:
  addr: ":9090"
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
memory:
  host: "weaviate:8080"
targets:
  acme-prod:
    endpoint: "https://mcp.acme.example/v1"
scan:
  batch_size: 3
  depth: comprehensive
  wave_delay_seconds: 2
store:
  path: /var/lib/assess/runs
`

func TestLoad_ParsesAndDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, llm.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "weaviate:8080", cfg.Memory.Host)
	assert.Equal(t, "https://mcp.acme.example/v1", cfg.Targets["acme-prod"].Endpoint)
	assert.Equal(t, "/var/lib/assess/runs", cfg.Store.Path)

	opts := cfg.Scan.Options()
	assert.Equal(t, 3, opts.BatchSize)
	assert.Equal(t, scan.DepthComprehensive, opts.Depth)
	assert.Equal(t, 2*time.Second, opts.WaveDelay)
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8085", cfg.Server.Addr)
	assert.Equal(t, llm.ProviderOllama, cfg.LLM.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("VERACITY_SERVER_ADDR", ":7000")
	t.Setenv("VERACITY_LLM_API_KEY", "sk-ant-test")
	t.Setenv("VERACITY_SCAN_BATCH_SIZE", "8")

	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
	assert.Equal(t, 8, cfg.Scan.BatchSize)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"unknown provider": "llm:\n  provider: bard\n",
		"unknown depth":    "scan:\n  depth: exhaustive\n",
		"negative delay":   "scan:\n  wave_delay_seconds: -1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [not a mapping"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, sampleYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := sampleYAML + "\narchive:\n  bucket: assess-reports\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-got:
		assert.Equal(t, "assess-reports", cfg.Archive.Bucket)
	case <-ctx.Done():
		t.Fatal("watcher never delivered the reloaded config")
	}
}

func TestWatch_KeepsPreviousOnInvalidReload(t *testing.T) {
	path := writeFile(t, sampleYAML)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c })
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: bard\n"), 0o600))

	select {
	case <-got:
		t.Fatal("invalid config must not be delivered")
	case <-ctx.Done():
	}
}
