// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm implements the reasoning capability over the supported
// model providers. The Reasoner hides provider selection, request
// pacing, and reply cleanup behind the single Infer call the
// assessment engine consumes.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// provider is the internal contract each backing client satisfies.
type provider interface {
	name() string
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config selects and tunes the reasoning backend.
type Config struct {
	Provider string `yaml:"provider" validate:"required,oneof=anthropic openai ollama"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. Required for
	// ollama, optional elsewhere (used by tests against local servers).
	BaseURL string `yaml:"base_url"`

	// RequestsPerMinute paces outbound calls. Zero disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Reasoner implements agent.Reasoner over one configured provider.
//
// Thread Safety: Reasoner is safe for concurrent use.
type Reasoner struct {
	provider provider
	limiter  *rate.Limiter
}

// NewReasoner builds a Reasoner for the configured provider.
//
// Outputs:
//   - *Reasoner: The ready client.
//   - error: Unknown provider or incomplete provider configuration.
func NewReasoner(cfg Config) (*Reasoner, error) {
	var (
		p   provider
		err error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		p, err = newAnthropicProvider(cfg)
	case ProviderOpenAI:
		p, err = newOpenAIProvider(cfg)
	case ProviderOllama:
		p, err = newOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)),
			cfg.RequestsPerMinute)
	}
	return &Reasoner{provider: p, limiter: limiter}, nil
}

// Infer implements agent.Reasoner.
//
// Description:
//
//	Waits for a pacing slot, sends the prompt pair, and returns the
//	reply text. Provider failures come back as ErrReasoningUnavailable;
//	when expectJSON is set the reply is stripped of markdown fences and
//	must parse as JSON, otherwise ErrReasoningMalformed. Both are
//	recoverable by design: the caller substitutes a fallback.
func (r *Reasoner) Infer(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", agent.ErrReasoningUnavailable, err)
		}
	}

	started := time.Now()
	raw, err := r.provider.complete(ctx, systemPrompt, userPrompt)
	llmRequestDuration.WithLabelValues(r.provider.name()).Observe(time.Since(started).Seconds())

	if err != nil {
		llmRequestsTotal.WithLabelValues(r.provider.name(), "error").Inc()
		slog.Warn("Inference failed",
			slog.String("provider", r.provider.name()),
			slog.String("error", SafeLogString(err.Error())),
		)
		return "", fmt.Errorf("%w: %v", agent.ErrReasoningUnavailable, err)
	}

	if expectJSON {
		cleaned, jsonErr := ExtractJSON(raw)
		if jsonErr != nil {
			llmRequestsTotal.WithLabelValues(r.provider.name(), "malformed").Inc()
			return "", fmt.Errorf("%w: %v", agent.ErrReasoningMalformed, jsonErr)
		}
		llmRequestsTotal.WithLabelValues(r.provider.name(), "ok").Inc()
		return cleaned, nil
	}

	llmRequestsTotal.WithLabelValues(r.provider.name(), "ok").Inc()
	return strings.TrimSpace(raw), nil
}
