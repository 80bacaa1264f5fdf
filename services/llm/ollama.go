// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const ollamaDefaultModel = "llama3.1"

// ollamaProvider runs inference against a local Ollama server through
// langchaingo. No API key; the server URL is the only required config.
type ollamaProvider struct {
	model  string
	client *ollama.LLM
}

func newOllamaProvider(cfg Config) (*ollamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = ollamaDefaultModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating client: %w", err)
	}
	return &ollamaProvider{model: model, client: client}, nil
}

func (o *ollamaProvider) name() string { return ProviderOllama }

func (o *ollamaProvider) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	if systemPrompt != "" {
		content = append([]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		}, content...)
	}

	resp, err := o.client.GenerateContent(ctx, content, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("ollama: generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("ollama: received empty completion")
	}
	return resp.Choices[0].Content, nil
}
