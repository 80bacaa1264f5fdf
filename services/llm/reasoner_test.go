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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

func anthropicServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		assert.NotEmpty(t, r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: reply}},
		})
	}))
}

func openaiServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		_ = json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: reply}}},
		})
	}))
}

func TestNewReasoner_UnknownProvider(t *testing.T) {
	_, err := NewReasoner(Config{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewReasoner_MissingAPIKey(t *testing.T) {
	_, err := NewReasoner(Config{Provider: ProviderAnthropic})
	require.Error(t, err)

	_, err = NewReasoner(Config{Provider: ProviderOpenAI})
	require.Error(t, err)
}

func TestInfer_AnthropicRoundTrip(t *testing.T) {
	srv := anthropicServer(t, "plain answer", http.StatusOK)
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		Model:    "test-model",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	got, err := r.Infer(context.Background(), "be helpful", "hello", false)
	require.NoError(t, err)
	assert.Equal(t, "plain answer", got)
}

func TestInfer_OpenAIRoundTrip(t *testing.T) {
	srv := openaiServer(t, "completion text")
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider: ProviderOpenAI,
		APIKey:   "test-key",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	got, err := r.Infer(context.Background(), "", "hello", false)
	require.NoError(t, err)
	assert.Equal(t, "completion text", got)
}

func TestInfer_ExpectJSONStripsFences(t *testing.T) {
	srv := anthropicServer(t, "```json\n{\"tasks\": []}\n```", http.StatusOK)
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	got, err := r.Infer(context.Background(), "", "plan", true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks": []}`, got)
}

func TestInfer_ExpectJSONRejectsProse(t *testing.T) {
	srv := anthropicServer(t, "I cannot produce a plan right now.", http.StatusOK)
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	_, err = r.Infer(context.Background(), "", "plan", true)
	require.ErrorIs(t, err, agent.ErrReasoningMalformed)
}

func TestInfer_ProviderErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"type": "overloaded_error", "message": "try later"}}`,
			http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider: ProviderAnthropic,
		APIKey:   "test-key",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	_, err = r.Infer(context.Background(), "", "plan", false)
	require.ErrorIs(t, err, agent.ErrReasoningUnavailable)
}

func TestInfer_PacingHonorsCancelledContext(t *testing.T) {
	srv := anthropicServer(t, "never reached", http.StatusOK)
	defer srv.Close()

	r, err := NewReasoner(Config{
		Provider:          ProviderAnthropic,
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		RequestsPerMinute: 1,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.Infer(ctx, "", "first", false)
	require.NoError(t, err)

	// Second call needs a pacing slot a cancelled context cannot wait for.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Infer(cancelled, "", "second", false)
	require.ErrorIs(t, err, agent.ErrReasoningUnavailable)
}
