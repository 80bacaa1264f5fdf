// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory implements the advisory long-term memory on Weaviate.
// Every operation swallows transport failures: memory being down slows
// nothing and fails nothing, callers just see empty results.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

const className = "AssessmentMemory"

// Config locates the Weaviate instance.
type Config struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
}

// Store implements agent.MemoryStore on a Weaviate class.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	client *weaviate.Client
}

// New connects to Weaviate and ensures the memory class exists. Schema
// creation failing is logged and ignored; the instance may already
// have the class or may be briefly unavailable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.Host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("memory: creating weaviate client: %w", err)
	}

	s := &Store{client: client}
	s.ensureSchema(ctx)
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(className).Do(ctx)
	if err != nil {
		slog.Warn("Memory schema check failed", slog.String("error", err.Error()))
		return
	}
	if exists {
		return
	}

	class := &models.Class{
		Class:       className,
		Description: "Long-term assessment findings",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		slog.Warn("Memory schema creation failed", slog.String("error", err.Error()))
	}
}

// Remember stores one finding. Returns the record ID, or "" when the
// write failed.
func (s *Store) Remember(ctx context.Context, text, category string, tags []string) string {
	if text == "" {
		return ""
	}
	created, err := s.client.Data().Creator().
		WithClassName(className).
		WithProperties(map[string]any{
			"text":     text,
			"category": category,
			"tags":     tags,
		}).
		Do(ctx)
	if err != nil {
		slog.Warn("Memory write failed", slog.String("error", err.Error()))
		return ""
	}
	if created == nil || created.Object == nil {
		return ""
	}
	return created.Object.ID.String()
}

// Recall runs a near-text search constrained by the filters. Returns
// ranked hits, or nil when retrieval failed.
func (s *Store) Recall(ctx context.Context, query string, f agent.RecallFilters, limit int) []agent.MemoryHit {
	if limit <= 0 {
		limit = 5
	}

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "category"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	get := s.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearText(s.client.GraphQL().NearTextArgBuilder().
			WithConcepts([]string{query})).
		WithLimit(limit)
	if where := buildWhere(f); where != nil {
		get = get.WithWhere(where)
	}

	resp, err := get.Do(ctx)
	if err != nil {
		slog.Warn("Memory recall failed", slog.String("error", err.Error()))
		return nil
	}
	return parseHits(resp)
}

// buildWhere converts recall filters to a Weaviate where clause. Nil
// when no filter applies.
func buildWhere(f agent.RecallFilters) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if f.Category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueText(f.Category))
	}
	if len(f.Tags) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"tags"}).
			WithOperator(filters.ContainsAny).
			WithValueText(f.Tags...))
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

// parseHits walks the GraphQL response shape defensively: any node
// that does not look right is skipped, never an error.
func parseHits(resp *models.GraphQLResponse) []agent.MemoryHit {
	if resp == nil {
		return nil
	}
	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil
	}
	objects, ok := get[className].([]any)
	if !ok {
		return nil
	}

	hits := make([]agent.MemoryHit, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		hit := agent.MemoryHit{}
		hit.Text, _ = obj["text"].(string)
		hit.Category, _ = obj["category"].(string)
		if tags, ok := obj["tags"].([]any); ok {
			for _, tag := range tags {
				if t, ok := tag.(string); ok {
					hit.Tags = append(hit.Tags, t)
				}
			}
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			hit.ID, _ = add["id"].(string)
			if c, ok := add["certainty"].(float64); ok {
				hit.Score = c
			}
		}
		if hit.Text == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits
}
