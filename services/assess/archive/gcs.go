// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive ships finished assessment reports to object storage
// for long-term retention. The run store keeps the operational copy;
// the archive exists so auditors can pull reports without access to
// the service.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
)

// Archiver writes reports to a GCS bucket.
//
// Thread Safety: Archiver is safe for concurrent use.
type Archiver struct {
	client *storage.Client
	bucket string
}

// Options configures the archiver.
type Options struct {
	// Bucket is the destination bucket name. Required.
	Bucket string

	// Anonymous skips credential lookup. For emulators
	// (STORAGE_EMULATOR_HOST) and public test buckets.
	Anonymous bool
}

// New creates an archiver bound to a bucket.
//
// Inputs:
//   - ctx: Used for client construction only.
//   - opts: Bucket name and auth mode.
//
// Outputs:
//   - *Archiver: The configured archiver.
//   - error: Missing bucket or client construction failure.
func New(ctx context.Context, opts Options) (*Archiver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket must not be empty")
	}

	var clientOpts []option.ClientOption
	if opts.Anonymous {
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: creating storage client: %w", err)
	}
	return &Archiver{client: client, bucket: opts.Bucket}, nil
}

// ObjectKey builds the archive path for a report. Layout groups by
// target then framework so a per-system audit is one prefix listing.
func ObjectKey(report *phases.Report, runID string) string {
	return fmt.Sprintf("reports/%s/%s/%s-%s.json",
		report.Target,
		report.Framework,
		report.GeneratedAt.UTC().Format("20060102T150405Z"),
		runID,
	)
}

// Store uploads one report.
//
// Inputs:
//   - ctx: Bounds the upload.
//   - report: The finished report. Must not be nil.
//   - runID: The run the report came from; part of the object key.
//
// Outputs:
//   - string: The object key written.
//   - error: Encoding or upload failure.
func (a *Archiver) Store(ctx context.Context, report *phases.Report, runID string) (string, error) {
	if report == nil {
		return "", fmt.Errorf("archive: report must not be nil")
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encoding report for run %s: %w", runID, err)
	}

	key := ObjectKey(report, runID)
	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.Metadata = map[string]string{
		"run_id":    runID,
		"framework": report.Framework,
		"target":    report.Target,
	}

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: uploading %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: finalizing %s: %w", key, err)
	}

	slog.Info("report archived",
		slog.String("bucket", a.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(payload)),
	)
	return key, nil
}

// Close releases the underlying client.
func (a *Archiver) Close() error { return a.client.Close() }
