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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events most editors and
// configuration managers emit for a single save.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the configuration whenever the file changes and hands
// each successfully validated result to onChange. A reload that fails
// to parse or validate is logged and dropped; the previous
// configuration stays in effect.
//
// Watch blocks until ctx is cancelled.
//
// Inputs:
//   - ctx: Cancellation stops the watcher.
//   - path: The YAML file passed to Load.
//   - onChange: Called with each valid reloaded configuration.
//
// Outputs:
//   - error: Failure to establish the watch. Runtime reload errors are
//     logged, not returned.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic-rename saves replace
	// the inode and a file-level watch goes dead after the first one.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config reload rejected, keeping previous", "path", path, "error", err)
			return
		}
		slog.Info("config reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
