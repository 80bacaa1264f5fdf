// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package progress

import (
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxSink mirrors progress events into InfluxDB as time-series
// points, one measurement per event. Writes are asynchronous through
// the client's non-blocking write API so a slow or absent InfluxDB
// never delays a wave.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxSink connects the sink to an InfluxDB instance. The
// connection is lazy; a bad URL surfaces as dropped writes, not here.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	// Drain write errors into the log instead of letting them pile up.
	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("InfluxDB progress write failed", slog.String("error", err.Error()))
		}
	}()

	return &InfluxSink{client: client, writeAPI: writeAPI}
}

func (s *InfluxSink) Report(ev Event) {
	p := influxdb2.NewPoint("assessment_progress",
		map[string]string{
			"target": ev.Target,
			"phase":  ev.Phase,
		},
		map[string]any{
			"current": ev.Current,
			"total":   ev.Total,
			"message": ev.Message,
		},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

// Close flushes pending points and shuts the client down.
func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}
