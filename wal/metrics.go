// Adapted from dreamsxin/wal (HashiCorp-style segmented WAL).
// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type walMetrics struct {
	appends      prometheus.Counter
	appendsFull  prometheus.Counter
	bytesWritten prometheus.Counter
	rotations    prometheus.Counter
	deletions    prometheus.Counter
	openSegments prometheus.Gauge
}

func newWALMetrics(reg prometheus.Registerer) *walMetrics {
	return &walMetrics{
		appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_wal_appends_total",
			Help: "Number of records appended to the open WAL segment.",
		}),
		appendsFull: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_wal_append_full_total",
			Help: "Number of appends rejected because the open segment was full.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_wal_bytes_written_total",
			Help: "Bytes written to WAL segment files, including frame overhead.",
		}),
		rotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_wal_rotations_total",
			Help: "Number of times the open segment was sealed and replaced.",
		}),
		deletions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ingest_wal_segment_deletions_total",
			Help: "Number of closed segments removed after persistence.",
		}),
		openSegments: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ingest_wal_closed_segments",
			Help: "Number of closed segments currently retained on disk.",
		}),
	}
}
