// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the coordinator's Prometheus surface: a counter of
// accepted requests, a live gauge of pending-queue depth, a live gauge of
// resolved worker count, and counters for the two rejection paths (queue
// full, client cancelled or deadline exceeded while waiting).
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_request_count",
		Help: "Total Embed requests accepted onto the pending queue.",
	})

	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_queue_size",
		Help: "Current number of entries waiting in the pending queue.",
	})

	WorkerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_worker_count",
		Help: "Current number of resolved worker addresses.",
	})

	QueueFullCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_queue_full_count",
		Help: "Total Embed requests rejected because the pending queue was full.",
	})

	RequestTimeoutCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_request_timeout_count",
		Help: "Total Embed requests whose caller cancelled or timed out before a result arrived.",
	})
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		QueueSize,
		WorkerCount,
		QueueFullCount,
		RequestTimeoutCount,
	)
}

// SampleQueueSize writes sizeFn's result into the QueueSize gauge every two
// seconds. It blocks until ctx is cancelled.
func SampleQueueSize(ctx context.Context, sizeFn func() int) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			QueueSize.Set(float64(sizeFn()))
		}
	}
}
