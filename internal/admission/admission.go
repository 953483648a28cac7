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

// Package admission implements the public Coordinator.Embed RPC: validate
// the incoming batch, enqueue it, suspend the caller until its sink is
// fulfilled, and translate the result (or a cancellation) into a
// transport-level response.
package admission

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/metrics"
	"github.com/Accelero/distributed-inference/internal/queue"
)

// Server implements coordinatorpb.CoordinatorServer.
type Server struct {
	coordinatorpb.UnimplementedCoordinatorServer

	Log          *logrus.Logger
	Queue        *queue.Queue
	MaxBatchSize int
}

// Embed validates req, admits it onto the pending queue, and blocks until a
// result is available or the caller's context ends.
func (s *Server) Embed(ctx context.Context, req *coordinatorpb.EmbedRequest) (*coordinatorpb.EmbedResponse, error) {
	n := len(req.Texts)
	if n == 0 {
		s.Log.Info("rejecting empty client batch")
		return nil, status.Error(codes.InvalidArgument, "batch contains no texts")
	}
	if n > s.MaxBatchSize {
		s.Log.WithField("batch_size", n).Info("rejecting oversize client batch")
		return nil, status.Errorf(codes.InvalidArgument, "batch of %d texts exceeds MAX_BATCH_SIZE=%d", n, s.MaxBatchSize)
	}

	entry := queue.NewEntry(req.Texts)
	if !s.Queue.TryPushBack(entry) {
		metrics.QueueFullCount.Inc()
		s.Log.Warn("rejecting client batch, pending queue is full")
		return nil, status.Error(codes.ResourceExhausted, "pending queue is full")
	}
	metrics.RequestCount.Inc()

	select {
	case <-entry.Sink.Done():
		resp := entry.Sink.Result()
		return &resp, nil
	case <-ctx.Done():
		metrics.RequestTimeoutCount.Inc()
		code := codes.Canceled
		if ctx.Err() == context.DeadlineExceeded {
			code = codes.DeadlineExceeded
		}
		// entry.Sink may still be fulfilled later by a dispatcher; Fulfill
		// is a one-shot no-op past this point, so that delivery is
		// silently discarded.
		return nil, status.Error(code, "client cancelled or deadline exceeded while waiting")
	}
}
