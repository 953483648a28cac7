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

// Package batch implements the single-task batcher: it drains the pending
// queue, coalesces client batches into one InferenceBatch bounded by size
// and an adaptive wait, and hands each finished batch to a dispatcher.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/dispatch"
	"github.com/Accelero/distributed-inference/internal/queue"
)

// Dispatch is the subset of dispatch.Dispatcher the batcher needs: spawn a
// dispatcher for a finished batch, fire-and-forget.
type Dispatch interface {
	Run(ctx context.Context, sem *dispatch.Semaphore, batch *queue.InferenceBatch)
}

// Batcher is the single long-running coalescing task.
type Batcher struct {
	Log          *logrus.Logger
	Queue        *queue.Queue
	Sem          *dispatch.Semaphore
	Dispatcher   Dispatch
	MaxBatchSize int
	MaxBatchWait time.Duration

	dispatchers sync.WaitGroup
}

// Run loops building and submitting InferenceBatches until ctx is
// cancelled or the queue closes. It is meant to run as the single batcher
// goroutine.
func (b *Batcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		ib, ok := b.buildOne(ctx)
		if !ok {
			return
		}
		b.submit(ctx, ib)
	}
}

// buildOne blocks for the first entry, then adaptively coalesces further
// entries. Returns ok=false once the queue has closed (shutdown).
func (b *Batcher) buildOne(ctx context.Context) (*queue.InferenceBatch, bool) {
	var first *queue.Entry
	for {
		e, ok := b.Queue.PopFront()
		if !ok {
			return nil, false
		}
		if len(e.Texts) == 0 {
			b.Log.Warn("batcher observed an empty client batch, skipping")
			continue
		}
		first = e
		break
	}

	ib := &queue.InferenceBatch{}
	b.append(ib, first)
	t0 := time.Now()

	for ib.Len() < b.MaxBatchSize {
		w := time.Duration(float64(b.MaxBatchWait) * float64(ib.Len()) / float64(b.MaxBatchSize))
		remaining := w - time.Since(t0)
		if remaining < 0 {
			remaining = 0
		}

		entry, gotEntry := b.Queue.PopFrontTimeout(remaining)
		if !gotEntry {
			break
		}
		if ib.Len()+len(entry.Texts) > b.MaxBatchSize {
			b.Queue.PushFront(entry)
			break
		}
		b.append(ib, entry)
	}

	return ib, true
}

func (b *Batcher) append(ib *queue.InferenceBatch, e *queue.Entry) {
	ib.Texts = append(ib.Texts, e.Texts...)
	for range e.Texts {
		ib.IDs = append(ib.IDs, uuid.NewString())
	}
	ib.Sidecar = append(ib.Sidecar, queue.SidecarEntry{Sink: e.Sink, Count: len(e.Texts)})
}

func (b *Batcher) submit(ctx context.Context, ib *queue.InferenceBatch) {
	if err := b.Sem.Acquire(ctx); err != nil {
		// Shutting down before a permit was available; fail every sink
		// rather than leaking them forever.
		offset := 0
		for _, side := range ib.Sidecar {
			var ids []string
			if offset+side.Count <= len(ib.IDs) {
				ids = ib.IDs[offset : offset+side.Count]
			}
			side.Sink.Fulfill(coordinatorpb.EmbedResponse{
				Ids:       ids,
				Code:      coordinatorpb.ReturnCodeError,
				ReturnMsg: "coordinator shutting down",
			})
			offset += side.Count
		}
		return
	}
	// Dispatchers outlive loop cancellation: shutdown stops admitting and
	// drains in-flight work rather than aborting its RPCs, so the spawned
	// goroutine gets a context detached from ctx's cancellation.
	dctx := context.WithoutCancel(ctx)
	b.dispatchers.Add(1)
	go func() {
		defer b.dispatchers.Done()
		b.Dispatcher.Run(dctx, b.Sem, ib)
	}()
}

// Wait blocks until every dispatcher spawned so far has finished. Call
// after Run has returned (queue closed) to drain in-flight batches.
func (b *Batcher) Wait() {
	b.dispatchers.Wait()
}
