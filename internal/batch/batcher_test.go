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

package batch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Accelero/distributed-inference/internal/dispatch"
	"github.com/Accelero/distributed-inference/internal/queue"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	batches  []*queue.InferenceBatch
	finished bool
	done     chan struct{}
	delay    time.Duration
}

func (r *recordingDispatcher) Run(ctx context.Context, sem *dispatch.Semaphore, b *queue.InferenceBatch) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
	sem.Release()
	select {
	case r.done <- struct{}{}:
	default:
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBatcherCoalescesWithinBudget(t *testing.T) {
	q := queue.New(10)
	sem := dispatch.NewSemaphore(10)
	rec := &recordingDispatcher{done: make(chan struct{}, 1)}
	b := &Batcher{
		Log:          newTestLogger(),
		Queue:        q,
		Sem:          sem,
		Dispatcher:   rec,
		MaxBatchSize: 20,
		MaxBatchWait: 10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	q.TryPushBack(queue.NewEntry([]string{"a"}))
	q.TryPushBack(queue.NewEntry([]string{"b", "c"}))
	q.TryPushBack(queue.NewEntry([]string{"d"}))

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("batch never dispatched")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 1 {
		t.Fatalf("expected one coalesced batch, got %d", len(rec.batches))
	}
	if rec.batches[0].Len() != 4 {
		t.Fatalf("expected T=4, got %d", rec.batches[0].Len())
	}
}

func TestBatcherWaitDrainsSpawnedDispatchers(t *testing.T) {
	q := queue.New(10)
	sem := dispatch.NewSemaphore(10)
	rec := &recordingDispatcher{done: make(chan struct{}, 1), delay: 20 * time.Millisecond}
	b := &Batcher{
		Log:          newTestLogger(),
		Queue:        q,
		Sem:          sem,
		Dispatcher:   rec,
		MaxBatchSize: 20,
		MaxBatchWait: time.Millisecond,
	}

	runDone := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(runDone)
	}()

	q.TryPushBack(queue.NewEntry([]string{"a"}))

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("batch never dispatched")
	}
	q.Close()

	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("batcher never exited after queue close")
	}
	b.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.finished {
		t.Fatal("Wait returned before the spawned dispatcher finished")
	}
}

func TestBatcherRequeuesOversizeEntry(t *testing.T) {
	q := queue.New(10)
	sem := dispatch.NewSemaphore(10)
	rec := &recordingDispatcher{done: make(chan struct{}, 2)}
	b := &Batcher{
		Log:          newTestLogger(),
		Queue:        q,
		Sem:          sem,
		Dispatcher:   rec,
		MaxBatchSize: 20,
		MaxBatchWait: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	first := make([]string, 18)
	for i := range first {
		first[i] = "a"
	}
	second := make([]string, 5)
	for i := range second {
		second[i] = "b"
	}
	q.TryPushBack(queue.NewEntry(first))
	q.TryPushBack(queue.NewEntry(second))

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.batches)
		rec.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected two batches (first alone, requeued second next cycle)")
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.batches[0].Len() != 18 {
		t.Fatalf("first batch should be T=18 alone, got %d", rec.batches[0].Len())
	}
	if rec.batches[1].Len() != 5 {
		t.Fatalf("second batch should be the requeued T=5, got %d", rec.batches[1].Len())
	}
}
