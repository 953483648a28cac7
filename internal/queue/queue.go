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

// Package queue holds the pending request queue that sits between admission
// and the batcher. Unlike a plain channel, oversize arrivals that the
// batcher can't fit into the current batch must be pushed back onto the
// *front* of the queue rather than dropped, so the queue is a small
// doubly-linked list (container/list) rather than a bare chan.
package queue

import (
	"container/list"
	"sync"
	"time"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
)

// ResultSink receives exactly one fulfillment for a single admitted client
// batch. Fulfill is safe to call more than once; only the first call has
// effect.
type ResultSink struct {
	once sync.Once
	done chan struct{}

	mu       sync.Mutex
	response coordinatorpb.EmbedResponse
}

// NewResultSink builds an unfulfilled sink.
func NewResultSink() *ResultSink {
	return &ResultSink{done: make(chan struct{})}
}

// Fulfill resolves the sink with resp. Only the first call across the
// sink's lifetime has any effect; later calls are silently discarded, per
// the cancellation contract in admission.
func (s *ResultSink) Fulfill(resp coordinatorpb.EmbedResponse) {
	s.once.Do(func() {
		s.mu.Lock()
		s.response = resp
		s.mu.Unlock()
		close(s.done)
	})
}

// Done returns a channel closed once the sink has been fulfilled.
func (s *ResultSink) Done() <-chan struct{} {
	return s.done
}

// Result returns the fulfilled response. Callers must only call this after
// Done() has closed.
func (s *ResultSink) Result() coordinatorpb.EmbedResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response
}

// Entry is one admitted ClientBatch awaiting a batch assignment.
type Entry struct {
	Texts []string
	Sink  *ResultSink
}

// NewEntry builds an Entry with an unfulfilled sink.
func NewEntry(texts []string) *Entry {
	return &Entry{
		Texts: texts,
		Sink:  NewResultSink(),
	}
}

// Queue is a bounded FIFO of *Entry supporting push-to-back (normal
// admission) and push-to-front (the batcher requeuing an entry it couldn't
// fit this round). It is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    *list.List
	capacity int
	closed   bool
}

// New builds a Queue with the given capacity. capacity <= 0 means unbounded.
func New(capacity int) *Queue {
	q := &Queue{
		items:    list.New(),
		capacity: capacity,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Len returns the current number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// TryPushBack appends e to the tail if there is room, returning false if the
// queue is at capacity. Used by admission for new arrivals.
func (q *Queue) TryPushBack(e *Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		return false
	}
	q.items.PushBack(e)
	q.notEmpty.Signal()
	return true
}

// PushFront reinserts e at the head, ignoring capacity. Used by the batcher
// to requeue an entry that didn't fit in the current batch; capacity is not
// re-checked because the entry was already admitted once.
func (q *Queue) PushFront(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushFront(e)
	q.notEmpty.Signal()
}

// PopFront blocks until an entry is available or the queue is closed, then
// removes and returns the head entry. Returns ok=false only once Close has
// been called and the queue has drained.
func (q *Queue) PopFront() (e *Entry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(*Entry), true
}

// PopFrontTimeout behaves like PopFront but gives up after timeout elapses,
// returning ok=false. Used by the batcher's adaptive fill loop, where a
// single caller waits with a shrinking budget; unlike spawning a second
// goroutine to race against a timer, this does all its waiting on the
// calling goroutine so a timeout never silently steals an entry destined
// for a later batch.
func (q *Queue) PopFrontTimeout(timeout time.Duration) (e *Entry, ok bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.AfterFunc(remaining, func() { q.notEmpty.Broadcast() })
		q.notEmpty.Wait()
		timer.Stop()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(*Entry), true
}

// Close wakes any blocked PopFront callers so they can observe shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// SidecarEntry records how many of an InferenceBatch's texts came from one
// ClientBatch's sink, in the order they were appended.
type SidecarEntry struct {
	Sink  *ResultSink
	Count int
}

// InferenceBatch is the batcher's output: a concatenation of one or more
// ClientBatches' texts, a parallel slice of fresh per-text IDs, and a
// sidecar recording how to re-split any worker response back to the
// originating sinks.
type InferenceBatch struct {
	Texts   []string
	IDs     []string
	Sidecar []SidecarEntry
}

// Len returns the batch's total text count T.
func (b *InferenceBatch) Len() int {
	return len(b.Texts)
}
