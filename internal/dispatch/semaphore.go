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

// Package dispatch throttles concurrent in-flight batch dispatches and
// drives each dispatch's retry loop against the worker fleet.
package dispatch

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore whose threshold can change at runtime.
// Acquire, Release and SetThreshold are mutually exclusive under a single
// mutex, and SetThreshold wakes every waiter so newly eligible ones can
// proceed.
type Semaphore struct {
	mu        sync.Mutex
	cond      *sync.Cond
	inflight  int
	threshold int
}

// NewSemaphore builds a Semaphore with the given initial threshold. A
// threshold of 0 means "block new dispatches" until raised.
func NewSemaphore(threshold int) *Semaphore {
	s := &Semaphore{threshold: threshold}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until in-flight < threshold, then increments in-flight. It
// returns early with ctx.Err() if ctx is cancelled first.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Cooperatively watch ctx in a side goroutine and broadcast so a
	// blocked Wait() can re-check ctx.Err(). sync.Cond has no native
	// context support.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Holding the lock orders this broadcast after Acquire's own
			// ctx.Err() check, so the wakeup cannot be lost.
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight >= s.threshold {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.inflight++
	return nil
}

// Release decrements in-flight (never below zero) and wakes waiters.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// SetThreshold updates the ceiling and wakes every waiter so any newly
// eligible acquire can proceed. Setting the same value as before is a
// documented no-op for waiters already below the old threshold: the
// broadcast is harmless since Acquire re-checks its condition.
func (s *Semaphore) SetThreshold(k int) {
	s.mu.Lock()
	s.threshold = k
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Threshold returns the current ceiling.
func (s *Semaphore) Threshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Inflight returns the current in-flight count.
func (s *Semaphore) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}
