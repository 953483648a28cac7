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

package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestSemaphoreAcquireRespectsThreshold(t *testing.T) {
	sem := NewSemaphore(2)
	ctx := context.Background()

	if err := sem.Acquire(ctx); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if err := sem.Acquire(ctx); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if got := sem.Inflight(); got != 2 {
		t.Fatalf("inflight = %d, want 2", got)
	}

	acquired := make(chan struct{})
	go func() {
		_ = sem.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked at threshold 2")
	case <-time.After(50 * time.Millisecond):
	}

	sem.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("third acquire never proceeded after release")
	}
}

func TestSemaphoreSetThresholdWakesWaiters(t *testing.T) {
	sem := NewSemaphore(0)
	ctx := context.Background()

	acquired := make(chan struct{})
	go func() {
		_ = sem.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block at threshold 0")
	case <-time.After(50 * time.Millisecond):
	}

	sem.SetThreshold(1)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire never woke after threshold raised")
	}
}

func TestSemaphoreReleaseNeverGoesNegative(t *testing.T) {
	sem := NewSemaphore(5)
	sem.Release()
	if got := sem.Inflight(); got != 0 {
		t.Fatalf("inflight = %d, want 0", got)
	}
}

func TestSemaphoreAcquireCancelled(t *testing.T) {
	sem := NewSemaphore(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sem.Acquire(ctx); err == nil {
		t.Fatal("expected acquire on a cancelled context to return an error")
	}
}

func TestSemaphoreIdenticalThresholdIsHarmless(t *testing.T) {
	sem := NewSemaphore(3)
	sem.SetThreshold(3)
	if got := sem.Threshold(); got != 3 {
		t.Fatalf("threshold = %d, want 3", got)
	}
}
