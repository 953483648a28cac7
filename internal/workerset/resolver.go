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

package workerset

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolver is the name-resolution callback: hostname -> IPs. In production
// this is net.DefaultResolver.LookupHost; tests supply a fake.
type Resolver func(ctx context.Context, host string) ([]string, error)

// ThresholdSetter is the subset of dispatch.Semaphore the resolver drives.
type ThresholdSetter interface {
	SetThreshold(k int)
}

// RunResolveLoop periodically resolves serviceName to IPs, publishes the
// deduplicated set into set, and recomputes the dispatch threshold whenever
// the set actually changes; re-resolving to an identical set must not
// perturb the threshold. Runs until ctx is cancelled.
func RunResolveLoop(ctx context.Context, log *logrus.Logger, resolve Resolver, serviceName string, set *Set, sem ThresholdSetter, interval time.Duration, inflightMult int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	resolveOnce := func() {
		ips, err := resolve(ctx, serviceName)
		if err != nil {
			log.WithError(err).WithField("worker_service_name", serviceName).
				Warn("resolve failed, keeping previous worker set")
			return
		}
		if set.Replace(ips) {
			n := set.Len()
			sem.SetThreshold(n * inflightMult)
			log.WithField("worker_count", n).Info("worker set updated")
		}
	}

	resolveOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolveOnce()
		}
	}
}
