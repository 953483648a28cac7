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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/transport"
)

// RunHealthLoop sweeps the currently published IP set every interval,
// issuing a Heartbeat to each concurrently with a per-probe deadline, and
// recording the result into health. Each sweep starts a fresh ticker period
// measured from the sweep's own start, so the next sweep begins at least
// interval after this one started, never stacking on slow probes.
func RunHealthLoop(ctx context.Context, log *logrus.Logger, dialer transport.Dialer, workerPort int, set *Set, health *HealthMap, interval, probeDeadline time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep := func() {
		ips := set.Snapshot()
		health.Prune(ips)

		g, gctx := errgroup.WithContext(ctx)
		for _, ip := range ips {
			ip := ip
			g.Go(func() error {
				probeCtx, cancel := context.WithTimeout(gctx, probeDeadline)
				defer cancel()
				health.Set(ip, probeOne(probeCtx, log, dialer, ip, workerPort))
				return nil
			})
		}
		_ = g.Wait()
	}

	sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

func probeOne(ctx context.Context, log *logrus.Logger, dialer transport.Dialer, ip string, port int) Health {
	addr := fmt.Sprintf("%s:%d", ip, port)
	client, closer, err := dialer.Dial(ctx, addr)
	if err != nil {
		log.WithError(err).WithField("worker_addr", addr).Debug("heartbeat dial failed")
		return Unavailable
	}
	defer closer.Close()

	resp, err := client.Heartbeat(ctx, &coordinatorpb.HeartbeatRequest{})
	if err != nil {
		log.WithError(err).WithField("worker_addr", addr).Debug("heartbeat RPC failed")
		return Unavailable
	}

	switch resp.Status {
	case coordinatorpb.HeartbeatStatusOK:
		return OK
	case coordinatorpb.HeartbeatStatusDegraded:
		return Degraded
	default:
		return Unavailable
	}
}
