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

// Package main is the coordinator's entry point: it wires the admission
// front-end, pending queue, batcher, dispatch pool and worker-set trackers
// together, starts the public Coordinator RPC listener plus the Prometheus
// scrape endpoint, and drains cleanly on SIGINT/SIGTERM. Workers are only
// dialed as clients; the coordinator serves no worker-facing RPC.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Accelero/distributed-inference/internal/admission"
	"github.com/Accelero/distributed-inference/internal/batch"
	"github.com/Accelero/distributed-inference/internal/config"
	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/dispatch"
	"github.com/Accelero/distributed-inference/internal/logging"
	"github.com/Accelero/distributed-inference/internal/metrics"
	"github.com/Accelero/distributed-inference/internal/queue"
	"github.com/Accelero/distributed-inference/internal/transport"
	"github.com/Accelero/distributed-inference/internal/workerset"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(logging.Options{LogPath: cfg.LogPath})
	log.WithField("config", fmt.Sprintf("%+v", cfg)).Info("starting coordinator")

	pendingQueue := queue.New(cfg.MaxQueueSize)
	sem := dispatch.NewSemaphore(0) // no workers resolved yet; blocks dispatch until the first resolve.

	workers := workerset.NewSet()
	health := workerset.NewHealthMap()
	picker := workerset.NewPicker(workers, health)

	dialer := transport.GRPCDialer{}
	dispatcher := &dispatch.Dispatcher{
		Log:        log,
		Picker:     picker,
		Dialer:     dialer,
		WorkerPort: cfg.WorkerPort,
		MaxRetries: cfg.MaxRetries,
	}

	batcher := &batch.Batcher{
		Log:          log,
		Queue:        pendingQueue,
		Sem:          sem,
		Dispatcher:   dispatcher,
		MaxBatchSize: cfg.MaxBatchSize,
		MaxBatchWait: cfg.MaxBatchWait,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go workerset.RunResolveLoop(ctx, log, dnsResolve, cfg.WorkerServiceName, workers, sem, cfg.ResolveInterval, cfg.MaxInflightBatchesMult)
	go workerset.RunHealthLoop(ctx, log, dialer, cfg.WorkerPort, workers, health, cfg.HealthInterval, cfg.HeartbeatTimeout)
	go metrics.SampleQueueSize(ctx, pendingQueue.Len)
	go func() {
		metrics.WorkerCount.Set(0)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.WorkerCount.Set(float64(workers.Len()))
			}
		}
	}()
	batcherDone := make(chan struct{})
	go func() {
		batcher.Run(ctx)
		close(batcherDone)
	}()

	admissionServer := &admission.Server{
		Log:          log,
		Queue:        pendingQueue,
		MaxBatchSize: cfg.MaxBatchSize,
	}

	grpcServer := grpc.NewServer()
	coordinatorpb.RegisterCoordinatorServer(grpcServer, admissionServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.CoordinatorPort))
	if err != nil {
		log.WithError(err).Fatal("failed to listen for coordinator RPC")
	}

	go func() {
		log.WithField("port", cfg.CoordinatorPort).Info("coordinator RPC listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("coordinator RPC server stopped")
		}
	}()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("metrics endpoint listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, draining")

	// Stop admitting first, then drain: in-flight Embed calls stay blocked
	// on their sinks until the batcher and its dispatchers finish, so the
	// pipeline's context must not be cancelled until they have drained.
	grpcServer.GracefulStop()
	pendingQueue.Close()
	<-batcherDone
	batcher.Wait()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("metrics server shutdown failed")
	}

	log.Info("coordinator stopped")
}

// dnsResolve is the production Resolver: a plain net.DefaultResolver host
// lookup against the worker service name.
func dnsResolve(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}
