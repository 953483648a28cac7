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

// Package config holds the coordinator's startup configuration, populated
// from flags with environment-variable overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every coordinator tunable.
type Config struct {
	MaxBatchSize          int
	MaxBatchWait          time.Duration
	MaxQueueSize          int
	MaxInflightBatchesMult int
	MaxRetries            int
	WorkerServiceName     string
	WorkerPort            int
	CoordinatorPort       int
	ResolveInterval       time.Duration
	HealthInterval        time.Duration
	HeartbeatTimeout      time.Duration
	MetricsAddr           string
	LogPath               string
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		MaxBatchSize:           20,
		MaxBatchWait:           10 * time.Millisecond,
		MaxQueueSize:           250,
		MaxInflightBatchesMult: 4,
		MaxRetries:             3,
		WorkerServiceName:      "worker",
		WorkerPort:             50051,
		CoordinatorPort:        50050,
		ResolveInterval:        10 * time.Second,
		HealthInterval:         5 * time.Second,
		HeartbeatTimeout:       2 * time.Second,
		MetricsAddr:            ":8000",
		LogPath:                "/logs/coordinator.log",
	}
}

// Parse builds a Config from command-line flags in args (typically
// os.Args[1:]), seeded with environment-variable overrides and falling back
// to Default() otherwise. Flags explicitly passed in args take precedence
// over both.
func Parse(args []string) (Config, error) {
	def := fromEnv(Default())

	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)
	cfg := Config{}
	fs.IntVar(&cfg.MaxBatchSize, "max_batch_size", def.MaxBatchSize, "cap on texts per inference/client batch")
	fs.DurationVar(&cfg.MaxBatchWait, "max_batch_wait", def.MaxBatchWait, "batcher's adaptive fill budget")
	fs.IntVar(&cfg.MaxQueueSize, "max_queue_size", def.MaxQueueSize, "pending queue capacity")
	fs.IntVar(&cfg.MaxInflightBatchesMult, "max_inflight_batches_mult", def.MaxInflightBatchesMult, "dispatch ceiling multiplier per resolved worker")
	fs.IntVar(&cfg.MaxRetries, "max_retries", def.MaxRetries, "dispatcher attempts beyond the first")
	fs.StringVar(&cfg.WorkerServiceName, "worker_service_name", def.WorkerServiceName, "DNS name resolved to worker IPs")
	fs.IntVar(&cfg.WorkerPort, "worker_port", def.WorkerPort, "worker RPC port")
	fs.IntVar(&cfg.CoordinatorPort, "coordinator_port", def.CoordinatorPort, "coordinator RPC listen port")
	fs.DurationVar(&cfg.ResolveInterval, "resolve_interval", def.ResolveInterval, "worker set resolution interval")
	fs.DurationVar(&cfg.HealthInterval, "health_interval", def.HealthInterval, "health sweep interval")
	fs.DurationVar(&cfg.HeartbeatTimeout, "heartbeat_timeout", def.HeartbeatTimeout, "per-probe heartbeat deadline")
	fs.StringVar(&cfg.MetricsAddr, "metrics_addr", def.MetricsAddr, "Prometheus scrape listen address")
	fs.StringVar(&cfg.LogPath, "log_path", def.LogPath, "additional JSON log file path (empty disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parsing coordinator flags: %w", err)
	}
	return cfg, nil
}

// fromEnv overlays environment-variable overrides onto base. Durations are
// given in seconds, fractions allowed.
func fromEnv(base Config) Config {
	if v := os.Getenv("MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxBatchSize = n
		}
	}
	if v := os.Getenv("MAX_BATCH_WAIT"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			base.MaxBatchWait = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxQueueSize = n
		}
	}
	if v := os.Getenv("MAX_INFLIGHT_BATCHES_MULT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxInflightBatchesMult = n
		}
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxRetries = n
		}
	}
	if v := os.Getenv("WORKER_SERVICE_NAME"); v != "" {
		base.WorkerServiceName = v
	}
	if v := os.Getenv("WORKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.WorkerPort = n
		}
	}
	if v := os.Getenv("COORDINATOR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.CoordinatorPort = n
		}
	}
	if v := os.Getenv("RESOLVE_INTERVAL"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			base.ResolveInterval = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("HEALTH_INTERVAL"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			base.HealthInterval = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("HEARTBEAT_TIMEOUT"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			base.HeartbeatTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("COORDINATOR_LOG_PATH"); v != "" {
		base.LogPath = v
	}
	return base
}
