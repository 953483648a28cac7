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

// Package transport opens RPC channels to worker addresses. It is factored
// out behind a small Dialer interface so the health loop and dispatcher can
// be tested against fakes instead of a real TCP/gRPC stack.
package transport

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
)

// Dialer opens a channel to a worker at addr ("ip:port") and returns a
// WorkerClient bound to it.
type Dialer interface {
	Dial(ctx context.Context, addr string) (coordinatorpb.WorkerClient, io.Closer, error)
}

// GRPCDialer dials real worker processes over plaintext gRPC. Workers live
// on the trusted cluster network alongside the coordinator; there is no
// inter-service TLS.
type GRPCDialer struct{}

func (GRPCDialer) Dial(ctx context.Context, addr string) (coordinatorpb.WorkerClient, io.Closer, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing worker %s: %w", addr, err)
	}
	return coordinatorpb.NewWorkerClient(conn), conn, nil
}
