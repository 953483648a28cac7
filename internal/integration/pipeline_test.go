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

// Package integration wires admission, the pending queue, the batcher and
// the dispatcher together against a fake worker transport, checking the
// end-to-end response shape without a live network.
package integration

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/Accelero/distributed-inference/internal/admission"
	"github.com/Accelero/distributed-inference/internal/batch"
	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/dispatch"
	"github.com/Accelero/distributed-inference/internal/queue"
)

// echoWorker always answers OK, returning one deterministic embedding per
// input text, regardless of how many texts are coalesced into the batch.
type echoWorker struct{}

func (echoWorker) Heartbeat(ctx context.Context, in *coordinatorpb.HeartbeatRequest, opts ...grpc.CallOption) (*coordinatorpb.HeartbeatResponse, error) {
	return &coordinatorpb.HeartbeatResponse{Status: coordinatorpb.HeartbeatStatusOK}, nil
}

func (echoWorker) Infer(ctx context.Context, in *coordinatorpb.InferRequest, opts ...grpc.CallOption) (*coordinatorpb.InferResponse, error) {
	embeddings := make([]coordinatorpb.Embedding, len(in.InputData))
	for i := range in.InputData {
		embeddings[i] = coordinatorpb.Embedding{Vector: []float32{float32(i)}}
	}
	return &coordinatorpb.InferResponse{
		WorkerId:   "echo-worker",
		Code:       coordinatorpb.InferStatusOK,
		Ids:        in.Ids,
		Embeddings: embeddings,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fakeDialer struct{}

func (fakeDialer) Dial(ctx context.Context, addr string) (coordinatorpb.WorkerClient, io.Closer, error) {
	return echoWorker{}, nopCloser{}, nil
}

type fixedPicker struct{}

func (fixedPicker) Next() (string, error) { return "10.0.0.1", nil }

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TestPipelineCoalescesAndReturnsEveryClientResult admits three concurrent
// client batches of varying size and asserts that each receives exactly one
// response carrying exactly its own embedding count.
func TestPipelineCoalescesAndReturnsEveryClientResult(t *testing.T) {
	log := newTestLogger()
	q := queue.New(250)
	sem := dispatch.NewSemaphore(4)

	dispatcher := &dispatch.Dispatcher{
		Log:        log,
		Picker:     fixedPicker{},
		Dialer:     fakeDialer{},
		WorkerPort: 50051,
		MaxRetries: 3,
	}
	batcher := &batch.Batcher{
		Log:          log,
		Queue:        q,
		Sem:          sem,
		Dispatcher:   dispatcher,
		MaxBatchSize: 20,
		MaxBatchWait: 10 * time.Millisecond,
	}
	server := &admission.Server{Log: log, Queue: q, MaxBatchSize: 20}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go batcher.Run(ctx)

	cases := [][]string{
		{"a"},
		{"b", "c"},
		{"d"},
	}

	var wg sync.WaitGroup
	results := make([]*coordinatorpb.EmbedResponse, len(cases))
	for i, texts := range cases {
		i, texts := i, texts
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := server.Embed(context.Background(), &coordinatorpb.EmbedRequest{Texts: texts})
			if err != nil {
				t.Errorf("client %d: unexpected error: %v", i, err)
				return
			}
			results[i] = resp
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("clients never received a response")
	}

	for i, texts := range cases {
		resp := results[i]
		if resp == nil {
			continue
		}
		if resp.Code != coordinatorpb.ReturnCodeOK {
			t.Errorf("client %d: expected OK, got %+v", i, resp)
			continue
		}
		if len(resp.Embeddings) != len(texts) {
			t.Errorf("client %d: expected %d embeddings, got %d", i, len(texts), len(resp.Embeddings))
		}
	}
}
