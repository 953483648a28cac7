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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Accelero/distributed-inference/internal/coordinatorpb"
	"github.com/Accelero/distributed-inference/internal/queue"
	"github.com/Accelero/distributed-inference/internal/transport"
)

// Picker selects the next worker IP to try.
type Picker interface {
	Next() (string, error)
}

// Dispatcher owns one InferenceBatch's lifetime: pick a worker, call Infer,
// retry on transport failure, fan the response back out to every
// originating sink. Exactly one Dispatcher runs per InferenceBatch, spawned
// fire-and-forget by the batcher.
type Dispatcher struct {
	Log        *logrus.Logger
	Picker     Picker
	Dialer     transport.Dialer
	WorkerPort int
	MaxRetries int
}

// Run drives the pick/call/retry loop and fulfills every sink in batch's
// sidecar exactly once. It always releases sem on return.
func (d *Dispatcher) Run(ctx context.Context, sem *Semaphore, batch *queue.InferenceBatch) {
	defer sem.Release()

	if len(batch.Texts) == 0 {
		d.Log.Warn("dispatcher received an empty inference batch, skipping")
		return
	}

	resp, err := d.attempt(ctx, batch)
	if err != nil {
		d.fulfillAll(batch, coordinatorpb.ReturnCodeError, "max retries exceeded")
		return
	}

	d.deliver(batch, resp)
}

func (d *Dispatcher) attempt(ctx context.Context, batch *queue.InferenceBatch) (*coordinatorpb.InferResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		ip, err := d.Picker.Next()
		if err != nil {
			lastErr = err
		} else {
			resp, callErr := d.call(ctx, ip, batch)
			if callErr == nil {
				return resp, nil
			}
			lastErr = callErr
			d.Log.WithError(callErr).WithField("worker_ip", ip).WithField("attempt", attempt).
				Warn("inference RPC failed, retrying")
		}

		if attempt < d.MaxRetries {
			backoff := time.Duration(float64(attempt+1) * 0.1 * float64(time.Second))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	d.Log.WithError(lastErr).WithField("retry_count", d.MaxRetries).Error("max retries exceeded")
	return nil, lastErr
}

func (d *Dispatcher) call(ctx context.Context, ip string, batch *queue.InferenceBatch) (*coordinatorpb.InferResponse, error) {
	addr := fmt.Sprintf("%s:%d", ip, d.WorkerPort)
	client, closer, err := d.Dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return client.Infer(ctx, &coordinatorpb.InferRequest{
		InputData: batch.Texts,
		Ids:       batch.IDs,
	})
}

// deliver slices resp by sidecar counts and fulfills every sink with its
// own portion of the response.
func (d *Dispatcher) deliver(batch *queue.InferenceBatch, resp *coordinatorpb.InferResponse) {
	if resp.Code != coordinatorpb.InferStatusOK {
		d.fulfillAll(batch, coordinatorpb.ReturnCodeError, "error processing request")
		return
	}
	if len(resp.Embeddings) != batch.Len() || len(resp.Ids) != batch.Len() {
		d.fulfillAll(batch, coordinatorpb.ReturnCodeError, "error processing result")
		return
	}

	offset := 0
	for _, side := range batch.Sidecar {
		ids := resp.Ids[offset : offset+side.Count]
		embeddings := resp.Embeddings[offset : offset+side.Count]
		side.Sink.Fulfill(coordinatorpb.EmbedResponse{
			Ids:        ids,
			Embeddings: embeddings,
			Code:       coordinatorpb.ReturnCodeOK,
			ReturnMsg:  "",
		})
		offset += side.Count
	}
}

// fulfillAll delivers the same failure shape to every sink, slicing request
// IDs per sidecar count so each client still only sees its own IDs.
func (d *Dispatcher) fulfillAll(batch *queue.InferenceBatch, code coordinatorpb.ReturnCode, msg string) {
	offset := 0
	for _, side := range batch.Sidecar {
		var ids []string
		if offset+side.Count <= len(batch.IDs) {
			ids = batch.IDs[offset : offset+side.Count]
		}
		side.Sink.Fulfill(coordinatorpb.EmbedResponse{
			Ids:        ids,
			Embeddings: nil,
			Code:       code,
			ReturnMsg:  msg,
		})
		offset += side.Count
	}
}
