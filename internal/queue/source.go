/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package queue receives workload messages and feeds them to the launch
// pipeline with bounded concurrency.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

// ErrNoMessage is returned when a poll timed out without a message.
var ErrNoMessage = errors.New("no message available")

// ErrClosed is returned by a closed source.
var ErrClosed = errors.New("queue source closed")

// DecodeError wraps a message that could not be decoded. The raw payload
// is kept for logging; the message itself is dropped.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable workload message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Source delivers workload messages at least once.
type Source interface {
	// Receive blocks until a message arrives, the poll times out
	// (ErrNoMessage) or ctx is done.
	Receive(ctx context.Context) (workload.Message, error)
	// Publish enqueues a message.
	Publish(ctx context.Context, msg workload.Message) error
	Close() error
}

// Decode parses one raw queue payload.
func Decode(raw []byte) (workload.Message, error) {
	var msg workload.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return workload.Message{}, &DecodeError{Raw: string(raw), Err: err}
	}
	msg.Normalize()
	if err := msg.Validate(); err != nil {
		return workload.Message{}, &DecodeError{Raw: string(raw), Err: err}
	}
	return msg, nil
}

// MemorySource is an in-process queue used for local runs and tests.
type MemorySource struct {
	ch     chan workload.Message
	once   sync.Once
	closed chan struct{}
}

// NewMemorySource returns a MemorySource buffering up to size messages.
func NewMemorySource(size int) *MemorySource {
	return &MemorySource{
		ch:     make(chan workload.Message, size),
		closed: make(chan struct{}),
	}
}

func (s *MemorySource) Receive(ctx context.Context) (workload.Message, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.closed:
		return workload.Message{}, ErrClosed
	case <-ctx.Done():
		return workload.Message{}, ctx.Err()
	}
}

func (s *MemorySource) Publish(ctx context.Context, msg workload.Message) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemorySource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
