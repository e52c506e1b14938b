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

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/internal/pipeline"
	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// Processor runs one workload to completion.
type Processor interface {
	Process(ctx context.Context, msg workload.Message) (*pipeline.LaunchStageIO, error)
}

// Options tune a Consumer.
type Options struct {
	MaxConcurrent int64
	DedupWindow   time.Duration
	ErrorBackoff  time.Duration
}

// Consumer pulls messages from a Source and processes each on its own
// goroutine, at most MaxConcurrent at a time. It stops receiving while the
// dataplane is disabled; work already started always finishes.
type Consumer struct {
	source    Source
	processor Processor
	opts      Options
	sem       *semaphore.Weighted
	seen      *cache.Cache
	logger    logging.Logger

	mu      sync.Mutex
	enabled bool
	wake    chan struct{}

	wg sync.WaitGroup
}

// NewConsumer creates a Consumer. It starts enabled.
func NewConsumer(source Source, processor Processor, opts Options, logger logging.Logger) *Consumer {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 30 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	return &Consumer{
		source:    source,
		processor: processor,
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		seen:      cache.New(opts.DedupWindow, 2*opts.DedupWindow),
		logger:    logger,
		enabled:   true,
		wake:      make(chan struct{}),
	}
}

// OnDataplaneConfig pauses or resumes receiving. It is registered as an
// identity listener.
func (c *Consumer) OnDataplaneConfig(cfg controlplane.DataplaneConfig) {
	c.SetEnabled(cfg.DataplaneEnabled)
}

// SetEnabled pauses (false) or resumes (true) receiving.
func (c *Consumer) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if enabled {
		close(c.wake)
		c.logger.InfoEvent("Queue consumption resumed")
	} else {
		c.wake = make(chan struct{})
		c.logger.WarnEvent("Queue consumption paused, dataplane disabled")
	}
}

// Enabled reports whether the consumer is receiving.
func (c *Consumer) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Consumer) waitEnabled(ctx context.Context) error {
	c.mu.Lock()
	enabled, wake := c.enabled, c.wake
	c.mu.Unlock()
	if enabled {
		return nil
	}
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run receives until ctx is done or the source closes, then waits for
// in-flight workloads. In-flight workloads are not cancelled with ctx.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoEvent("Queue consumer started", "maxConcurrent", c.opts.MaxConcurrent)
	defer c.logger.InfoEvent("Queue consumer stopped")

	workCtx := context.WithoutCancel(ctx)
	var runErr error

	for {
		if err := c.waitEnabled(ctx); err != nil {
			break
		}
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		msg, err := c.source.Receive(ctx)
		if err != nil {
			c.sem.Release(1)
			if stop, fatal := c.handleReceiveError(ctx, err); stop {
				runErr = fatal
				break
			}
			continue
		}

		if msg.AutoID != "" {
			if err := c.seen.Add(msg.AutoID, struct{}{}, cache.DefaultExpiration); err != nil {
				c.sem.Release(1)
				messagesTotal.WithLabelValues("duplicate").Inc()
				c.logger.InfoEvent("Dropped redelivered message", "autoId", msg.AutoID, "workloadId", msg.WorkloadID)
				continue
			}
		}

		messagesTotal.WithLabelValues("received").Inc()
		inflightWorkloads.Inc()
		c.wg.Add(1)
		go func(msg workload.Message) {
			defer func() {
				inflightWorkloads.Dec()
				c.sem.Release(1)
				c.wg.Done()
			}()
			_, _ = c.processor.Process(workCtx, msg)
		}(msg)
	}

	c.logger.InfoEvent("Draining in-flight workloads")
	c.wg.Wait()
	return runErr
}

// handleReceiveError reports whether the loop must stop and with what error.
func (c *Consumer) handleReceiveError(ctx context.Context, err error) (bool, error) {
	var decodeErr *DecodeError
	switch {
	case ctx.Err() != nil:
		return true, nil
	case errors.Is(err, ErrNoMessage):
		return false, nil
	case errors.Is(err, ErrClosed):
		return true, nil
	case errors.As(err, &decodeErr):
		messagesTotal.WithLabelValues("undecodable").Inc()
		c.logger.ErrorEvent(err, "Dropped undecodable message", "raw", truncate(decodeErr.Raw, 256))
		return false, nil
	}

	messagesTotal.WithLabelValues("error").Inc()
	c.logger.ErrorEvent(err, "Failed to receive message", "backoff", c.opts.ErrorBackoff.String())
	select {
	case <-ctx.Done():
		return true, nil
	case <-time.After(c.opts.ErrorBackoff):
		return false, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
