// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package copier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
)

// Job is one unit of work, typically one file copy.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Pool runs jobs on a fixed set of workers fed by a bounded Queue. A failing
// job does not stop the others; failures are reported by Wait.
type Pool struct {
	queue *Queue[Job]
	g     *errgroup.Group
	stop  func() bool

	mu   sync.Mutex
	errs []error
}

// NewPool starts cfg.Workers workers. They stop when ctx is done, after
// Shutdown, or once Wait has drained the queue.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	p := &Pool{queue: NewQueue[Job](cfg.QueueSize), g: new(errgroup.Group)}
	// a canceled context must also wake workers blocked in Pop
	p.stop = context.AfterFunc(ctx, func() { p.queue.Shutdown() })
	for i := 0; i < cfg.Workers; i++ {
		p.g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	logger.Scoped(logger.ScopeCopy).Debug().Int("workers", cfg.Workers).Int("queue", cfg.QueueSize).Msg("copier: pool started")
	return p
}

func (p *Pool) work(ctx context.Context) {
	log := logger.For(ctx, logger.ScopeCopy)
	for {
		job, ok := p.queue.Pop()
		if !ok {
			return
		}
		QueueDepth.Set(float64(p.queue.Len()))

		start := time.Now()
		err := job.Run(ctx)
		JobDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			JobsTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("job", job.Name).Msg("copier: job failed")
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
			continue
		}
		JobsTotal.WithLabelValues("completed").Inc()
		log.Debug().Str("job", job.Name).Msg("copier: job completed")
	}
}

// Submit queues j, blocking while the queue is full.
func (p *Pool) Submit(j Job) error {
	if err := p.queue.Push(j); err != nil {
		return err
	}
	QueueDepth.Set(float64(p.queue.Len()))
	return nil
}

// Wait closes the queue, lets the workers finish every queued job and
// returns the joined job errors.
func (p *Pool) Wait() error {
	p.queue.Close()
	p.g.Wait()
	p.stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Shutdown drops queued jobs and waits for the in-flight ones.
func (p *Pool) Shutdown() {
	dropped := p.queue.Shutdown()
	if len(dropped) > 0 {
		logger.Scoped(logger.ScopeCopy).Info().Int("dropped", len(dropped)).Msg("copier: pool shut down with queued jobs")
	}
	p.g.Wait()
	p.stop()
	QueueDepth.Set(0)
}
