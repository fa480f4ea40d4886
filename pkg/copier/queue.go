// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package copier moves data between remote endpoints: a bounded worker pool
// for streamed GET to PUT copies and the server-driven third-party COPY.
package copier

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push once the queue no longer accepts items.
var ErrQueueClosed = errors.New("copier: queue closed")

// Queue is a bounded FIFO. Push blocks while the queue is full and Pop
// blocks while it is empty.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items    []T
	capacity int
	closed   bool // no more pushes, pops drain
	shutdown bool // everything wakes up and leaves
}

func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed && !q.shutdown {
		q.notFull.Wait()
	}
	if q.closed || q.shutdown {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// Pop returns the oldest item. ok is false after Shutdown, or once the
// queue is closed and drained.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && !q.shutdown {
		q.notEmpty.Wait()
	}
	if q.shutdown || len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	q.notFull.Signal()
	return item, true
}

// Close stops accepting items; queued items can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Shutdown wakes every blocked producer and consumer. Queued items are
// dropped and returned.
func (q *Queue[T]) Shutdown() []T {
	q.mu.Lock()
	q.shutdown = true
	dropped := q.items
	q.items = nil
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	return dropped
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
