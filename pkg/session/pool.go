// Package session keeps idle transport sessions for reuse across requests.
package session

import "sync"

// Pool is a keyed multi-valued store. Several values may share a key;
// Retrieve hands out the oldest one and removes it, so a value is never
// returned twice without being inserted again.
type Pool[T any] struct {
	mu    sync.Mutex
	items map[string][]T
}

func NewPool[T any]() *Pool[T] {
	return &Pool[T]{items: make(map[string][]T)}
}

func (p *Pool[T]) Insert(key string, v T) {
	p.mu.Lock()
	p.items[key] = append(p.items[key], v)
	p.mu.Unlock()
}

// Retrieve removes and returns a value stored under key.
func (p *Pool[T]) Retrieve(key string) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	list := p.items[key]
	if len(list) == 0 {
		return zero, false
	}
	v := list[0]
	list[0] = zero
	if len(list) == 1 {
		delete(p.items, key)
	} else {
		p.items[key] = list[1:]
	}
	return v, true
}

// Clear drops every value and returns them so the caller can release them.
func (p *Pool[T]) Clear() []T {
	p.mu.Lock()
	old := p.items
	p.items = make(map[string][]T)
	p.mu.Unlock()

	var out []T
	for _, list := range old {
		out = append(out, list...)
	}
	return out
}

// Len is the total number of stored values.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, list := range p.items {
		n += len(list)
	}
	return n
}
