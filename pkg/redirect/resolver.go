// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package redirect caches HTTP redirections so later requests go straight to
// the final destination of a redirect chain.
package redirect

import (
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/env"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

const (
	DefaultCapacity = 256
	// DefaultMaxHops bounds chain resolution; longer chains are reported as
	// loops.
	DefaultMaxHops = 16

	btreeDegree = 8
)

// EvictionPolicy decides what happens when the cache is full.
type EvictionPolicy int

const (
	// EvictClearAll drops the whole cache before inserting a new entry.
	EvictClearAll EvictionPolicy = iota
	// EvictLRU drops the least recently used entry.
	EvictLRU
)

func (p EvictionPolicy) String() string {
	if p == EvictLRU {
		return "lru"
	}
	return "clear-all"
}

type key struct {
	origin string
	method string
}

type entry struct {
	key
	dest *uri.URI
}

func lessEntry(a, b entry) bool {
	if a.origin != b.origin {
		return a.origin < b.origin
	}
	return a.method < b.method
}

// Options configure a Resolver.
type Options struct {
	Capacity int
	Policy   EvictionPolicy
	MaxHops  int
	// Disabled forces the resolver off regardless of the environment.
	Disabled bool
}

func DefaultOptions() Options {
	return Options{
		Capacity: DefaultCapacity,
		Policy:   EvictClearAll,
		MaxHops:  DefaultMaxHops,
	}
}

// Resolver maps (method, origin) to the URI the origin redirected to. Entries
// are ordered by origin so every method of one origin can be dropped with a
// range scan. Destinations are shared by pointer; URIs are immutable.
type Resolver struct {
	mu      sync.Mutex
	active  bool
	opts    Options
	entries *btree.BTreeG[entry]
	// recency order, only with EvictLRU
	lru *simplelru.LRU[key, struct{}]
}

// New returns a resolver. It is inactive when ZAPDAV_DISABLE_REDIRECT_CACHING
// is set or opts.Disabled is true.
func New(opts Options) *Resolver {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	r := &Resolver{
		active:  !opts.Disabled && !env.RedirectCachingDisabled(),
		opts:    opts,
		entries: btree.NewG(btreeDegree, lessEntry),
	}
	if opts.Policy == EvictLRU {
		// only fails for a non-positive size
		r.lru, _ = simplelru.NewLRU[key, struct{}](opts.Capacity, func(k key, _ struct{}) {
			r.entries.Delete(entry{key: k})
		})
	}
	return r
}

// NormalizeMethod upper-cases method and folds HEAD onto GET; both are
// assumed to redirect identically.
func NormalizeMethod(method string) string {
	m := strings.ToUpper(method)
	if m == "HEAD" {
		return "GET"
	}
	return m
}

func (r *Resolver) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Add records that method on origin redirects to dest, replacing any
// previous destination.
func (r *Resolver) Add(method string, origin, dest *uri.URI) {
	if origin == nil || dest == nil {
		return
	}
	k := key{origin: origin.String(), method: NormalizeMethod(method)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}

	_, exists := r.entries.Get(entry{key: k})
	if !exists && r.entries.Len() >= r.opts.Capacity {
		switch r.opts.Policy {
		case EvictLRU:
			// lru.Add below evicts the oldest entry
			RedirectEvictions.WithLabelValues("lru").Inc()
		default:
			RedirectEvictions.WithLabelValues("clear_all").Add(float64(r.entries.Len()))
			r.entries.Clear(false)
		}
	}

	r.entries.ReplaceOrInsert(entry{key: k, dest: dest})
	if r.lru != nil {
		r.lru.Add(k, struct{}{})
	}
	RedirectEntries.Set(float64(r.entries.Len()))

	logger.Scoped(logger.ScopeRedirect).Debug().
		Str("method", k.method).Str("origin", k.origin).Str("dest", dest.String()).
		Msg("cached redirection")
}

// ResolveSingle performs one lookup without following the chain.
func (r *Resolver) ResolveSingle(method string, origin *uri.URI) (*uri.URI, bool) {
	if origin == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(key{origin: origin.String(), method: NormalizeMethod(method)})
}

func (r *Resolver) lookupLocked(k key) (*uri.URI, bool) {
	if !r.active {
		return nil, false
	}
	e, ok := r.entries.Get(entry{key: k})
	if !ok {
		return nil, false
	}
	if r.lru != nil {
		r.lru.Get(k)
	}
	return e.dest, true
}

// Resolve follows the cached chain starting at origin and returns its last
// hop, or nil when origin has no cached redirection. A chain that revisits a
// URI or exceeds the hop bound fails with RedirectionLoop.
func (r *Resolver) Resolve(method string, origin *uri.URI) (*uri.URI, error) {
	if origin == nil {
		return nil, nil
	}
	m := NormalizeMethod(method)

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		current *uri.URI
		visited = map[string]struct{}{origin.String(): {}}
		at      = origin.String()
	)
	for hops := 0; ; hops++ {
		next, ok := r.lookupLocked(key{origin: at, method: m})
		if !ok {
			break
		}
		if hops >= r.opts.MaxHops {
			RedirectLookups.WithLabelValues("loop").Inc()
			return nil, daverr.Newf(daverr.RedirectionLoop, "redirect", "more than %d cached hops from %s", r.opts.MaxHops, origin)
		}
		if _, seen := visited[next.String()]; seen {
			RedirectLookups.WithLabelValues("loop").Inc()
			return nil, daverr.Newf(daverr.RedirectionLoop, "redirect", "cached redirection loop through %s", next)
		}
		visited[next.String()] = struct{}{}
		current, at = next, next.String()
	}

	if current == nil {
		RedirectLookups.WithLabelValues("miss").Inc()
	} else {
		RedirectLookups.WithLabelValues("hit").Inc()
	}
	return current, nil
}

// Clean removes the entry for (method, origin) and then the entries of the
// chain that followed it.
func (r *Resolver) Clean(method string, origin *uri.URI) {
	if origin == nil {
		return
	}
	m := NormalizeMethod(method)

	r.mu.Lock()
	defer r.mu.Unlock()

	at := origin.String()
	visited := make(map[string]struct{})
	for {
		if _, seen := visited[at]; seen {
			break
		}
		visited[at] = struct{}{}

		k := key{origin: at, method: m}
		e, ok := r.entries.Delete(entry{key: k})
		if !ok {
			break
		}
		if r.lru != nil {
			r.lru.Remove(k)
		}
		at = e.dest.String()
	}
	RedirectEntries.Set(float64(r.entries.Len()))
}

// CleanAll removes the entries of every method for origin.
func (r *Resolver) CleanAll(origin *uri.URI) {
	if origin == nil {
		return
	}
	o := origin.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	var doomed []key
	r.entries.AscendGreaterOrEqual(entry{key: key{origin: o}}, func(e entry) bool {
		if e.origin != o {
			return false
		}
		doomed = append(doomed, e.key)
		return true
	})
	for _, k := range doomed {
		r.entries.Delete(entry{key: k})
		if r.lru != nil {
			r.lru.Remove(k)
		}
	}
	RedirectEntries.Set(float64(r.entries.Len()))
}

// Clear drops every cached redirection.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries.Clear(false)
	if r.lru != nil {
		r.lru.Purge()
	}
	RedirectEntries.Set(0)
}

// Len is the number of cached redirections.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}
