// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the public file API. A Context owns the redirection
// cache and the session pool shared by every operation issued through it.
package client

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/env"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/redirect"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/session"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

const scope = "client"

// Options configure a Context.
type Options struct {
	Redirect redirect.Options
	// SessionCaching keeps idle connections for reuse. Forced off by
	// ZAPDAV_DISABLE_SESSION_CACHING.
	SessionCaching bool
}

func DefaultOptions() Options {
	return Options{
		Redirect:       redirect.DefaultOptions(),
		SessionCaching: true,
	}
}

// Context is safe for concurrent use.
type Context struct {
	opts     Options
	factory  *session.Factory
	resolver *redirect.Resolver
	exec     *metaops.Executor
}

func New(opts Options) *Context {
	f := session.NewFactory()
	f.SetCaching(opts.SessionCaching && !env.SessionCachingDisabled())
	r := redirect.New(opts.Redirect)
	return &Context{
		opts:     opts,
		factory:  f,
		resolver: r,
		exec:     metaops.NewExecutor(request.NewTransport(f), r),
	}
}

// NewDefault is New(DefaultOptions()).
func NewDefault() *Context {
	return New(DefaultOptions())
}

// Clone returns a Context with the same configuration and empty caches.
func (c *Context) Clone() *Context {
	return New(c.opts)
}

// ClearCaches empties the redirection cache and closes idle sessions.
func (c *Context) ClearCaches() {
	c.resolver.Clear()
	c.factory.Clear()
}

// Close releases idle connections. The Context stays usable.
func (c *Context) Close() {
	c.factory.Clear()
}

func (c *Context) Executor() *metaops.Executor { return c.exec }

func (c *Context) Resolver() *redirect.Resolver { return c.resolver }

func (c *Context) Sessions() *session.Factory { return c.factory }

func (c *Context) chain(u *uri.URI, p *params.RequestParams) *metaops.Chain {
	return metaops.NewChain(c.exec, u, p)
}
