// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package metaops

import (
	"context"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/davxml"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// Dialect implements meta operations for one wire protocol.
type Dialect interface {
	Name() string
	StatInfo(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error)
	DeleteResource(ctx context.Context, u *uri.URI, p *params.RequestParams) error
	MakeCollection(ctx context.Context, u *uri.URI, p *params.RequestParams) error
	Move(ctx context.Context, src, dst *uri.URI, p *params.RequestParams) error
	Checksum(ctx context.Context, u *uri.URI, p *params.RequestParams, algo string) (string, error)
	// ListPage returns the entries of one listing page of the collection u.
	// cursor is empty for the first page; next is empty after the last one.
	ListPage(ctx context.Context, u *uri.URI, p *params.RequestParams, cursor string) (entries []davxml.Entry, next string, err error)
}

// DialectFor selects the dialect serving u under p.
func DialectFor(e *Executor, u *uri.URI, p *params.RequestParams) Dialect {
	switch p.Protocol.Resolve(u) {
	case params.ProtocolS3, params.ProtocolGCloud:
		return &s3Dialect{exec: e}
	case params.ProtocolAzure:
		return &azureDialect{exec: e}
	case params.ProtocolHTTP, params.ProtocolSwift:
		return &httpDialect{exec: e, plain: true}
	}
	return &httpDialect{exec: e, auto: p.Protocol == params.ProtocolAuto}
}

// Chain runs meta operations on one URI through its dialect. Directory
// iteration state lives in the Chain, so a Chain must not be shared between
// goroutines.
type Chain struct {
	dialect Dialect
	u       *uri.URI
	params  params.RequestParams

	// listing state
	started bool
	cursor  string
	page    []davxml.Entry
}

// NewChain binds u and a copy of p to the dialect they select.
func NewChain(e *Executor, u *uri.URI, p *params.RequestParams) *Chain {
	c := &Chain{u: u}
	if p != nil {
		c.params = p.Clone()
	} else {
		c.params = params.Default()
	}
	c.dialect = DialectFor(e, u, &c.params)
	return c
}

func (c *Chain) Dialect() Dialect { return c.dialect }

func (c *Chain) URI() *uri.URI { return c.u }

func (c *Chain) done(ctx context.Context, op string, err error) error {
	result := "ok"
	if err != nil {
		result = daverr.KindOf(err).String()
		err = daverr.Prefix(err, op+" ops")
		logger.For(ctx, logger.ScopeChain).Debug().Err(err).Str("uri", c.u.String()).Str("dialect", c.dialect.Name()).Msg(op + " failed")
	}
	MetaOperations.WithLabelValues(c.dialect.Name(), op, result).Inc()
	return err
}

func (c *Chain) StatInfo(ctx context.Context) (types.StatInfo, error) {
	st, err := c.dialect.StatInfo(ctx, c.u, &c.params)
	return st, c.done(ctx, "stat", err)
}

func (c *Chain) DeleteResource(ctx context.Context) error {
	return c.done(ctx, "delete", c.dialect.DeleteResource(ctx, c.u, &c.params))
}

func (c *Chain) MakeCollection(ctx context.Context) error {
	return c.done(ctx, "mkdir", c.dialect.MakeCollection(ctx, c.u, &c.params))
}

func (c *Chain) Move(ctx context.Context, dst *uri.URI) error {
	if err := dst.Err(); err != nil {
		return c.done(ctx, "move", err)
	}
	return c.done(ctx, "move", c.dialect.Move(ctx, c.u, dst, &c.params))
}

func (c *Chain) Checksum(ctx context.Context, algo string) (string, error) {
	sum, err := c.dialect.Checksum(ctx, c.u, &c.params, algo)
	return sum, c.done(ctx, "checksum", err)
}

// NextSubItem advances the directory listing by one entry. ok is false once
// the listing is exhausted; the listing cannot be restarted.
func (c *Chain) NextSubItem(ctx context.Context) (entry davxml.Entry, ok bool, err error) {
	for len(c.page) == 0 {
		if c.started && c.cursor == "" {
			return davxml.Entry{}, false, nil
		}
		entries, next, err := c.dialect.ListPage(ctx, c.u, &c.params, c.cursor)
		if err != nil {
			// a failed page ends the listing
			c.started, c.cursor = true, ""
			return davxml.Entry{}, false, c.done(ctx, "listing", err)
		}
		c.started, c.cursor, c.page = true, next, entries
	}
	entry, c.page = c.page[0], c.page[1:]
	return entry, true, nil
}

// Close drops the buffered listing page.
func (c *Chain) Close() {
	c.page = nil
	c.started, c.cursor = true, ""
}
