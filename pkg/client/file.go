package client

import (
	"context"

	"github.com/LeeDigitalWorks/zapdav/pkg/davxml"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

func (c *Context) Stat(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error) {
	return c.chain(u, p).StatInfo(ctx)
}

func (c *Context) Delete(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	return c.chain(u, p).DeleteResource(ctx)
}

func (c *Context) Mkdir(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	return c.chain(u, p).MakeCollection(ctx)
}

func (c *Context) Move(ctx context.Context, src, dst *uri.URI, p *params.RequestParams) error {
	return c.chain(src, p).Move(ctx, dst)
}

// Checksum returns the server-side digest of u, hex encoded except for
// the algorithms that are sent raw (UNIXcksum, CRC32c, UNIXsum, ADLER32).
func (c *Context) Checksum(ctx context.Context, u *uri.URI, p *params.RequestParams, algo string) (string, error) {
	return c.chain(u, p).Checksum(ctx, algo)
}

// Dir iterates over a remote collection. It is not safe for concurrent use.
type Dir struct {
	chain *metaops.Chain
	first *davxml.Entry
	done  bool
}

// OpenDir fetches the first listing page of u so that a missing or
// non-directory URI fails here rather than on the first Next.
func (c *Context) OpenDir(ctx context.Context, u *uri.URI, p *params.RequestParams) (*Dir, error) {
	ch := c.chain(u, p)
	e, ok, err := ch.NextSubItem(ctx)
	if err != nil {
		return nil, err
	}
	d := &Dir{chain: ch}
	if ok {
		d.first = &e
	} else {
		d.done = true
	}
	return d, nil
}

// Next returns the next entry; ok is false at the end of the listing.
func (d *Dir) Next(ctx context.Context) (entry davxml.Entry, ok bool, err error) {
	if d.first != nil {
		e := *d.first
		d.first = nil
		return e, true, nil
	}
	if d.done {
		return davxml.Entry{}, false, nil
	}
	e, ok, err := d.chain.NextSubItem(ctx)
	if !ok {
		d.done = true
	}
	return e, ok, err
}

// ReadAll drains the listing.
func (d *Dir) ReadAll(ctx context.Context) ([]davxml.Entry, error) {
	var out []davxml.Entry
	for {
		e, ok, err := d.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}

func (d *Dir) Close() {
	d.first = nil
	d.done = true
	d.chain.Close()
}
