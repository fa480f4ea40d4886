package client

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/copier"
	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// CopyOptions tunes CopyTree.
type CopyOptions struct {
	// Workers bounds the files copied at once.
	Workers int
	// SrcParams and DstParams default to the zero-argument Default().
	SrcParams *params.RequestParams
	DstParams *params.RequestParams
	// Cancel is polled by every worker between blocks.
	Cancel func() bool
	// OnFile is called after each file copy with its outcome.
	OnFile func(src, dst *uri.URI, size int64, err error)
}

// CopyTree copies src to dst by streaming each file through this host.
// Collections are walked recursively and recreated on the destination.
// Every file is attempted; the joined failures are returned.
func (c *Context) CopyTree(ctx context.Context, src, dst *uri.URI, opts CopyOptions) error {
	info, err := c.Stat(ctx, src, opts.SrcParams)
	if err != nil {
		return daverr.Prefix(err, "copy")
	}

	pool := copier.NewPool(ctx, copier.PoolConfig{Workers: opts.Workers})
	if !info.IsDir() {
		err = c.submitCopy(pool, src, dst, info.Size, opts)
	} else {
		err = c.walk(ctx, pool, src, dst, opts)
	}
	if err != nil {
		pool.Shutdown()
		return daverr.Prefix(err, "copy")
	}
	// job errors carry their file already
	return pool.Wait()
}

func (c *Context) walk(ctx context.Context, pool *copier.Pool, src, dst *uri.URI, opts CopyOptions) error {
	if opts.Cancel != nil && opts.Cancel() {
		return errCanceled()
	}
	if err := c.Mkdir(ctx, dst, opts.DstParams); err != nil {
		// MKCOL on an existing collection answers 405
		if info, serr := c.Stat(ctx, dst, opts.DstParams); serr != nil || !info.IsDir() {
			return err
		}
	}

	d, err := c.OpenDir(ctx, src, opts.SrcParams)
	if err != nil {
		return err
	}
	entries, err := d.ReadAll(ctx)
	d.Close()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			continue
		}
		childSrc, childDst := childURI(src, e.Name), childURI(dst, e.Name)
		if e.Info.IsDir() {
			if err := c.walk(ctx, pool, childSrc, childDst, opts); err != nil {
				return err
			}
			continue
		}
		if err := c.submitCopy(pool, childSrc, childDst, e.Info.Size, opts); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) submitCopy(pool *copier.Pool, src, dst *uri.URI, size int64, opts CopyOptions) error {
	return pool.Submit(copier.Job{
		Name: src.String(),
		Run: func(ctx context.Context) error {
			n, err := c.copyFile(ctx, src, dst, size, opts)
			err = daverr.Prefix(err, "copy "+src.String())
			if opts.OnFile != nil {
				opts.OnFile(src, dst, n, err)
			}
			return err
		},
	})
}

// copyFile pipes a GET of src into a PUT of dst.
func (c *Context) copyFile(ctx context.Context, src, dst *uri.URI, size int64, opts CopyOptions) (int64, error) {
	log := logger.For(ctx, logger.ScopeCopy)
	t := &Transfer{Cancel: opts.Cancel}

	pr, pw := io.Pipe()
	got := make(chan int64, 1)
	go func() {
		n, err := c.Get(ctx, src, opts.SrcParams, pw, t)
		pw.CloseWithError(err)
		got <- n
	}()

	err := c.PutStream(ctx, dst, opts.DstParams, pr, size, t)
	// unblocks the reader side when the upload stopped early
	pr.CloseWithError(io.ErrClosedPipe)
	n := <-got
	if err != nil {
		return n, err
	}
	log.Debug().Str("src", src.String()).Str("dst", dst.String()).Int64("size", n).Msg("file copied")
	return n, nil
}

func childURI(parent *uri.URI, name string) *uri.URI {
	p := parent.Path()
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return parent.WithPath(path.Join(p, name))
}

// ThirdPartyCopy asks the server holding src to push it directly to dst.
func (c *Context) ThirdPartyCopy(ctx context.Context, src, dst *uri.URI, p *params.RequestParams, opts copier.ThirdPartyOptions) error {
	return copier.ThirdParty(ctx, c.exec, src, dst, p, opts)
}
