package client

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

const transferBlockSize = 64 << 10

// Transfer tunes Get and Put. A nil *Transfer is valid.
type Transfer struct {
	// Cancel is polled between blocks; returning true aborts the transfer
	// with a Canceled error.
	Cancel func() bool
	// Progress receives the running byte count after every block.
	Progress func(done int64)
	// Limiter throttles the transfer in bytes per second. Its burst must
	// be at least 64KiB; see NewBandwidthLimit.
	Limiter *rate.Limiter
}

// NewBandwidthLimit returns a limiter for bytesPerSec.
func NewBandwidthLimit(bytesPerSec int64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), max(int(bytesPerSec), transferBlockSize))
}

func (t *Transfer) canceled() bool {
	return t != nil && t.Cancel != nil && t.Cancel()
}

func (t *Transfer) advance(ctx context.Context, n int, done int64) error {
	if t == nil {
		return nil
	}
	if t.Limiter != nil {
		if err := t.Limiter.WaitN(ctx, n); err != nil {
			return daverr.Wrap(err, daverr.Canceled, scope, "bandwidth limiter")
		}
	}
	if t.Progress != nil {
		t.Progress(done)
	}
	return nil
}

func errCanceled() error {
	return daverr.New(daverr.Canceled, scope, "transfer canceled")
}

// copyBlocks moves src to dst block by block, honoring t.
func (t *Transfer) copyBlocks(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := utils.GetBlock(transferBlockSize)
	defer utils.PutBlock(buf)

	var done int64
	for {
		if t.canceled() {
			return done, errCanceled()
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return done, daverr.Wrap(err, daverr.SystemError, scope, "write")
			}
			done += int64(n)
			if err := t.advance(ctx, n, done); err != nil {
				return done, err
			}
		}
		if rerr == io.EOF {
			return done, nil
		}
		if rerr != nil {
			return done, rerr
		}
	}
}

// progressReader applies t to an upload body.
type progressReader struct {
	ctx  context.Context
	t    *Transfer
	r    io.Reader
	done int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.t.canceled() {
		return 0, errCanceled()
	}
	if len(b) > transferBlockSize {
		b = b[:transferBlockSize]
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if aerr := p.t.advance(p.ctx, n, p.done); aerr != nil {
			return n, aerr
		}
	}
	return n, err
}

// Get streams u into w and returns the number of bytes written.
func (c *Context) Get(ctx context.Context, u *uri.URI, p *params.RequestParams, w io.Writer, t *Transfer) (int64, error) {
	req, err := c.exec.Open(ctx, &metaops.Call{Method: http.MethodGet, URI: u, Params: p})
	if err != nil {
		return 0, daverr.Prefix(err, "get")
	}
	defer req.EndRequest()

	n, err := t.copyBlocks(ctx, w, request.Body(req))
	TransferredBytes.WithLabelValues("get").Add(float64(n))
	if err != nil {
		req.DoNotReuseSession()
		return n, daverr.Prefix(err, "get")
	}
	return n, nil
}

// Put uploads size bytes of body to u. body is re-read from offset zero
// whenever the request has to be replayed (redirection, retry). Azure
// uploads larger than the block size go through Put Block / Put Block List.
func (c *Context) Put(ctx context.Context, u *uri.URI, p *params.RequestParams, body io.ReaderAt, size int64, t *Transfer) error {
	rp := resolveParams(p)
	if rp.Protocol.Resolve(u) == params.ProtocolAzure && size > azureBlockSize(&rp) {
		return c.azureUpload(ctx, u, &rp, io.NewSectionReader(body, 0, size), t)
	}

	call := c.putCall(u, &rp, size)
	call.BodyFunc = func() (io.ReadCloser, error) {
		return io.NopCloser(&progressReader{ctx: ctx, t: t, r: io.NewSectionReader(body, 0, size)}), nil
	}
	_, err := c.exec.Do(ctx, call)
	if err == nil {
		TransferredBytes.WithLabelValues("put").Add(float64(size))
	}
	return daverr.Prefix(err, "put")
}

// PutStream uploads r to u. A stream cannot be replayed, so a redirected or
// retried upload fails with InvalidArgument unless it goes through Azure
// blocks. size is -1 when unknown.
func (c *Context) PutStream(ctx context.Context, u *uri.URI, p *params.RequestParams, r io.Reader, size int64, t *Transfer) error {
	rp := resolveParams(p)
	if rp.Protocol.Resolve(u) == params.ProtocolAzure && (size < 0 || size > azureBlockSize(&rp)) {
		return c.azureUpload(ctx, u, &rp, r, t)
	}

	body := &progressReader{ctx: ctx, t: t, r: r}
	used := false
	call := c.putCall(u, &rp, size)
	call.BodyFunc = func() (io.ReadCloser, error) {
		if used {
			return nil, daverr.New(daverr.InvalidArgument, scope, "stream body cannot be replayed")
		}
		used = true
		return io.NopCloser(body), nil
	}
	_, err := c.exec.Do(ctx, call)
	TransferredBytes.WithLabelValues("put").Add(float64(body.done))
	return daverr.Prefix(err, "put")
}

func (c *Context) putCall(u *uri.URI, p *params.RequestParams, size int64) *metaops.Call {
	call := &metaops.Call{Method: http.MethodPut, URI: u, Params: p, Size: size}
	if p.Protocol.Resolve(u) == params.ProtocolAzure {
		call.Headers.Set("x-ms-blob-type", "BlockBlob")
	}
	return call
}

func resolveParams(p *params.RequestParams) params.RequestParams {
	if p == nil {
		return params.Default()
	}
	return p.Clone()
}
