package client

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/rangeio"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// maxParallelRanges bounds the range requests one PreadVec keeps in flight.
const maxParallelRanges = 4

// Pread reads len(buf) bytes of u starting at offset.
func (c *Context) Pread(ctx context.Context, u *uri.URI, p *params.RequestParams, buf []byte, offset int64) (int, error) {
	n, err := c.PreadVec(ctx, u, p, []rangeio.IOVec{{Offset: offset, Buf: buf}})
	return int(n), err
}

// PreadVec fills every vec from u. Ranges are packed into as few Range
// headers as fit rangeio.MaxHeaderSize; each header is one GET. Short reads
// at the end of the resource are not errors.
func (c *Context) PreadVec(ctx context.Context, u *uri.URI, p *params.RequestParams, vecs []rangeio.IOVec) (int64, error) {
	if len(vecs) == 0 {
		return 0, nil
	}
	headers := rangeio.GenerateRangeHeaders(rangeio.MaxHeaderSize, rangeio.VecProvider(vecs))
	out := make([]int, len(vecs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRanges)
	start := 0
	for _, h := range headers {
		group, gout := vecs[start:start+h.Count], out[start:start+h.Count]
		start += h.Count
		g.Go(func() error {
			return c.readRanges(gctx, u, p, h.Value, group, gout)
		})
	}
	err := g.Wait()

	var total int64
	for _, n := range out {
		total += int64(n)
	}
	return total, daverr.Prefix(err, "vector read")
}

// readRanges issues one ranged GET and dispatches the answer on its status
// and content type.
func (c *Context) readRanges(ctx context.Context, u *uri.URI, p *params.RequestParams, rangeValue string, vecs []rangeio.IOVec, out []int) error {
	call := &metaops.Call{Method: http.MethodGet, URI: u, Params: p}
	call.Headers.Set("Range", rangeValue)
	req, err := c.exec.Open(ctx, call)
	if err != nil {
		return err
	}
	defer req.EndRequest()

	body := request.Body(req)
	if req.StatusCode() != http.StatusPartialContent {
		logger.For(ctx, logger.ScopeHTTP).Debug().Int("status", req.StatusCode()).Msg("ranges ignored by server, scattering full body")
		_, err := rangeio.ScatterFull(body, vecs, out)
		return err
	}

	ct, _ := req.AnswerHeader("Content-Type")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "multipart/") {
		boundary, err := rangeio.ExtractBoundary(ct)
		if err != nil {
			return err
		}
		_, err = rangeio.ReadMultipart(body, boundary, vecs, out)
		return err
	}

	// single part: the server answered with one range, possibly coalesced
	cr, ok := req.AnswerHeader("Content-Range")
	if !ok {
		return daverr.New(daverr.InvalidServerResponse, scope, "206 answer without Content-Range")
	}
	offset, _, err := rangeio.ParseContentRange(cr)
	if err != nil {
		return err
	}
	shifted := make([]rangeio.IOVec, len(vecs))
	for i, v := range vecs {
		if v.Offset < offset {
			return daverr.Newf(daverr.InvalidServerResponse, scope, "answer range starts at %d after requested offset %d", offset, v.Offset)
		}
		shifted[i] = rangeio.IOVec{Offset: v.Offset - offset, Buf: v.Buf}
	}
	_, err = rangeio.ScatterFull(body, shifted, out)
	return err
}
