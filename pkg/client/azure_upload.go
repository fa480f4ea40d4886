package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

func azureBlockSize(p *params.RequestParams) int64 {
	if p.AzureBlockSize > 0 {
		return p.AzureBlockSize
	}
	return params.DefaultAzureBlockSize
}

// azureBlockID is base64("<prefix><index %010d>"). Every ID of one blob
// must have the same length.
func azureBlockID(prefix string, index int) string {
	return base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "%s%010d", prefix, index))
}

func azureBlockList(ids []string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?><BlockList>`)
	for _, id := range ids {
		b.WriteString("<Latest>")
		b.WriteString(id)
		b.WriteString("</Latest>")
	}
	b.WriteString("</BlockList>")
	return []byte(b.String())
}

// azureUpload sends r as a sequence of blocks and commits them.
func (c *Context) azureUpload(ctx context.Context, u *uri.URI, p *params.RequestParams, r io.Reader, t *Transfer) error {
	log := logger.For(ctx, logger.ScopeAzure)
	prefix := uuid.NewString()
	buf := utils.GetBlock(int(azureBlockSize(p)))
	defer utils.PutBlock(buf)

	var (
		ids  []string
		done int64
	)
	for {
		if t.canceled() {
			return errCanceled()
		}
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			id := azureBlockID(prefix, len(ids))
			call := &metaops.Call{
				Method: http.MethodPut,
				URI:    u.AddQueryParam("comp", "block").AddQueryParam("blockid", id),
				Params: p,
				Body:   buf[:n],
			}
			if len(ids) == 0 {
				call.Headers.Set("x-ms-blob-type", "BlockBlob")
			}
			if _, err := c.exec.Do(ctx, call); err != nil {
				return daverr.Prefix(err, fmt.Sprintf("put block %d", len(ids)))
			}
			ids = append(ids, id)
			done += int64(n)
			TransferredBytes.WithLabelValues("put").Add(float64(n))
			if err := t.advance(ctx, n, done); err != nil {
				return err
			}
			log.Debug().Str("uri", u.String()).Int("block", len(ids)).Int("size", n).Msg("block uploaded")
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return daverr.Wrap(rerr, daverr.SystemError, scope, "read upload source")
		}
	}

	if len(ids) == 0 {
		call := &metaops.Call{Method: http.MethodPut, URI: u, Params: p, Body: []byte{}}
		call.Headers.Set("x-ms-blob-type", "BlockBlob")
		_, err := c.exec.Do(ctx, call)
		return daverr.Prefix(err, "put")
	}

	call := &metaops.Call{
		Method: http.MethodPut,
		URI:    u.AddQueryParam("comp", "blocklist"),
		Params: p,
		Body:   azureBlockList(ids),
	}
	call.Headers.Set("Content-Type", "application/xml")
	_, err := c.exec.Do(ctx, call)
	return daverr.Prefix(err, "put block list")
}
