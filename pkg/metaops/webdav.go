package metaops

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/checksum"
	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/davxml"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// httpDialect serves plain HTTP and WebDAV endpoints. In plain mode only
// HEAD based operations are issued; in auto mode a server refusing PROPFIND
// is treated as plain HTTP.
type httpDialect struct {
	exec  *Executor
	plain bool
	auto  bool
}

func (d *httpDialect) Name() string {
	if d.plain {
		return "http"
	}
	return "webdav"
}

// headStat builds a StatInfo out of the answer headers of a HEAD.
func headStat(h types.HeaderVec) types.StatInfo {
	var size int64
	if v, ok := h.Get("Content-Length"); ok {
		size, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	return types.FileStat(size, lastModified(h))
}

func lastModified(h types.HeaderVec) (t time.Time) {
	if v, ok := h.Get("Last-Modified"); ok {
		t, _ = http.ParseTime(strings.TrimSpace(v))
	}
	return t
}

func (d *httpDialect) head(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error) {
	rep, err := d.exec.Do(ctx, &Call{Method: http.MethodHead, URI: u, Params: p, Limit: -1})
	if err != nil {
		return types.StatInfo{}, err
	}
	return headStat(rep.Headers), nil
}

// propfind returns the parsed multistatus and ok=false when the server
// does not speak WebDAV and auto detection is on.
func (d *httpDialect) propfind(ctx context.Context, u *uri.URI, p *params.RequestParams, depth string) ([]davxml.Entry, bool, error) {
	c := &Call{
		Method: "PROPFIND",
		URI:    u,
		Params: p,
		Body:   []byte(davxml.PropfindBody),
	}
	c.Headers.Set("Depth", depth)
	c.Headers.Set("Content-Type", "text/xml; charset=UTF-8")
	if d.auto {
		c.Accept = []int{http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusNotImplemented}
	}

	rep, err := d.exec.Do(ctx, c)
	if err != nil {
		return nil, true, err
	}
	if d.auto && rep.Status != http.StatusMultiStatus {
		logger.For(ctx, logger.ScopeChain).Debug().Int("status", rep.Status).Str("uri", u.String()).Msg("PROPFIND refused, falling back to plain HTTP")
		return nil, false, nil
	}
	entries, err := davxml.ParseMultistatus(bytes.NewReader(rep.Body))
	if err != nil {
		return nil, true, err
	}
	return entries, true, nil
}

func (d *httpDialect) StatInfo(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error) {
	if d.plain {
		return d.head(ctx, u, p)
	}
	entries, ok, err := d.propfind(ctx, u, p, "0")
	if err != nil {
		return types.StatInfo{}, err
	}
	if !ok {
		return d.head(ctx, u, p)
	}
	return entries[0].Info, nil
}

func (d *httpDialect) ListPage(ctx context.Context, u *uri.URI, p *params.RequestParams, cursor string) ([]davxml.Entry, string, error) {
	if d.plain {
		return nil, "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: listing needs WebDAV", u)
	}
	if cursor != "" {
		return nil, "", nil
	}
	entries, ok, err := d.propfind(ctx, u, p, "1")
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: server does not support PROPFIND", u)
	}
	// the first response describes the collection itself
	if !entries[0].Info.IsDir() {
		return nil, "", daverr.Newf(daverr.IsNotADirectory, scope, "%s is not a collection", u)
	}
	return entries[1:], "", nil
}

func (d *httpDialect) DeleteResource(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	rep, err := d.exec.Do(ctx, &Call{
		Method: http.MethodDelete,
		URI:    u,
		Params: p,
		Accept: []int{http.StatusMultiStatus},
	})
	if err != nil {
		return err
	}
	if rep.Status != http.StatusMultiStatus {
		return nil
	}

	// a 207 lists the members that could not be removed
	statuses, err := davxml.ParseResponseStatuses(bytes.NewReader(rep.Body))
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if err := daverr.CheckStatus(st.Status, scope, "DELETE "+st.Href); err != nil {
			return err
		}
	}
	return nil
}

func (d *httpDialect) MakeCollection(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	if d.plain {
		return daverr.Newf(daverr.OperationNonSupported, scope, "%s: MKCOL needs WebDAV", u)
	}
	_, err := d.exec.Do(ctx, &Call{Method: "MKCOL", URI: u, Params: p})
	return err
}

func (d *httpDialect) Move(ctx context.Context, src, dst *uri.URI, p *params.RequestParams) error {
	if d.plain {
		return daverr.Newf(daverr.OperationNonSupported, scope, "%s: MOVE needs WebDAV", src)
	}
	var discard types.HeaderVec
	signed, err := Sign(ctx, "MOVE", dst, p, &discard)
	if err != nil {
		return err
	}
	c := &Call{Method: "MOVE", URI: src, Params: p}
	c.Headers.Set("Destination", signed.URL().String())
	_, err = d.exec.Do(ctx, c)
	return err
}

func (d *httpDialect) Checksum(ctx context.Context, u *uri.URI, p *params.RequestParams, algo string) (string, error) {
	c := &Call{Method: http.MethodHead, URI: u, Params: p, Limit: -1}
	c.Headers.Set("Want-Digest", algo)
	rep, err := d.exec.Do(ctx, c)
	if err != nil {
		return "", err
	}
	if sum, ok := checksum.Extract(rep.Headers, algo); ok {
		return sum, nil
	}
	if strings.EqualFold(algo, "md5") {
		if v, ok := rep.Header("Content-MD5"); ok {
			if sum, ok := checksum.DecodeBase64Hex(v); ok {
				return sum, nil
			}
		}
	}
	return "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: server did not return a %s digest", u, algo)
}

// DetectWebDAV asks the server which methods it allows on u and reports
// whether it speaks WebDAV.
func DetectWebDAV(ctx context.Context, e *Executor, u *uri.URI, p *params.RequestParams) (bool, error) {
	rep, err := e.Do(ctx, &Call{Method: http.MethodOptions, URI: u, Params: p, Limit: -1})
	if err != nil {
		return false, err
	}
	if rep.Headers.Has("DAV") {
		return true, nil
	}
	for _, allow := range rep.Headers.Values("Allow") {
		for _, m := range strings.Split(allow, ",") {
			switch strings.ToUpper(strings.TrimSpace(m)) {
			case "PROPFIND", "MKCOL":
				return true, nil
			}
		}
	}
	return false, nil
}
