package metaops

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/checksum"
	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/davxml"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/signature"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// s3Dialect serves S3 buckets and Google Cloud Storage through its XML API.
// Directories are key prefixes.
type s3Dialect struct {
	exec *Executor
}

func (d *s3Dialect) Name() string { return "s3" }

// pathStyle reports whether the bucket is the first path segment.
func pathStyle(p *params.RequestParams) bool {
	switch cred := p.Credential.(type) {
	case params.S3Keys:
		return cred.Alternate
	case params.GCloudKey:
		return true
	}
	return p.Protocol == params.ProtocolGCloud
}

// s3Key is the object key u addresses, empty for the bucket itself.
func s3Key(u *uri.URI, alternate bool) string {
	key := strings.TrimPrefix(u.Path(), "/")
	if alternate {
		_, key, _ = strings.Cut(key, "/")
	}
	return key
}

func s3MaxKeys(p *params.RequestParams) int {
	if p.S3MaxKeys > 0 {
		return p.S3MaxKeys
	}
	return params.DefaultS3MaxKeys
}

func s3ListingURI(u *uri.URI, p *params.RequestParams, maxKeys int, delimiter bool) *uri.URI {
	if pathStyle(p) {
		return signature.S3PathStyleListingURI(u, maxKeys, delimiter)
	}
	return signature.S3ListingURI(u, maxKeys, delimiter)
}

func (d *s3Dialect) list(ctx context.Context, lu *uri.URI, p *params.RequestParams) (*davxml.S3Page, error) {
	rep, err := d.exec.Do(ctx, &Call{Method: http.MethodGet, URI: lu, Params: p})
	if err != nil {
		return nil, err
	}
	return davxml.ParseS3Listing(bytes.NewReader(rep.Body))
}

func (d *s3Dialect) StatInfo(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error) {
	key := s3Key(u, pathStyle(p))
	if key == "" {
		return types.DirStat(time.Time{}), nil
	}

	rep, err := d.exec.Do(ctx, &Call{
		Method: http.MethodHead,
		URI:    u,
		Params: p,
		Limit:  -1,
		Accept: []int{http.StatusNotFound},
	})
	if err != nil {
		return types.StatInfo{}, err
	}
	if rep.Status != http.StatusNotFound {
		if strings.HasSuffix(key, "/") {
			return types.DirStat(lastModified(rep.Headers)), nil
		}
		return headStat(rep.Headers), nil
	}

	// no such key; a non-empty prefix is a directory
	page, err := d.list(ctx, s3ListingURI(u, p, 1, false), p)
	if err != nil {
		return types.StatInfo{}, err
	}
	if page.Count == 0 {
		return types.StatInfo{}, daverr.Newf(daverr.FileNotFound, scope, "%s: no such key or prefix", u)
	}
	return types.DirStat(time.Time{}), nil
}

func (d *s3Dialect) ListPage(ctx context.Context, u *uri.URI, p *params.RequestParams, cursor string) ([]davxml.Entry, string, error) {
	lu := s3ListingURI(u, p, s3MaxKeys(p), true)
	if cursor != "" {
		lu = lu.AddQueryParam("marker", cursor)
	}
	page, err := d.list(ctx, lu, p)
	if err != nil {
		return nil, "", err
	}
	if cursor == "" && page.Count == 0 && s3Key(u, pathStyle(p)) != "" {
		return nil, "", daverr.Newf(daverr.IsNotADirectory, scope, "%s: no key under this prefix", u)
	}
	next := ""
	if page.Truncated {
		next = page.Marker
	}
	return page.Entries, next, nil
}

func (d *s3Dialect) DeleteResource(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	_, err := d.exec.Do(ctx, &Call{Method: http.MethodDelete, URI: u, Params: p})
	return err
}

// MakeCollection creates the zero-length "<key>/" directory marker.
func (d *s3Dialect) MakeCollection(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	target := u
	if key := s3Key(u, pathStyle(p)); key != "" && !strings.HasSuffix(key, "/") {
		target = u.WithPath(u.Path() + "/")
	}
	_, err := d.exec.Do(ctx, &Call{Method: http.MethodPut, URI: target, Params: p, Body: []byte{}})
	return err
}

func (d *s3Dialect) Move(_ context.Context, src, _ *uri.URI, _ *params.RequestParams) error {
	return daverr.Newf(daverr.OperationNonSupported, scope, "%s: move is not supported on S3", src)
}

func (d *s3Dialect) Checksum(ctx context.Context, u *uri.URI, p *params.RequestParams, algo string) (string, error) {
	rep, err := d.exec.Do(ctx, &Call{Method: http.MethodHead, URI: u, Params: p, Limit: -1})
	if err != nil {
		return "", err
	}
	if name, ok := checksum.AmzHeader(algo); ok {
		if v, ok := rep.Header(name); ok {
			if sum, ok := checksum.DecodeBase64Hex(v); ok {
				return sum, nil
			}
		}
	}
	if strings.EqualFold(algo, "md5") {
		if etag, ok := rep.Header("ETag"); ok {
			if sum, ok := checksum.FromETag(etag); ok {
				return sum, nil
			}
		}
	}
	if sum, ok := checksum.Extract(rep.Headers, algo); ok {
		return sum, nil
	}
	return "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: no %s checksum stored for this object", u, algo)
}
