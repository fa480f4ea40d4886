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
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/signature"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// azureDialect serves Azure blob containers. Like S3, directories are
// name prefixes.
type azureDialect struct {
	exec *Executor
}

func (d *azureDialect) Name() string { return "azure" }

func (d *azureDialect) list(ctx context.Context, u *uri.URI, p *params.RequestParams, marker string, maxResults int) (*davxml.AzurePage, error) {
	lu := signature.AzureListingURI(u)
	if maxResults > 0 {
		lu = lu.AddQueryParam("maxresults", strconv.Itoa(maxResults))
	}
	if marker != "" {
		lu = lu.AddQueryParam("marker", marker)
	}
	rep, err := d.exec.Do(ctx, &Call{Method: http.MethodGet, URI: lu, Params: p})
	if err != nil {
		return nil, err
	}
	return davxml.ParseAzureListing(bytes.NewReader(rep.Body), signature.AzureBlobName(u))
}

func (d *azureDialect) StatInfo(ctx context.Context, u *uri.URI, p *params.RequestParams) (types.StatInfo, error) {
	if signature.AzureBlobName(u) == "" {
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
		return headStat(rep.Headers), nil
	}

	page, err := d.list(ctx, u, p, "", 1)
	if err != nil {
		return types.StatInfo{}, err
	}
	if page.Count == 0 {
		return types.StatInfo{}, daverr.Newf(daverr.FileNotFound, scope, "%s: no such blob or prefix", u)
	}
	return types.DirStat(time.Time{}), nil
}

func (d *azureDialect) ListPage(ctx context.Context, u *uri.URI, p *params.RequestParams, cursor string) ([]davxml.Entry, string, error) {
	page, err := d.list(ctx, u, p, cursor, 0)
	if err != nil {
		return nil, "", err
	}
	if cursor == "" && page.Count == 0 && signature.AzureBlobName(u) != "" {
		return nil, "", daverr.Newf(daverr.IsNotADirectory, scope, "%s: no blob under this prefix", u)
	}
	return page.Entries, page.Marker, nil
}

func (d *azureDialect) DeleteResource(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	_, err := d.exec.Do(ctx, &Call{Method: http.MethodDelete, URI: u, Params: p})
	return err
}

// MakeCollection stores an empty "<name>/" block blob as directory
// placeholder.
func (d *azureDialect) MakeCollection(ctx context.Context, u *uri.URI, p *params.RequestParams) error {
	target := u
	if !strings.HasSuffix(u.Path(), "/") {
		target = u.WithPath(u.Path() + "/")
	}
	c := &Call{Method: http.MethodPut, URI: target, Params: p, Body: []byte{}}
	c.Headers.Set("x-ms-blob-type", "BlockBlob")
	_, err := d.exec.Do(ctx, c)
	return err
}

func (d *azureDialect) Move(_ context.Context, src, _ *uri.URI, _ *params.RequestParams) error {
	return daverr.Newf(daverr.OperationNonSupported, scope, "%s: move is not supported on Azure", src)
}

// Checksum only knows md5, which Azure keeps as Content-MD5.
func (d *azureDialect) Checksum(ctx context.Context, u *uri.URI, p *params.RequestParams, algo string) (string, error) {
	if !strings.EqualFold(algo, "md5") {
		return "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: Azure only stores md5 checksums", u)
	}
	rep, err := d.exec.Do(ctx, &Call{Method: http.MethodHead, URI: u, Params: p, Limit: -1})
	if err != nil {
		return "", err
	}
	if v, ok := rep.Header("Content-MD5"); ok {
		if sum, ok := checksum.DecodeBase64Hex(v); ok {
			return sum, nil
		}
	}
	return "", daverr.Newf(daverr.OperationNonSupported, scope, "%s: blob has no Content-MD5", u)
}
