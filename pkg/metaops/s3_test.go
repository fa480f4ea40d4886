package metaops

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s3URI(srv *httptest.Server, path string) *uri.URI {
	return uri.Parse(strings.Replace(srv.URL, "http://", "s3://", 1) + path)
}

func TestS3_Stat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/file.txt":
			w.Header().Set("Content-Length", "11")
			w.Header().Set("Last-Modified", "Wed, 09 Sep 2009 09:20:02 GMT")
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodGet && r.URL.Query().Get("prefix") == "dir/":
			assert.Equal(t, "1", r.URL.Query().Get("max-keys"))
			io.WriteString(w, `<ListBucketResult><Prefix>dir/</Prefix><Contents><Key>dir/x</Key><Size>1</Size></Contents></ListBucketResult>`)
		default:
			io.WriteString(w, `<ListBucketResult><Prefix>`+r.URL.Query().Get("prefix")+`</Prefix></ListBucketResult>`)
		}
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	ctx := context.Background()

	st, err := NewChain(e, s3URI(srv, "/file.txt"), testParams()).StatInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), st.Size)
	assert.False(t, st.IsDir())

	st, err = NewChain(e, s3URI(srv, "/dir"), testParams()).StatInfo(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	_, err = NewChain(e, s3URI(srv, "/missing"), testParams()).StatInfo(ctx)
	assert.True(t, daverr.Is(err, daverr.FileNotFound))

	st, err = NewChain(e, s3URI(srv, "/"), testParams()).StatInfo(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestS3_ListingPages(t *testing.T) {
	t.Parallel()

	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "dir/", q.Get("prefix"))
		assert.Equal(t, "/", q.Get("delimiter"))
		assert.Equal(t, "2", q.Get("max-keys"))
		pages.Add(1)
		if q.Get("marker") == "" {
			io.WriteString(w, `<ListBucketResult><Prefix>dir/</Prefix><IsTruncated>true</IsTruncated>
<Contents><Key>dir/</Key><Size>0</Size></Contents>
<Contents><Key>dir/a</Key><Size>1</Size></Contents></ListBucketResult>`)
			return
		}
		assert.Equal(t, "dir/a", q.Get("marker"))
		io.WriteString(w, `<ListBucketResult><Prefix>dir/</Prefix><IsTruncated>false</IsTruncated>
<Contents><Key>dir/b</Key><Size>2</Size></Contents>
<CommonPrefixes><Prefix>dir/sub/</Prefix></CommonPrefixes></ListBucketResult>`)
	}))
	defer srv.Close()

	p := testParams()
	p.S3MaxKeys = 2
	c := NewChain(newTestExecutor(t), s3URI(srv, "/dir"), p)

	var names []string
	for {
		e, ok, err := c.NextSubItem(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "sub"}, names)
	assert.Equal(t, int32(2), pages.Load())
}

func TestS3_ListingPathStyle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bucket/", r.URL.Path)
		assert.Equal(t, "photos/", r.URL.Query().Get("prefix"))
		io.WriteString(w, `<ListBucketResult><Prefix>photos/</Prefix><Contents><Key>photos/cat.jpg</Key><Size>5</Size></Contents></ListBucketResult>`)
	}))
	defer srv.Close()

	p := testParams()
	p.Credential = params.S3Keys{AccessKey: "AKID", SecretKey: "secret", Alternate: true}
	c := NewChain(newTestExecutor(t), s3URI(srv, "/bucket/photos"), p)

	e, ok, err := c.NextSubItem(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cat.jpg", e.Name)
	assert.Equal(t, int64(5), e.Info.Size)
}

func TestS3_ListingNotADirectory(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<ListBucketResult><Prefix>file/</Prefix></ListBucketResult>`)
	}))
	defer srv.Close()

	_, ok, err := NewChain(newTestExecutor(t), s3URI(srv, "/file"), testParams()).NextSubItem(context.Background())
	assert.False(t, ok)
	assert.True(t, daverr.Is(err, daverr.IsNotADirectory))
}

func TestS3_MkdirAndMove(t *testing.T) {
	t.Parallel()

	var put atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			put.Store(r.URL.Path)
		}
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	require.NoError(t, NewChain(e, s3URI(srv, "/newdir"), testParams()).MakeCollection(context.Background()))
	assert.Equal(t, "/newdir/", put.Load())

	err := NewChain(e, s3URI(srv, "/a"), testParams()).Move(context.Background(), s3URI(srv, "/b"))
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func TestS3_Checksum(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"fba9dede5f27731c9771645a39863328"`)
		// crc32 of "hello world"
		w.Header().Set("x-amz-checksum-crc32", "DUoRhQ==")
	}))
	defer srv.Close()

	c := NewChain(newTestExecutor(t), s3URI(srv, "/obj"), testParams())

	sum, err := c.Checksum(context.Background(), "md5")
	require.NoError(t, err)
	assert.Equal(t, "fba9dede5f27731c9771645a39863328", sum)

	sum, err = c.Checksum(context.Background(), "crc32")
	require.NoError(t, err)
	assert.Equal(t, "0d4a1185", sum)

	_, err = c.Checksum(context.Background(), "sha256")
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func azureURI(srv *httptest.Server, path string) *uri.URI {
	return uri.Parse(strings.Replace(srv.URL, "http://", "azure://", 1) + path)
}

func TestAzure_StatAndListing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/cont/blob":
			w.Header().Set("Content-Length", "3")
			w.Header().Set("Content-MD5", "sQqNsWTgdUEFt6mb5y4/5Q==")
		case r.Method == http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case q.Get("comp") == "list":
			assert.Equal(t, "/cont/", r.URL.Path)
			assert.Equal(t, "dir/", q.Get("prefix"))
			if q.Get("maxresults") == "1" {
				io.WriteString(w, `<EnumerationResults><Blobs><Blob><Name>dir/x</Name></Blob></Blobs><NextMarker/></EnumerationResults>`)
				return
			}
			if q.Get("marker") == "" {
				io.WriteString(w, `<EnumerationResults><Blobs><Blob><Name>dir/x</Name><Properties><Content-Length>4</Content-Length></Properties></Blob></Blobs><NextMarker>m1</NextMarker></EnumerationResults>`)
				return
			}
			io.WriteString(w, `<EnumerationResults><Blobs><BlobPrefix><Name>dir/sub/</Name></BlobPrefix></Blobs><NextMarker/></EnumerationResults>`)
		}
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	ctx := context.Background()

	st, err := NewChain(e, azureURI(srv, "/cont/blob"), testParams()).StatInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Size)

	st, err = NewChain(e, azureURI(srv, "/cont/dir"), testParams()).StatInfo(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	c := NewChain(e, azureURI(srv, "/cont/dir"), testParams())
	assert.Equal(t, "azure", c.Dialect().Name())
	var names []string
	for {
		entry, ok, err := c.NextSubItem(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"x", "sub"}, names)

	sum, err := NewChain(e, azureURI(srv, "/cont/blob"), testParams()).Checksum(ctx, "md5")
	require.NoError(t, err)
	assert.Equal(t, "b10a8db164e0754105b7a99be72e3fe5", sum)

	_, err = NewChain(e, azureURI(srv, "/cont/blob"), testParams()).Checksum(ctx, "adler32")
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func TestAzure_Mkdir(t *testing.T) {
	t.Parallel()

	var blobType atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cont/newdir/", r.URL.Path)
		blobType.Store(r.Header.Get("x-ms-blob-type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	require.NoError(t, NewChain(newTestExecutor(t), azureURI(srv, "/cont/newdir"), testParams()).MakeCollection(context.Background()))
	assert.Equal(t, "BlockBlob", blobType.Load())
}
