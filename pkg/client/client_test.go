package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/net/webdav"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/rangeio"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// davServer serves an in-memory WebDAV tree.
func davServer(t *testing.T) (*httptest.Server, webdav.FileSystem) {
	t.Helper()
	fs := webdav.NewMemFS()
	srv := httptest.NewServer(&webdav.Handler{FileSystem: fs, LockSystem: webdav.NewMemLS()})
	t.Cleanup(srv.Close)
	return srv, fs
}

func writeFile(t *testing.T, fs webdav.FileSystem, name string, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(context.Background(), name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, fs webdav.FileSystem, name string) []byte {
	t.Helper()
	f, err := fs.OpenFile(context.Background(), name, os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c := NewDefault()
	t.Cleanup(c.Close)
	return c
}

func testParams() *params.RequestParams {
	p := params.Default()
	p.OperationRetry = 0
	return &p
}

func TestContext_StatAndListing(t *testing.T) {
	t.Parallel()

	srv, fs := davServer(t)
	require.NoError(t, fs.Mkdir(context.Background(), "/data", 0o755))
	require.NoError(t, fs.Mkdir(context.Background(), "/data/sub", 0o755))
	writeFile(t, fs, "/data/a.txt", []byte("hello"))

	c := newTestContext(t)
	ctx := context.Background()

	info, err := c.Stat(ctx, uri.Parse(srv.URL+"/data/a.txt"), testParams())
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir())

	info, err = c.Stat(ctx, uri.Parse(srv.URL+"/data/"), testParams())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	d, err := c.OpenDir(ctx, uri.Parse(srv.URL+"/data/"), testParams())
	require.NoError(t, err)
	entries, err := d.ReadAll(ctx)
	d.Close()
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "sub"}, names)

	_, err = c.Stat(ctx, uri.Parse(srv.URL+"/missing"), testParams())
	assert.Equal(t, daverr.FileNotFound, daverr.KindOf(err))

	_, err = c.OpenDir(ctx, uri.Parse(srv.URL+"/data/a.txt"), testParams())
	assert.Equal(t, daverr.IsNotADirectory, daverr.KindOf(err))
}

func TestContext_MkdirMoveDelete(t *testing.T) {
	t.Parallel()

	srv, fs := davServer(t)
	c := newTestContext(t)
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, uri.Parse(srv.URL+"/new"), testParams()))
	info, err := fs.Stat(ctx, "/new")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	writeFile(t, fs, "/new/f", []byte("x"))
	require.NoError(t, c.Move(ctx, uri.Parse(srv.URL+"/new/f"), uri.Parse(srv.URL+"/new/g"), testParams()))
	assert.Equal(t, []byte("x"), readFile(t, fs, "/new/g"))

	require.NoError(t, c.Delete(ctx, uri.Parse(srv.URL+"/new/g"), testParams()))
	_, err = fs.Stat(ctx, "/new/g")
	assert.True(t, os.IsNotExist(err))

	err = c.Delete(ctx, uri.Parse(srv.URL+"/new/g"), testParams())
	assert.Equal(t, daverr.FileNotFound, daverr.KindOf(err))
}

func TestContext_GetPut(t *testing.T) {
	t.Parallel()

	srv, fs := davServer(t)
	c := newTestContext(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("0123456789"), 20000)

	var progress atomic.Int64
	tr := &Transfer{Progress: func(done int64) { progress.Store(done) }}
	require.NoError(t, c.Put(ctx, uri.Parse(srv.URL+"/blob"), testParams(), bytes.NewReader(payload), int64(len(payload)), tr))
	assert.Equal(t, payload, readFile(t, fs, "/blob"))
	assert.Equal(t, int64(len(payload)), progress.Load())

	var out bytes.Buffer
	n, err := c.Get(ctx, uri.Parse(srv.URL+"/blob"), testParams(), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, out.Bytes())

	require.NoError(t, c.PutStream(ctx, uri.Parse(srv.URL+"/stream"), testParams(), strings.NewReader("streamed"), 8, nil))
	assert.Equal(t, []byte("streamed"), readFile(t, fs, "/stream"))
}

func TestContext_GetCanceled(t *testing.T) {
	t.Parallel()

	srv, fs := davServer(t)
	writeFile(t, fs, "/big", bytes.Repeat([]byte("z"), 4*transferBlockSize))
	c := newTestContext(t)

	calls := 0
	tr := &Transfer{Cancel: func() bool {
		calls++
		return calls > 1
	}}
	n, err := c.Get(context.Background(), uri.Parse(srv.URL+"/big"), testParams(), io.Discard, tr)
	require.Error(t, err)
	assert.Equal(t, daverr.Canceled, daverr.KindOf(err))
	assert.Less(t, n, int64(4*transferBlockSize))
}

func TestContext_PreadVec(t *testing.T) {
	t.Parallel()

	srv, fs := davServer(t)
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	writeFile(t, fs, "/letters", data)
	c := newTestContext(t)
	ctx := context.Background()
	u := uri.Parse(srv.URL + "/letters")

	// several ranges come back as multipart/byteranges
	vecs := []rangeio.IOVec{
		{Offset: 0, Buf: make([]byte, 3)},
		{Offset: 10, Buf: make([]byte, 2)},
		{Offset: 24, Buf: make([]byte, 2)},
	}
	n, err := c.PreadVec(ctx, u, testParams(), vecs)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "abc", string(vecs[0].Buf))
	assert.Equal(t, "kl", string(vecs[1].Buf))
	assert.Equal(t, "yz", string(vecs[2].Buf))

	// a single range comes back with Content-Range
	buf := make([]byte, 4)
	got, err := c.Pread(ctx, u, testParams(), buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.Equal(t, "fghi", string(buf))
}

func TestContext_PreadVecFullBody(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ignores Range
		w.Write(data)
	}))
	defer srv.Close()

	c := newTestContext(t)
	vecs := []rangeio.IOVec{
		{Offset: 2, Buf: make([]byte, 2)},
		{Offset: 7, Buf: make([]byte, 3)},
	}
	p := testParams()
	p.Protocol = params.ProtocolHTTP
	n, err := c.PreadVec(context.Background(), uri.Parse(srv.URL+"/f"), p, vecs)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "23", string(vecs[0].Buf))
	assert.Equal(t, "789", string(vecs[1].Buf))
}

func TestContext_AzureBlockUpload(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		blocks   = map[string][]byte{}
		order    []string
		blobType []string
		commit   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		blobType = append(blobType, r.Header.Get("x-ms-blob-type"))
		switch r.URL.Query().Get("comp") {
		case "block":
			id := r.URL.Query().Get("blockid")
			blocks[id] = body
			order = append(order, id)
		case "blocklist":
			commit = string(body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := testParams()
	p.AzureBlockSize = 4
	u := uri.Parse(strings.Replace(srv.URL, "http://", "azure://", 1) + "/container/blob")
	c := newTestContext(t)

	payload := []byte("0123456789")
	require.NoError(t, c.Put(context.Background(), u, p, bytes.NewReader(payload), int64(len(payload)), nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	var joined []byte
	for _, id := range order {
		joined = append(joined, blocks[id]...)
		assert.Contains(t, commit, "<Latest>"+id+"</Latest>")
	}
	assert.Equal(t, payload, joined)
	assert.Equal(t, "BlockBlob", blobType[0])
	assert.Len(t, order[0], len(order[2]))
}

func TestAzureBlockID(t *testing.T) {
	t.Parallel()

	a := azureBlockID("prefix", 1)
	b := azureBlockID("prefix", 12345)
	assert.Len(t, a, len(b))
	assert.NotEqual(t, a, b)
	assert.Equal(t,
		`<?xml version="1.0" encoding="utf-8"?><BlockList><Latest>x</Latest><Latest>y</Latest></BlockList>`,
		string(azureBlockList([]string{"x", "y"})))
}

func TestContext_CopyTree(t *testing.T) {
	t.Parallel()

	srcSrv, srcFS := davServer(t)
	dstSrv, dstFS := davServer(t)
	ctx := context.Background()
	require.NoError(t, srcFS.Mkdir(ctx, "/tree", 0o755))
	require.NoError(t, srcFS.Mkdir(ctx, "/tree/nested", 0o755))
	writeFile(t, srcFS, "/tree/one", []byte("first file"))
	writeFile(t, srcFS, "/tree/nested/two", bytes.Repeat([]byte("2"), 3*transferBlockSize))

	var copied atomic.Int32
	c := newTestContext(t)
	err := c.CopyTree(ctx, uri.Parse(srcSrv.URL+"/tree"), uri.Parse(dstSrv.URL+"/copy"), CopyOptions{
		Workers:   2,
		SrcParams: testParams(),
		DstParams: testParams(),
		OnFile: func(src, dst *uri.URI, size int64, err error) {
			if err == nil {
				copied.Add(1)
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), copied.Load())
	assert.Equal(t, []byte("first file"), readFile(t, dstFS, "/copy/one"))
	assert.Equal(t, readFile(t, srcFS, "/tree/nested/two"), readFile(t, dstFS, "/copy/nested/two"))

	// a second run over the existing destination tree succeeds
	require.NoError(t, c.CopyTree(ctx, uri.Parse(srcSrv.URL+"/tree"), uri.Parse(dstSrv.URL+"/copy"), CopyOptions{
		SrcParams: testParams(),
		DstParams: testParams(),
	}))
}

func TestContext_CloneAndClearCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/origin" {
			hits.Add(1)
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Header().Set("Content-Length", "3")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write([]byte("abc"))
		}
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolHTTP
	u := uri.Parse(srv.URL + "/origin")
	c := newTestContext(t)
	ctx := context.Background()

	_, err := c.Stat(ctx, u, p)
	require.NoError(t, err)
	_, err = c.Stat(ctx, u, p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	clone := c.Clone()
	defer clone.Close()
	_, err = clone.Stat(ctx, u, p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	c.ClearCaches()
	_, err = c.Stat(ctx, u, p)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}
