package metaops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/redirect"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/session"
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

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	f := session.NewFactory()
	f.SetCaching(true)
	t.Cleanup(f.Clear)
	return NewExecutor(request.NewTransport(f), redirect.New(redirect.DefaultOptions()))
}

func testParams() *params.RequestParams {
	p := params.Default()
	p.OperationRetry = 0
	return &p
}

const statDepth0 = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/data/file.bin</D:href>
    <D:propstat>
      <D:prop>
        <D:getlastmodified>Tue, 13 Nov 2012 08:00:00 GMT</D:getlastmodified>
        <D:getcontentlength>2048</D:getcontentlength>
        <D:resourcetype/>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
</D:multistatus>`

const listDepth1 = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:">
  <D:response>
    <D:href>/data/</D:href>
    <D:propstat><D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
  </D:response>
  <D:response>
    <D:href>/data/a.txt</D:href>
    <D:propstat><D:prop><D:getcontentlength>1</D:getcontentlength><D:resourcetype/></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
  </D:response>
  <D:response>
    <D:href>/data/sub/</D:href>
    <D:propstat><D:prop><D:resourcetype><D:collection/></D:resourcetype></D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>
  </D:response>
</D:multistatus>`

func TestChain_WebDAVStat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "0", r.Header.Get("Depth"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "getcontentlength")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, statDepth0)
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolWebDAV
	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/data/file.bin"), p)

	st, err := c.StatInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2048), st.Size)
	assert.False(t, st.IsDir())
	assert.Equal(t, 2012, st.MTime.Year())
}

func TestChain_AutoFallsBackToHead(t *testing.T) {
	t.Parallel()

	var propfinds atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "PROPFIND":
			propfinds.Add(1)
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodHead:
			w.Header().Set("Content-Length", "42")
			w.Header().Set("Last-Modified", "Wed, 09 Sep 2009 09:20:02 GMT")
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/plain"), testParams())
	assert.Equal(t, "webdav", c.Dialect().Name())

	st, err := c.StatInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), st.Size)
	assert.Equal(t, 2009, st.MTime.Year())
	assert.Equal(t, int32(1), propfinds.Load())
}

func TestChain_PlainHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Length", "7")
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolHTTP
	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/f"), p)
	assert.Equal(t, "http", c.Dialect().Name())

	st, err := c.StatInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)

	err = c.MakeCollection(context.Background())
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
	assert.Contains(t, err.Error(), "mkdir ops")

	_, _, err = c.NextSubItem(context.Background())
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func TestChain_WebDAVListing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("Depth"))
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, listDepth1)
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolWebDAV
	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/data/"), p)
	defer c.Close()

	ctx := context.Background()
	var names []string
	for {
		e, ok, err := c.NextSubItem(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "sub"}, names)

	// exhausted listings stay exhausted
	_, ok, err := c.NextSubItem(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChain_ListingNotADirectory(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, statDepth0)
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolWebDAV
	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/data/file.bin"), p)

	_, ok, err := c.NextSubItem(context.Background())
	assert.False(t, ok)
	assert.True(t, daverr.Is(err, daverr.IsNotADirectory))
}

const emptyMultistatus = `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:"></D:multistatus>`

func TestChain_EmptyMultistatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PROPFIND", r.Method)
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, emptyMultistatus)
	}))
	defer srv.Close()

	p := testParams()
	p.Protocol = params.ProtocolWebDAV
	exec := newTestExecutor(t)
	ctx := context.Background()

	t.Run("stat", func(t *testing.T) {
		c := NewChain(exec, uri.Parse(srv.URL+"/data/file.bin"), p)
		_, err := c.StatInfo(ctx)
		require.Error(t, err)
		assert.Equal(t, daverr.WebDavPropertiesParsingError, daverr.KindOf(err))
		assert.Contains(t, err.Error(), "stat ops")
	})

	t.Run("listing", func(t *testing.T) {
		c := NewChain(exec, uri.Parse(srv.URL+"/data/"), p)
		defer c.Close()
		_, ok, err := c.NextSubItem(ctx)
		require.Error(t, err)
		assert.False(t, ok)
		assert.Equal(t, daverr.WebDavPropertiesParsingError, daverr.KindOf(err))

		// a failed page ends the listing
		_, ok, err = c.NextSubItem(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestChain_DeleteMultiStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		kind   daverr.Kind
	}{
		{"no content", http.StatusNoContent, "", daverr.OK},
		{"not found", http.StatusNotFound, "", daverr.FileNotFound},
		{"locked member", http.StatusMultiStatus, `<D:multistatus xmlns:D="DAV:"><D:response>` +
			`<D:href>/dir/locked</D:href><D:status>HTTP/1.1 423 Locked</D:status></D:response></D:multistatus>`, daverr.PermissionRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := testParams()
			p.Protocol = params.ProtocolWebDAV
			err := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/dir"), p).DeleteResource(context.Background())
			assert.Equal(t, tt.kind, daverr.KindOf(err))
		})
	}
}

func TestChain_MkcolAndMove(t *testing.T) {
	t.Parallel()

	var dest atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "MKCOL":
			w.WriteHeader(http.StatusCreated)
		case "MOVE":
			dest.Store(r.Header.Get("Destination"))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	p := testParams()
	p.Protocol = params.ProtocolWebDAV

	require.NoError(t, NewChain(e, uri.Parse(srv.URL+"/newdir"), p).MakeCollection(context.Background()))

	dst := strings.Replace(srv.URL, "http://", "dav://", 1) + "/moved"
	require.NoError(t, NewChain(e, uri.Parse(srv.URL+"/old"), p).Move(context.Background(), uri.Parse(dst)))
	assert.Equal(t, srv.URL+"/moved", dest.Load())
}

func TestChain_Checksum(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Want-Digest") == "ADLER32" {
			w.Header().Set("Digest", "ADLER32=a0b0c0d")
		}
	}))
	defer srv.Close()

	c := NewChain(newTestExecutor(t), uri.Parse(srv.URL+"/f"), testParams())
	sum, err := c.Checksum(context.Background(), "ADLER32")
	require.NoError(t, err)
	assert.Equal(t, "0a0b0c0d", sum)

	_, err = c.Checksum(context.Background(), "md5")
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func TestDetectWebDAV(t *testing.T) {
	t.Parallel()

	dav := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "OPTIONS, GET, HEAD, PROPFIND")
	}))
	defer dav.Close()
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET, HEAD")
	}))
	defer plain.Close()

	e := newTestExecutor(t)
	ok, err := DetectWebDAV(context.Background(), e, uri.Parse(dav.URL), testParams())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = DetectWebDAV(context.Background(), e, uri.Parse(plain.URL), testParams())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutor_RedirectCaching(t *testing.T) {
	t.Parallel()

	var originHits, destHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/origin":
			originHits.Add(1)
			http.Redirect(w, r, "/replica", http.StatusFound)
		case "/replica":
			destHits.Add(1)
			io.WriteString(w, "payload")
		}
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	p := testParams()
	p.TransparentRedirect = true
	origin := uri.Parse(srv.URL + "/origin")

	for range 2 {
		rep, err := e.Do(context.Background(), &Call{Method: http.MethodGet, URI: origin, Params: p})
		require.NoError(t, err)
		assert.Equal(t, "payload", string(rep.Body))
		assert.Equal(t, srv.URL+"/replica", rep.URI.String())
	}
	assert.Equal(t, int32(1), originHits.Load())
	assert.Equal(t, int32(2), destHits.Load())

	// HEAD shares the GET entry
	_, err := e.Do(context.Background(), &Call{Method: http.MethodHead, URI: origin, Params: p, Limit: -1})
	require.NoError(t, err)
	assert.Equal(t, int32(1), originHits.Load())
}

func TestExecutor_StaleCachedDestination(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, "fresh")
	}))
	defer srv.Close()

	e := newTestExecutor(t)
	origin := uri.Parse(srv.URL + "/file")
	e.Resolver().Add(http.MethodGet, origin, uri.Parse(srv.URL+"/gone"))

	p := testParams()
	p.TransparentRedirect = true
	rep, err := e.Do(context.Background(), &Call{Method: http.MethodGet, URI: origin, Params: p})
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(rep.Body))
	assert.Equal(t, 0, e.Resolver().Len())
}

func TestExecutor_RedirectLoop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			http.Redirect(w, r, "/b", http.StatusTemporaryRedirect)
			return
		}
		http.Redirect(w, r, "/a", http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	p := testParams()
	p.TransparentRedirect = true
	_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL + "/a"), Params: p})
	assert.True(t, daverr.Is(err, daverr.RedirectionLoop))
}

func TestExecutor_RedirectNotFollowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL + "/a"), Params: testParams()})
	assert.True(t, daverr.Is(err, daverr.RedirectionNeeded))
}

func TestExecutor_LoginCallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "welcome")
	}))
	defer srv.Close()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		p := testParams()
		p.LoginCallback = func(_ context.Context, _ *uri.URI, attempt int) (string, string, error) {
			calls.Add(1)
			return "alice", "secret", nil
		}
		rep, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL), Params: p})
		require.NoError(t, err)
		assert.Equal(t, "welcome", string(rep.Body))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		p := testParams()
		p.MaxAuthAttempts = 3
		p.LoginCallback = func(_ context.Context, _ *uri.URI, attempt int) (string, string, error) {
			calls.Add(1)
			return "alice", "wrong", nil
		}
		_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL), Params: p})
		assert.True(t, daverr.Is(err, daverr.AuthenticationError))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("callback error", func(t *testing.T) {
		t.Parallel()
		p := testParams()
		p.LoginCallback = func(context.Context, *uri.URI, int) (string, string, error) {
			return "", "", fmt.Errorf("no terminal")
		}
		_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL), Params: p})
		assert.True(t, daverr.Is(err, daverr.AuthenticationError))
		assert.Contains(t, err.Error(), "no terminal")
	})
}

func TestExecutor_Retry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	p := testParams()
	p.OperationRetry = 3
	rep, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL), Params: p})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(rep.Body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestExecutor_NoRetryOnNotFound(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := testParams()
	p.OperationRetry = 3
	_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodGet, URI: uri.Parse(srv.URL), Params: p})
	assert.True(t, daverr.Is(err, daverr.FileNotFound))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Retryable(daverr.New(daverr.ConnectionProblem, "t", "reset")))
	assert.True(t, Retryable(daverr.New(daverr.UnknownError, "t", "500")))
	assert.False(t, Retryable(daverr.New(daverr.FileNotFound, "t", "404")))
	assert.False(t, Retryable(daverr.New(daverr.RedirectionLoop, "t", "loop")))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}

func TestExecutor_SignsS3(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "AWS AKID:"))
		assert.NotEmpty(t, r.Header.Get("Date"))
	}))
	defer srv.Close()

	p := testParams()
	p.Credential = params.S3Keys{AccessKey: "AKID", SecretKey: "secret"}
	u := uri.Parse(strings.Replace(srv.URL, "http://", "s3://", 1) + "/key")
	_, err := newTestExecutor(t).Do(context.Background(), &Call{Method: http.MethodHead, URI: u, Params: p, Limit: -1})
	require.NoError(t, err)
}
