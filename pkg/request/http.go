// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/session"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

const (
	scope = "http"

	// bytes drained at EndRequest so the connection can be reused
	maxDrain = 64 << 10
)

// BodyFunc opens a fresh copy of the request body. It is called once per
// attempt so redirected and retried requests can resend the body.
type BodyFunc func() (io.ReadCloser, error)

// Transport builds requests bound to one session factory. It never follows
// redirects; the caller owns redirection.
type Transport struct {
	factory *session.Factory
}

func NewTransport(factory *session.Factory) *Transport {
	return &Transport{factory: factory}
}

func (t *Transport) Factory() *session.Factory { return t.factory }

// NewRequest prepares method on u. headers are appended after the ones in p.
func (t *Transport) NewRequest(u *uri.URI, method string, p *params.RequestParams, headers types.HeaderVec, body []byte) *HTTPRequest {
	r := New(t.factory, method, u, p)
	for _, h := range headers {
		r.headers.Add(h.Name, h.Value)
	}
	if body != nil {
		r.SetBodyBytes(body)
	}
	return r
}

// HTTPRequest is the net/http backed Request.
type HTTPRequest struct {
	factory *session.Factory
	params  params.RequestParams
	method  string
	u       *uri.URI
	headers types.HeaderVec

	body     BodyFunc
	bodySize int64

	state    State
	startErr error
	sess     *session.Session
	resp     *http.Response
	noReuse  bool
	cancel   context.CancelFunc
	began    time.Time
}

// New prepares a request. p is copied.
func New(factory *session.Factory, method string, u *uri.URI, p *params.RequestParams) *HTTPRequest {
	r := &HTTPRequest{
		factory:  factory,
		method:   method,
		u:        u,
		bodySize: -1,
	}
	if p != nil {
		r.params = p.Clone()
	} else {
		r.params = params.Default()
	}
	r.headers = r.params.Headers.Clone()
	return r
}

func (r *HTTPRequest) Method() string { return r.method }

func (r *HTTPRequest) URI() *uri.URI { return r.u }

func (r *HTTPRequest) Params() *params.RequestParams { return &r.params }

// Headers are the request headers, live for signing.
func (r *HTTPRequest) Headers() *types.HeaderVec { return &r.headers }

func (r *HTTPRequest) AddHeader(name, value string) { r.headers.Add(name, value) }

func (r *HTTPRequest) SetHeader(name, value string) { r.headers.Set(name, value) }

// SetBody sets a replayable body of size bytes, -1 when unknown.
func (r *HTTPRequest) SetBody(fn BodyFunc, size int64) {
	r.body = fn
	r.bodySize = size
}

// SetBodyBytes sends b as the request body.
func (r *HTTPRequest) SetBodyBytes(b []byte) {
	r.SetBody(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}, int64(len(b)))
}

func (r *HTTPRequest) State() State { return r.state }

func (r *HTTPRequest) StartRequest(ctx context.Context) error {
	switch r.state {
	case Started:
		return r.startErr
	case Finished:
		return daverr.New(daverr.InvalidArgument, scope, "start on a finished request")
	}
	r.state = Started
	r.startErr = r.start(ctx)
	if r.startErr != nil {
		r.noReuse = true
	}
	return r.startErr
}

func (r *HTTPRequest) start(ctx context.Context) error {
	if err := r.u.Err(); err != nil {
		return err
	}
	log := logger.For(ctx, logger.ScopeHTTP)

	sess, err := r.factory.Acquire(&r.params, r.u)
	if err != nil {
		return err
	}
	r.sess = sess

	timeout := r.params.OperationTimeout
	if timeout <= 0 {
		timeout = params.DefaultOperationTimeout
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	r.cancel = cancel

	var body io.ReadCloser
	if r.body != nil {
		if body, err = r.body(); err != nil {
			return daverr.Wrap(err, daverr.SystemError, scope, "open request body")
		}
	}

	req, err := http.NewRequestWithContext(opCtx, r.method, r.u.URL().String(), body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return daverr.Wrap(err, daverr.UriParsingError, scope, "build request")
	}
	if r.body != nil {
		req.GetBody = func() (io.ReadCloser, error) { return r.body() }
		if r.bodySize >= 0 {
			req.ContentLength = r.bodySize
		}
		if r.bodySize == 0 {
			req.Body = http.NoBody
		}
	}
	r.headers.ApplyTo(req.Header)
	if host, ok := r.headers.Get("Host"); ok {
		req.Host = host
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.params.UserAgent)
	}
	if lp, ok := r.params.Credential.(params.LoginPassword); ok && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(lp.User, lp.Password)
	}

	log.Debug().Str("method", r.method).Str("uri", r.u.String()).Bool("recycled", sess.Recycled()).Msg("sending request")
	r.began = time.Now()

	resp, err := sess.Client().Do(req)
	if err != nil {
		RequestsTotal.WithLabelValues(r.method, "error").Inc()
		return transportError(err, r.method, r.u)
	}
	r.resp = resp

	RequestsTotal.WithLabelValues(r.method, strconv.Itoa(resp.StatusCode/100)+"xx").Inc()
	log.Debug().Str("method", r.method).Int("status", resp.StatusCode).Msg("response received")
	return nil
}

func transportError(err error, method string, u *uri.URI) error {
	var (
		netErr net.Error
		de     *daverr.Error
	)
	switch {
	case errors.As(err, &de):
		// raised by our own body reader
		return daverr.Wrap(err, de.Kind, scope, method+" "+u.String())
	case errors.Is(err, context.Canceled):
		return daverr.Wrap(err, daverr.Canceled, scope, method+" "+u.String())
	case errors.Is(err, context.DeadlineExceeded):
		return daverr.Wrap(err, daverr.OperationTimeout, scope, method+" "+u.String())
	case errors.As(err, &netErr) && netErr.Timeout():
		return daverr.Wrap(err, daverr.ConnectionTimeout, scope, method+" "+u.String())
	}
	return daverr.Wrap(err, daverr.ConnectionProblem, scope, method+" "+u.String())
}

func (r *HTTPRequest) ReadBlock(p []byte) (int, error) {
	switch {
	case r.state != Started:
		return 0, daverr.Newf(daverr.InvalidArgument, scope, "read on a %s request", r.state)
	case r.startErr != nil:
		return 0, r.startErr
	case r.resp == nil:
		return 0, io.EOF
	}
	n, err := r.resp.Body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.noReuse = true
		return n, transportError(err, r.method, r.u)
	}
	return n, err
}

func (r *HTTPRequest) EndRequest() error {
	if r.state == Finished {
		return nil
	}
	r.state = Finished

	if r.resp != nil {
		if _, err := io.CopyN(io.Discard, r.resp.Body, maxDrain); !errors.Is(err, io.EOF) {
			// body left over, the connection cannot be reused
			r.noReuse = true
		}
		r.resp.Body.Close()
		RequestDuration.WithLabelValues(r.method).Observe(time.Since(r.began).Seconds())
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.sess != nil {
		r.factory.Release(r.sess, !r.noReuse)
		r.sess = nil
	}
	return nil
}

// SessionError is the failure of StartRequest, if any.
func (r *HTTPRequest) SessionError() error { return r.startErr }

func (r *HTTPRequest) DoNotReuseSession() { r.noReuse = true }

func (r *HTTPRequest) IsRecycledSession() bool {
	return r.sess != nil && r.sess.Recycled()
}

func (r *HTTPRequest) StatusCode() int {
	if r.resp == nil {
		return 0
	}
	return r.resp.StatusCode
}

func (r *HTTPRequest) AnswerHeader(name string) (string, bool) {
	if r.resp == nil {
		return "", false
	}
	v := r.resp.Header.Values(name)
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (r *HTTPRequest) AnswerHeaders() types.HeaderVec {
	if r.resp == nil {
		return nil
	}
	return types.FromHTTP(r.resp.Header)
}

// ContentLength of the response, -1 when unknown.
func (r *HTTPRequest) ContentLength() int64 {
	if r.resp == nil {
		return -1
	}
	return r.resp.ContentLength
}

func (r *HTTPRequest) ObtainRedirectedLocation() (*uri.URI, error) {
	loc, ok := r.AnswerHeader("Location")
	if !ok || loc == "" {
		return nil, daverr.New(daverr.RedirectionNeeded, scope, "redirection without Location header")
	}
	dest := r.u.ResolveReference(loc)
	if err := dest.Err(); err != nil {
		return nil, err
	}
	return dest, nil
}

// Execute starts req, reads up to limit bytes of its body and ends it.
func Execute(ctx context.Context, req Request, limit int64) ([]byte, error) {
	defer req.EndRequest()
	if err := req.StartRequest(ctx); err != nil {
		return nil, err
	}
	return ReadAll(req, limit)
}
