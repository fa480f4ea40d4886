// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/env"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

// Session is one transport endpoint: an HTTP client bound to the TLS and
// timeout settings it was created with. It is owned by exactly one request
// between Factory.Acquire and Factory.Release.
type Session struct {
	key       string
	client    *http.Client
	transport *http.Transport
	uses      int
}

func (s *Session) Key() string { return s.key }

func (s *Session) Client() *http.Client { return s.client }

// Recycled reports whether the session served a previous request.
func (s *Session) Recycled() bool { return s.uses > 1 }

// Close drops the idle connections held by the session.
func (s *Session) Close() {
	s.transport.CloseIdleConnections()
}

// Factory hands out sessions, reusing pooled ones with a matching key.
type Factory struct {
	pool    *Pool[*Session]
	caching atomic.Bool
}

// NewFactory returns a factory whose pooling honors
// ZAPDAV_DISABLE_SESSION_CACHING.
func NewFactory() *Factory {
	f := &Factory{pool: NewPool[*Session]()}
	f.caching.Store(!env.SessionCachingDisabled())
	return f
}

// SetCaching turns session reuse on or off.
func (f *Factory) SetCaching(on bool) {
	f.caching.Store(on)
	if !on {
		f.Clear()
	}
}

func (f *Factory) Caching() bool { return f.caching.Load() }

// Acquire returns a session for u under p, pooled if one is available.
func (f *Factory) Acquire(p *params.RequestParams, u *uri.URI) (*Session, error) {
	if err := u.Err(); err != nil {
		return nil, err
	}
	key := p.SessionKey(u)
	log := logger.Scoped(logger.ScopePool)

	if s, ok := f.pool.Retrieve(key); ok {
		SessionsIdle.Dec()
		SessionsReused.Inc()
		s.uses++
		log.Trace().Str("key", key).Msg("reusing pooled session")
		return s, nil
	}

	s, err := newSession(key, p)
	if err != nil {
		return nil, err
	}
	SessionsCreated.Inc()
	log.Debug().Str("key", key).Msg("created new session")
	return s, nil
}

// Release returns s to the pool when reuse is true and caching is enabled,
// otherwise the session is closed.
func (f *Factory) Release(s *Session, reuse bool) {
	if s == nil {
		return
	}
	switch {
	case !reuse:
		SessionsDiscarded.WithLabelValues("no_reuse").Inc()
		s.Close()
	case !f.caching.Load():
		SessionsDiscarded.WithLabelValues("caching_disabled").Inc()
		s.Close()
	default:
		f.pool.Insert(s.key, s)
		SessionsIdle.Inc()
	}
}

// Clear closes every pooled session. Used when credentials or TLS settings
// change since a session stays bound to what it was created with.
func (f *Factory) Clear() {
	dropped := f.pool.Clear()
	for _, s := range dropped {
		s.Close()
	}
	SessionsIdle.Sub(float64(len(dropped)))
	SessionsDiscarded.WithLabelValues("clear").Add(float64(len(dropped)))
}

// Idle is the number of pooled sessions.
func (f *Factory) Idle() int { return f.pool.Len() }

func newSession(key string, p *params.RequestParams) (*Session, error) {
	tlsConfig, err := utils.ClientTLSConfig(p.TLSVerify, p.ClientCert, p.CAFile)
	if err != nil {
		return nil, daverr.Wrap(err, daverr.SessionCreationError, "session", "tls configuration")
	}

	connTimeout := p.ConnectionTimeout
	if connTimeout <= 0 {
		connTimeout = params.DefaultConnectionTimeout
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = tlsConfig
	transport.TLSHandshakeTimeout = connTimeout
	transport.DialContext = (&net.Dialer{
		Timeout:   connTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	client := &http.Client{
		Transport: transport,
		// redirects are resolved and cached by the caller
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Session{key: key, client: client, transport: transport, uses: 1}, nil
}
