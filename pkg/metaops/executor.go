// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package metaops

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/redirect"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

const (
	scope = "chain"

	// DefaultBodyLimit caps the answer body kept by Do.
	DefaultBodyLimit = 64 << 20
)

// Call describes one exchange issued by a dialect.
type Call struct {
	Method  string
	URI     *uri.URI
	Params  *params.RequestParams
	Headers types.HeaderVec
	Body    []byte
	// BodyFunc streams the request body instead of Body. Size is -1 when
	// unknown.
	BodyFunc request.BodyFunc
	Size     int64
	// Limit caps the answer body kept in Reply.Body. Zero keeps
	// DefaultBodyLimit bytes, a negative value discards it.
	Limit int64
	// Accept lists status codes returned to the caller instead of being
	// mapped to an error.
	Accept []int
}

func (c *Call) accepts(code int) bool {
	for _, a := range c.Accept {
		if a == code {
			return true
		}
	}
	return false
}

// Reply is the outcome of Do.
type Reply struct {
	Status  int
	Headers types.HeaderVec
	Body    []byte
	// URI is the unsigned URI that answered, after redirections.
	URI *uri.URI
}

func (r *Reply) Header(name string) (string, bool) {
	return r.Headers.Get(name)
}

// Executor sends calls through redirection resolution, signing, live
// redirect following, authentication prompts and automatic retries.
type Executor struct {
	transport *request.Transport
	resolver  *redirect.Resolver
}

func NewExecutor(t *request.Transport, r *redirect.Resolver) *Executor {
	return &Executor{transport: t, resolver: r}
}

func (e *Executor) Resolver() *redirect.Resolver { return e.resolver }

func (e *Executor) Transport() *request.Transport { return e.transport }

// Do runs c and reads its answer. Non-success statuses not listed in
// c.Accept become errors whose Kind follows daverr.FromHTTPStatus.
func (e *Executor) Do(ctx context.Context, c *Call) (*Reply, error) {
	return withRetry(ctx, c.Params, func() (*Reply, error) {
		req, target, err := e.authenticated(ctx, c)
		if err != nil {
			return nil, err
		}
		defer req.EndRequest()

		rep := &Reply{Status: req.StatusCode(), Headers: req.AnswerHeaders(), URI: target}
		if !c.accepts(rep.Status) {
			if err := daverr.CheckStatus(rep.Status, scope, c.Method+" "+c.URI.String()); err != nil {
				return nil, err
			}
		}
		if c.Limit >= 0 {
			limit := c.Limit
			if limit == 0 {
				limit = DefaultBodyLimit
			}
			if rep.Body, err = request.ReadAll(req, limit); err != nil {
				return nil, err
			}
		}
		return rep, nil
	})
}

// Open runs c and returns the started request positioned at the answer
// body. The caller must call EndRequest. A non-success status is an error
// unless accepted.
func (e *Executor) Open(ctx context.Context, c *Call) (*request.HTTPRequest, error) {
	return withRetry(ctx, c.Params, func() (*request.HTTPRequest, error) {
		req, _, err := e.authenticated(ctx, c)
		if err != nil {
			return nil, err
		}
		if !c.accepts(req.StatusCode()) {
			if err := daverr.CheckStatus(req.StatusCode(), scope, c.Method+" "+c.URI.String()); err != nil {
				req.EndRequest()
				return nil, err
			}
		}
		return req, nil
	})
}

// authenticated runs follow and, on 401/407, asks the login callback for
// credentials up to MaxAuthAttempts times.
func (e *Executor) authenticated(ctx context.Context, c *Call) (*request.HTTPRequest, *uri.URI, error) {
	p := params.Default()
	if c.Params != nil {
		p = c.Params.Clone()
	}
	maxAttempts := p.MaxAuthAttempts
	if maxAttempts <= 0 {
		maxAttempts = params.DefaultMaxAuthAttempts
	}

	for attempt := 1; ; attempt++ {
		req, target, err := e.follow(ctx, c, &p)
		if err != nil {
			return nil, nil, err
		}
		code := req.StatusCode()
		if (code != 401 && code != 407) || p.LoginCallback == nil || c.accepts(code) {
			return req, target, nil
		}
		req.EndRequest()
		if attempt >= maxAttempts {
			return nil, nil, daverr.Newf(daverr.AuthenticationError, scope, "%s %s: authentication failed after %d attempts", c.Method, c.URI, attempt)
		}
		user, password, err := p.LoginCallback(ctx, c.URI, attempt)
		if err != nil {
			return nil, nil, daverr.Wrap(err, daverr.AuthenticationError, scope, "login callback")
		}
		p.Credential = params.LoginPassword{User: user, Password: password}
	}
}

// follow resolves the cached redirection for c, sends it and follows live
// redirections. The returned request has a non-redirect status, or a
// redirect status when transparent redirection is off.
func (e *Executor) follow(ctx context.Context, c *Call, p *params.RequestParams) (*request.HTTPRequest, *uri.URI, error) {
	log := logger.For(ctx, logger.ScopeChain)
	origin := c.URI
	if err := origin.Err(); err != nil {
		return nil, nil, err
	}

	target := origin
	cached := false
	if p.TransparentRedirect {
		dest, err := e.resolver.Resolve(c.Method, origin)
		if err != nil {
			return nil, nil, err
		}
		if dest != nil {
			log.Debug().Str("origin", origin.String()).Str("dest", dest.String()).Msg("using cached redirection")
			target, cached = dest, true
		}
	}

	maxHops := redirect.DefaultMaxHops
	for hops := 0; ; {
		req, err := e.send(ctx, c, p, target)
		if err != nil {
			if cached && retryOnOrigin(daverr.KindOf(err)) {
				log.Debug().Err(err).Str("dest", target.String()).Msg("cached destination failed, replaying on origin")
				e.resolver.Clean(c.Method, origin)
				target, cached = origin, false
				continue
			}
			return nil, nil, err
		}

		code := req.StatusCode()
		switch {
		case cached && code == 404:
			req.EndRequest()
			log.Debug().Str("dest", target.String()).Msg("cached destination not found, replaying on origin")
			e.resolver.Clean(c.Method, origin)
			target, cached = origin, false
			continue

		case isRedirect(code) && p.TransparentRedirect:
			loc, err := req.ObtainRedirectedLocation()
			req.EndRequest()
			if err != nil {
				return nil, nil, err
			}
			hops++
			if hops > maxHops {
				return nil, nil, daverr.Newf(daverr.RedirectionLoop, scope, "%s %s: more than %d redirections", c.Method, origin, maxHops)
			}
			RedirectsFollowed.Inc()
			log.Debug().Str("from", target.String()).Str("to", loc.String()).Int("status", code).Msg("following redirection")
			e.resolver.Add(c.Method, target, loc)
			target = loc
			continue
		}
		return req, target, nil
	}
}

func retryOnOrigin(k daverr.Kind) bool {
	switch k {
	case daverr.ConnectionProblem, daverr.ConnectionTimeout, daverr.SessionCreationError:
		return true
	}
	return false
}

func isRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// send signs c for target and starts it.
func (e *Executor) send(ctx context.Context, c *Call, p *params.RequestParams, target *uri.URI) (*request.HTTPRequest, error) {
	headers := c.Headers.Clone()
	signed, err := Sign(ctx, c.Method, target, p, &headers)
	if err != nil {
		return nil, err
	}

	req := e.transport.NewRequest(signed, c.Method, p, headers, nil)
	switch {
	case c.BodyFunc != nil:
		req.SetBody(c.BodyFunc, c.Size)
	case c.Body != nil:
		req.SetBodyBytes(c.Body)
	}

	began := time.Now()
	if err := req.StartRequest(ctx); err != nil {
		req.EndRequest()
		OperationsTotal.WithLabelValues(c.Method, "error").Inc()
		return nil, err
	}
	OperationsTotal.WithLabelValues(c.Method, statusClass(req.StatusCode())).Inc()
	OperationLatency.WithLabelValues(c.Method).Observe(time.Since(began).Seconds())
	return req, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}

// Retryable reports whether an operation failing with err may be retried.
func Retryable(err error) bool {
	switch daverr.KindOf(err) {
	case daverr.OK,
		daverr.RedirectionNeeded,
		daverr.RedirectionLoop,
		daverr.OperationTimeout,
		daverr.ConnectionTimeout,
		daverr.PermissionRefused,
		daverr.FileNotFound,
		daverr.FileExist,
		daverr.AuthenticationError,
		daverr.LoginPasswordError,
		daverr.CredentialNotFound,
		daverr.WebDavPropertiesParsingError,
		daverr.UriParsingError,
		daverr.InvalidArgument,
		daverr.OperationNonSupported,
		daverr.IsADirectory,
		daverr.IsNotADirectory,
		daverr.Canceled:
		return false
	}
	return true
}

// jitterBackOff waits about base between attempts.
type jitterBackOff struct {
	base time.Duration
}

func (j jitterBackOff) NextBackOff() time.Duration { return utils.JitterUp(j.base, 0.2) }

func (jitterBackOff) Reset() {}

// withRetry runs fn up to OperationRetry additional times while it fails
// with a retryable error.
func withRetry[T any](ctx context.Context, p *params.RequestParams, fn func() (T, error)) (T, error) {
	retries, delay := 0, time.Duration(0)
	if p != nil {
		retries, delay = p.OperationRetry, p.OperationRetryDelay
	}
	if retries <= 0 {
		return fn()
	}

	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(jitterBackOff{base: delay}, uint64(retries)), ctx)
	return backoff.RetryNotifyWithData[T](op, b, func(err error, next time.Duration) {
		OperationRetries.Inc()
		logger.For(ctx, logger.ScopeChain).Info().Err(err).Int("attempt", attempt).Dur("next", next).Msg("operation failed, retrying")
	})
}
