// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package uri provides an immutable parsed URI whose parse failure is
// carried as state instead of being returned at construction.
package uri

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
)

const scope = "uri"

// URI is an absolute URI. The zero value is invalid.
type URI struct {
	raw string
	u   *url.URL
	err error
}

// Parse parses an absolute URI. It never fails: an invalid input produces a
// URI whose Err reports a UriParsingError.
func Parse(raw string) *URI {
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return &URI{raw: raw, err: daverr.Wrap(err, daverr.UriParsingError, scope, "invalid uri "+strconv.Quote(raw))}
	case u.Scheme == "" || u.Host == "":
		return &URI{raw: raw, err: daverr.Newf(daverr.UriParsingError, scope, "uri %q is not absolute", raw)}
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &URI{raw: u.String(), u: u}
}

func fromURL(u *url.URL) *URI {
	if u.Path == "" {
		u.Path = "/"
	}
	return &URI{raw: u.String(), u: u}
}

// Valid reports whether the URI parsed.
func (x *URI) Valid() bool { return x != nil && x.err == nil && x.u != nil }

// Err returns the parse error, or nil.
func (x *URI) Err() error {
	if x == nil {
		return daverr.New(daverr.UriParsingError, scope, "nil uri")
	}
	return x.err
}

// String returns the normalized string form.
func (x *URI) String() string {
	if x == nil {
		return ""
	}
	return x.raw
}

// Equal compares normalized string forms.
func (x *URI) Equal(o *URI) bool {
	if x == nil || o == nil {
		return x == o
	}
	return x.raw == o.raw
}

func (x *URI) Scheme() string {
	if !x.Valid() {
		return ""
	}
	return strings.ToLower(x.u.Scheme)
}

// Host returns the host name without port.
func (x *URI) Host() string {
	if !x.Valid() {
		return ""
	}
	return x.u.Hostname()
}

// HostPort returns host[:port] as written.
func (x *URI) HostPort() string {
	if !x.Valid() {
		return ""
	}
	return x.u.Host
}

// Port returns the explicit port, or the default for the scheme.
func (x *URI) Port() int {
	if !x.Valid() {
		return 0
	}
	if p := x.u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	if x.Secure() {
		return 443
	}
	return 80
}

// Path returns the unescaped path.
func (x *URI) Path() string {
	if !x.Valid() {
		return ""
	}
	return x.u.Path
}

// EscapedPath returns the path as sent on the wire.
func (x *URI) EscapedPath() string {
	if !x.Valid() {
		return ""
	}
	return x.u.EscapedPath()
}

// RawQuery returns the query without the leading '?'.
func (x *URI) RawQuery() string {
	if !x.Valid() {
		return ""
	}
	return x.u.RawQuery
}

// Query returns a copy of the parsed query parameters.
func (x *URI) Query() url.Values {
	if !x.Valid() {
		return url.Values{}
	}
	return x.u.Query()
}

func (x *URI) Fragment() string {
	if !x.Valid() {
		return ""
	}
	return x.u.Fragment
}

// PathAndQuery returns the escaped path with its query, as used in a request line.
func (x *URI) PathAndQuery() string {
	if !x.Valid() {
		return ""
	}
	if x.u.RawQuery == "" {
		return x.u.EscapedPath()
	}
	return x.u.EscapedPath() + "?" + x.u.RawQuery
}

// Secure reports whether the scheme implies TLS.
func (x *URI) Secure() bool {
	switch x.Scheme() {
	case "https", "davs", "s3s", "azures", "gcloud", "gclouds", "swifts":
		return true
	}
	return false
}

// HTTPScheme maps protocol-specific schemes onto http or https.
func (x *URI) HTTPScheme() string {
	if x.Secure() {
		return "https"
	}
	return "http"
}

// URL returns a copy of the underlying url with the scheme mapped to
// http or https.
func (x *URI) URL() *url.URL {
	if !x.Valid() {
		return nil
	}
	c := *x.u
	c.Scheme = x.HTTPScheme()
	if c.User != nil {
		c.User = nil
	}
	return &c
}

func (x *URI) clone() *url.URL {
	c := *x.u
	if x.u.User != nil {
		u := *x.u.User
		c.User = &u
	}
	return &c
}

// WithScheme returns a copy with a different scheme.
func (x *URI) WithScheme(s string) *URI {
	if !x.Valid() {
		return x
	}
	c := x.clone()
	c.Scheme = s
	return fromURL(c)
}

// WithPath returns a copy with a different unescaped path.
func (x *URI) WithPath(p string) *URI {
	if !x.Valid() {
		return x
	}
	c := x.clone()
	c.Path = p
	c.RawPath = ""
	return fromURL(c)
}

// WithRawQuery returns a copy with the query replaced.
func (x *URI) WithRawQuery(q string) *URI {
	if !x.Valid() {
		return x
	}
	c := x.clone()
	c.RawQuery = q
	return fromURL(c)
}

// AddQueryParam appends key=value, escaping both, and keeps existing parameter order.
func (x *URI) AddQueryParam(key, value string) *URI {
	if !x.Valid() {
		return x
	}
	pair := EscapeQuery(key) + "=" + EscapeQuery(value)
	if x.u.RawQuery == "" {
		return x.WithRawQuery(pair)
	}
	return x.WithRawQuery(x.u.RawQuery + "&" + pair)
}

// ResolveReference parses ref relative to x. Absolute references replace x.
func (x *URI) ResolveReference(ref string) *URI {
	if !x.Valid() {
		return x
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return &URI{raw: ref, err: daverr.Wrap(err, daverr.UriParsingError, scope, "invalid reference "+strconv.Quote(ref))}
	}
	return fromURL(x.u.ResolveReference(r))
}

// SessionKey identifies the endpoint a connection to this URI talks to.
func (x *URI) SessionKey() string {
	if !x.Valid() {
		return ""
	}
	return x.HTTPScheme() + "://" + net.JoinHostPort(x.Host(), strconv.Itoa(x.Port()))
}

// EscapeQuery percent-encodes s for use in a query component. Unlike
// url.QueryEscape, spaces become %20.
func EscapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
