// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package params

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// Protocol selects the wire dialect used for an operation.
type Protocol int

const (
	ProtocolAuto Protocol = iota
	ProtocolHTTP
	ProtocolWebDAV
	ProtocolS3
	ProtocolAzure
	ProtocolSwift
	ProtocolGCloud
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolWebDAV:
		return "webdav"
	case ProtocolS3:
		return "s3"
	case ProtocolAzure:
		return "azure"
	case ProtocolSwift:
		return "swift"
	case ProtocolGCloud:
		return "gcloud"
	}
	return "auto"
}

// ParseProtocol accepts the names printed by Protocol.String.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ProtocolAuto, true
	case "http", "https":
		return ProtocolHTTP, true
	case "webdav", "dav", "davs":
		return ProtocolWebDAV, true
	case "s3", "s3s":
		return ProtocolS3, true
	case "azure", "azures":
		return ProtocolAzure, true
	case "swift", "swifts":
		return ProtocolSwift, true
	case "gcloud", "gclouds", "gs":
		return ProtocolGCloud, true
	}
	return ProtocolAuto, false
}

// Resolve returns the protocol to use for u: an explicit protocol wins,
// otherwise the URI scheme decides.
func (p Protocol) Resolve(u *uri.URI) Protocol {
	if p != ProtocolAuto {
		return p
	}
	switch u.Scheme() {
	case "s3", "s3s":
		return ProtocolS3
	case "azure", "azures":
		return ProtocolAzure
	case "swift", "swifts":
		return ProtocolSwift
	case "gcloud", "gclouds":
		return ProtocolGCloud
	case "dav", "davs":
		return ProtocolWebDAV
	}
	return ProtocolAuto
}

// LoginCallback supplies login/password credentials after an
// authentication failure. attempt starts at 1. Returning an error stops
// retrying and surfaces the authentication failure.
type LoginCallback func(ctx context.Context, u *uri.URI, attempt int) (user, password string, err error)

const (
	DefaultConnectionTimeout = 30 * time.Second
	DefaultOperationTimeout  = 180 * time.Second
	DefaultUserAgent         = "zapdav/1.0"
	DefaultS3MaxKeys         = 10000
	DefaultMaxAuthAttempts   = 3
	DefaultOperationRetry    = 3
	DefaultRetryDelay        = 0
	DefaultSignDuration      = time.Hour
	DefaultAzureBlockSize    = 4 << 20
)

// RequestParams carries the configuration of one operation. Copy it with
// Clone before handing it to another goroutine.
type RequestParams struct {
	TLSVerify         bool
	ClientCert        *tls.Certificate
	CAFile            string
	ConnectionTimeout time.Duration
	OperationTimeout  time.Duration

	TransparentRedirect bool
	Protocol            Protocol
	UserAgent           string
	Headers             types.HeaderVec

	OperationRetry      int
	OperationRetryDelay time.Duration
	MaxAuthAttempts     int

	Credential    Credential
	LoginCallback LoginCallback

	// S3MaxKeys bounds a single listing page.
	S3MaxKeys int
	// SignDuration is the validity window of query-string signatures.
	SignDuration time.Duration
	// AzureBlockSize is the block size used for Azure block uploads.
	AzureBlockSize int64
}

// Default returns RequestParams with the library defaults.
func Default() RequestParams {
	return RequestParams{
		TLSVerify:           true,
		ConnectionTimeout:   DefaultConnectionTimeout,
		OperationTimeout:    DefaultOperationTimeout,
		TransparentRedirect: true,
		UserAgent:           DefaultUserAgent,
		OperationRetry:      DefaultOperationRetry,
		OperationRetryDelay: DefaultRetryDelay,
		MaxAuthAttempts:     DefaultMaxAuthAttempts,
		S3MaxKeys:           DefaultS3MaxKeys,
		SignDuration:        DefaultSignDuration,
		AzureBlockSize:      DefaultAzureBlockSize,
	}
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *RequestParams) Clone() RequestParams {
	c := *p
	c.Headers = p.Headers.Clone()
	if p.Credential != nil {
		c.Credential = p.Credential.clone()
	}
	return c
}

// WithDefaults fills zero-valued fields from Default.
func (p RequestParams) WithDefaults() RequestParams {
	d := Default()
	if p.ConnectionTimeout <= 0 {
		p.ConnectionTimeout = d.ConnectionTimeout
	}
	if p.OperationTimeout <= 0 {
		p.OperationTimeout = d.OperationTimeout
	}
	if p.UserAgent == "" {
		p.UserAgent = d.UserAgent
	}
	if p.MaxAuthAttempts <= 0 {
		p.MaxAuthAttempts = d.MaxAuthAttempts
	}
	if p.S3MaxKeys <= 0 {
		p.S3MaxKeys = d.S3MaxKeys
	}
	if p.SignDuration <= 0 {
		p.SignDuration = d.SignDuration
	}
	if p.AzureBlockSize <= 0 {
		p.AzureBlockSize = d.AzureBlockSize
	}
	return p
}

// SessionKey is the pool key for sessions created under these params. The
// operation timeout is applied per request and is not part of the key.
func (p *RequestParams) SessionKey(u *uri.URI) string {
	var b strings.Builder
	b.WriteString(u.SessionKey())
	if p.TLSVerify {
		b.WriteString("|verify")
	} else {
		b.WriteString("|noverify")
	}
	if p.ClientCert != nil && len(p.ClientCert.Certificate) > 0 {
		b.WriteString("|cert:")
		leaf := p.ClientCert.Certificate[0]
		if len(leaf) > 16 {
			leaf = leaf[len(leaf)-16:]
		}
		for _, c := range leaf {
			b.WriteByte("0123456789abcdef"[c>>4])
			b.WriteByte("0123456789abcdef"[c&0x0f])
		}
	}
	if p.CAFile != "" {
		b.WriteString("|ca:" + p.CAFile)
	}
	// the dialer and TLS handshake of a session are built with it
	connTimeout := p.ConnectionTimeout
	if connTimeout <= 0 {
		connTimeout = DefaultConnectionTimeout
	}
	b.WriteString("|conn:" + connTimeout.String())
	return b.String()
}
