// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// AWS Signature Version 2, client side:
// https://docs.aws.amazon.com/AmazonS3/latest/userguide/RESTAuthentication.html
//
// Content-MD5 and Content-Type are left empty in the string to sign, and
// x-amz-* headers are canonicalized in the order they were added.

const (
	AuthHeaderV2 = "AWS"

	amzPrefix = "x-amz-"
	amzDate   = "x-amz-date"

	// strftime "%a, %d %b %Y %H:%M:%S %z" in UTC
	s3DateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// nowFunc is replaced in tests.
var nowFunc = time.Now

// S3Bucket returns the bucket a request addresses: the first host label for
// virtual-hosted requests, or the first path segment for path-style ones.
func S3Bucket(u *uri.URI, alternate bool) string {
	if alternate {
		p := strings.TrimPrefix(u.Path(), "/")
		if i := strings.IndexByte(p, '/'); i >= 0 {
			return p[:i]
		}
		return p
	}
	host := u.Host()
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

// s3CanonicalResource is "/<bucket><path>". Path-style URIs already carry
// the bucket in their path.
func s3CanonicalResource(u *uri.URI, alternate bool) string {
	if alternate {
		return u.Path()
	}
	return "/" + S3Bucket(u, false) + u.Path()
}

func isAmzHeader(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.HasPrefix(name, amzPrefix) && name != amzDate
}

// AmzCanonicalHeaders renders every x-amz-* header except x-amz-date as
// "key:value\n", lower-cased and trimmed, in insertion order.
func AmzCanonicalHeaders(headers types.HeaderVec) string {
	var b strings.Builder
	for _, h := range headers {
		if !isAmzHeader(h.Name) {
			continue
		}
		b.WriteString(strings.ToLower(strings.TrimSpace(h.Name)))
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.TrimSpace(h.Value)))
		b.WriteByte('\n')
	}
	return b.String()
}

// S3StringToSign builds the SigV2 string to sign. date is the Date header
// value, or the expiry timestamp for query signing.
func S3StringToSign(method string, u *uri.URI, headers types.HeaderVec, date string, alternate bool) string {
	return strings.Join([]string{
		method,
		"", // Content-MD5
		"", // Content-Type
		date,
		AmzCanonicalHeaders(headers) + s3CanonicalResource(u, alternate),
	}, "\n")
}

// S3Signature is base64(HMAC-SHA1(secret, stringToSign)).
func S3Signature(secretKey, stringToSign string) string {
	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// s3Date returns the Date header, adding the current time when missing.
func s3Date(headers *types.HeaderVec) string {
	if d, ok := headers.Get("Date"); ok {
		return d
	}
	d := nowFunc().UTC().Format(s3DateLayout)
	headers.Add("Date", d)
	return d
}

// SignS3Request appends an "Authorization: AWS <access>:<signature>" header.
// A Date header is added first if headers has none.
func SignS3Request(keys params.S3Keys, method string, u *uri.URI, headers *types.HeaderVec) {
	if keys.Token != "" && !headers.Has("x-amz-security-token") {
		headers.Add("x-amz-security-token", keys.Token)
	}
	date := s3Date(headers)
	sts := S3StringToSign(method, u, *headers, date, keys.Alternate)
	logger.Scoped(logger.ScopeS3).Trace().Str("string_to_sign", sts).Msg("signing s3 request")

	headers.Add("Authorization", AuthHeaderV2+" "+keys.AccessKey+":"+S3Signature(keys.SecretKey, sts))
}

// TokenizeS3Request returns u signed with query parameters valid until
// expires. x-amz-* headers are carried as additional query parameters.
func TokenizeS3Request(keys params.S3Keys, method string, u *uri.URI, headers types.HeaderVec, expires time.Time) *uri.URI {
	exp := strconv.FormatInt(expires.Unix(), 10)
	sts := S3StringToSign(method, u, headers, exp, keys.Alternate)
	sig := uri.EscapeQuery(S3Signature(keys.SecretKey, sts))

	var b strings.Builder
	b.WriteString(u.RawQuery())
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString("AWSAccessKeyId=" + keys.AccessKey)
	b.WriteString("&Signature=" + sig)
	b.WriteString("&Expires=" + exp)
	for _, h := range headers {
		if !isAmzHeader(h.Name) {
			continue
		}
		b.WriteByte('&')
		b.WriteString(uri.EscapeQuery(strings.ToLower(strings.TrimSpace(h.Name))))
		b.WriteByte('=')
		b.WriteString(uri.EscapeQuery(strings.ToLower(strings.TrimSpace(h.Value))))
	}
	return u.WithRawQuery(b.String())
}
