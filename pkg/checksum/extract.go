// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum reads server-side digests out of response headers and
// computes the same digests locally for verification.
package checksum

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// ExtractFromLine looks for algo=value in one comma separated Digest header
// value (RFC 3230) and returns it hex encoded. UNIXcksum, CRC32c and UNIXsum
// are returned as sent; ADLER32 is zero padded to eight digits; md5 is
// accepted either hex or base64 encoded; everything else is base64 decoded.
func ExtractFromLine(line, algo string) (string, bool) {
	prefix := algo + "="
	for _, chunk := range strings.Split(line, ",") {
		chunk = strings.TrimSpace(chunk)
		if len(chunk) < len(prefix) || !strings.EqualFold(chunk[:len(prefix)], prefix) {
			continue
		}
		value := chunk[len(prefix):]

		switch {
		case strings.EqualFold(algo, "UNIXcksum"),
			strings.EqualFold(algo, "CRC32c"),
			strings.EqualFold(algo, "UNIXsum"):
			return value, true
		case strings.EqualFold(algo, "ADLER32"):
			if len(value) < 8 {
				value = strings.Repeat("0", 8-len(value)) + value
			}
			return value, true
		case strings.EqualFold(algo, "md5") && len(value) == 32:
			// older DPM releases send hex
			return value, true
		}
		return decodeBase64Hex(value), true
	}
	return "", false
}

// Extract scans every Digest header for algo.
func Extract(headers types.HeaderVec, algo string) (string, bool) {
	for _, line := range headers.Values("Digest") {
		if sum, ok := ExtractFromLine(line, algo); ok {
			return sum, true
		}
	}
	return "", false
}

// AmzHeader is the S3 additional checksum header carrying algo, if any.
func AmzHeader(algo string) (string, bool) {
	switch strings.ToLower(algo) {
	case "crc32":
		return "x-amz-checksum-crc32", true
	case "crc32c":
		return "x-amz-checksum-crc32c", true
	case "crc64nvme":
		return "x-amz-checksum-crc64nvme", true
	case "sha1", "sha":
		return "x-amz-checksum-sha1", true
	case "sha256":
		return "x-amz-checksum-sha256", true
	}
	return "", false
}

// FromETag returns the md5 carried by a single-part S3 ETag. Multipart
// uploads produce "<hex>-<parts>" ETags that are not content digests.
func FromETag(etag string) (string, bool) {
	etag = strings.Trim(strings.TrimSpace(etag), `"`)
	if strings.HasPrefix(etag, "W/") || len(etag) != 32 {
		return "", false
	}
	if _, err := hex.DecodeString(etag); err != nil {
		return "", false
	}
	return strings.ToLower(etag), true
}

// DecodeBase64Hex converts a base64 digest, as sent in Content-MD5 or
// x-amz-checksum-* headers, to lower-case hex.
func DecodeBase64Hex(value string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return hex.EncodeToString(raw), true
}

// decodeBase64Hex accepts padded and unpadded input. On corrupt input the
// longest decodable prefix is used.
func decodeBase64Hex(value string) string {
	value = strings.TrimRight(value, "=")
	raw, err := base64.RawStdEncoding.DecodeString(value)
	if err != nil {
		if ce, ok := err.(base64.CorruptInputError); ok {
			raw, _ = base64.RawStdEncoding.DecodeString(value[:int(ce)/4*4])
		}
	}
	return hex.EncodeToString(raw)
}
