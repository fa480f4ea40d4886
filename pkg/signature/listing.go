package signature

import (
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// S3ListingURI turns a directory URI into a bucket listing request:
// <scheme>://<host>/?prefix=<dir/>[&delimiter=/]&max-keys=<n>. The delimiter is
// left out for recursive listings.
func S3ListingURI(u *uri.URI, maxKeys int, delimiter bool) *uri.URI {
	return s3Listing(u, "/", strings.TrimPrefix(u.Path(), "/"), maxKeys, delimiter)
}

// S3PathStyleListingURI is S3ListingURI for path-style addressing, where
// the bucket is the first path segment: s3://<host>/<bucket>/?prefix=...
func S3PathStyleListingURI(u *uri.URI, maxKeys int, delimiter bool) *uri.URI {
	p := strings.TrimPrefix(u.Path(), "/")
	bucket, prefix, _ := strings.Cut(p, "/")
	return s3Listing(u, "/"+escapePrefix(bucket)+"/", prefix, maxKeys, delimiter)
}

func s3Listing(u *uri.URI, base, prefix string, maxKeys int, delimiter bool) *uri.URI {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var b strings.Builder
	b.WriteString(u.Scheme())
	b.WriteString("://")
	b.WriteString(u.HostPort())
	b.WriteString(base)
	b.WriteString("?prefix=")
	b.WriteString(escapePrefix(prefix))
	if delimiter {
		b.WriteString("&delimiter=/")
	}
	b.WriteString("&max-keys=")
	b.WriteString(strconv.Itoa(maxKeys))
	return uri.Parse(b.String())
}

// escapePrefix query-escapes an object key prefix. Slashes stay literal.
func escapePrefix(prefix string) string {
	return strings.ReplaceAll(uri.EscapeQuery(prefix), "%2F", "/")
}

// AzureListingURI turns a directory URI into a container listing request.
// The prefix is empty at the top of a container.
func AzureListingURI(u *uri.URI) *uri.URI {
	prefix := AzureBlobName(u)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if prefix == "/" {
		prefix = ""
	}
	return u.WithPath("/"+AzureContainerName(u)+"/").
		AddQueryParam("restype", "container").
		AddQueryParam("comp", "list").
		AddQueryParam("prefix", prefix).
		AddQueryParam("delimiter", "/")
}
