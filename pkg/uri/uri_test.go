package uri

import (
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	u := Parse("https://example.org:8443/data/file.txt?a=1#frag")
	require.True(t, u.Valid())
	assert.Equal(t, "https", u.Scheme())
	assert.Equal(t, "example.org", u.Host())
	assert.Equal(t, "example.org:8443", u.HostPort())
	assert.Equal(t, 8443, u.Port())
	assert.Equal(t, "/data/file.txt", u.Path())
	assert.Equal(t, "a=1", u.RawQuery())
	assert.Equal(t, "frag", u.Fragment())
	assert.Equal(t, "/data/file.txt?a=1", u.PathAndQuery())
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a uri", "/relative/path", "http://[::1"} {
		u := Parse(raw)
		assert.False(t, u.Valid(), raw)
		assert.Equal(t, daverr.UriParsingError, daverr.KindOf(u.Err()), raw)
		assert.Equal(t, "", u.Host())
	}
}

func TestDefaultPorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		port   int
		scheme string
	}{
		{"http://h/", 80, "http"},
		{"dav://h/", 80, "http"},
		{"davs://h/", 443, "https"},
		{"s3s://bucket.s3.amazonaws.com/", 443, "https"},
		{"s3://h:9000/", 9000, "http"},
	}
	for _, tt := range tests {
		u := Parse(tt.raw)
		assert.Equal(t, tt.port, u.Port(), tt.raw)
		assert.Equal(t, tt.scheme, u.HTTPScheme(), tt.raw)
		assert.Equal(t, tt.scheme, u.URL().Scheme, tt.raw)
	}
}

func TestEqualNormalized(t *testing.T) {
	t.Parallel()

	assert.True(t, Parse("http://h").Equal(Parse("http://h/")))
	assert.False(t, Parse("http://h/a").Equal(Parse("http://h/b")))
}

func TestDerivedCopies(t *testing.T) {
	t.Parallel()

	base := Parse("http://h/dir/file")
	withPath := base.WithPath("/other")
	assert.Equal(t, "http://h/other", withPath.String())
	assert.Equal(t, "http://h/dir/file", base.String())

	q := base.AddQueryParam("prefix", "a b/").AddQueryParam("delimiter", "/")
	assert.Equal(t, "prefix=a%20b%2F&delimiter=%2F", q.RawQuery())
}

func TestResolveReference(t *testing.T) {
	t.Parallel()

	base := Parse("http://h/dir/file")
	assert.Equal(t, "http://h/dir/other", base.ResolveReference("other").String())
	assert.Equal(t, "http://h/abs", base.ResolveReference("/abs").String())
	assert.Equal(t, "https://x/y", base.ResolveReference("https://x/y").String())
}

func TestSessionKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://h:443", Parse("davs://h/x").SessionKey())
	assert.Equal(t, Parse("http://h/a").SessionKey(), Parse("http://h:80/b").SessionKey())
}
