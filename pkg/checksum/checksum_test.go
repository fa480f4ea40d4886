package checksum

import (
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	var headers types.HeaderVec
	_, ok := Extract(headers, "md5")
	assert.False(t, ok)

	headers.Add("Digest", "md5=8dafb171a7455ee8977515d81c90bc12")
	sum, ok := Extract(headers, "md5")
	require.True(t, ok)
	assert.Equal(t, "8dafb171a7455ee8977515d81c90bc12", sum)

	headers.Add("Digest", "sha=y9oivLQasBUbQ4WJqkY34g==")
	sum, ok = Extract(headers, "md5")
	require.True(t, ok)
	assert.Equal(t, "8dafb171a7455ee8977515d81c90bc12", sum)

	sum, ok = Extract(headers, "sha")
	require.True(t, ok)
	assert.Equal(t, "cbda22bcb41ab0151b438589aa4637e2", sum)

	headers.Add("Digest", "ADLER32=9600001")
	sum, ok = Extract(headers, "adler32")
	require.True(t, ok)
	assert.Equal(t, "09600001", sum)

	headers.Add("Digest", "CRC32C=03da0195")
	sum, ok = Extract(headers, "crc32c")
	require.True(t, ok)
	assert.Equal(t, "03da0195", sum)

	_, ok = Extract(headers, "crc32")
	assert.False(t, ok)

	headers.Add("digest", "frob=y9oivLQasBUbQ4WJqkY34g==")
	sum, ok = Extract(headers, "frob")
	require.True(t, ok)
	assert.Equal(t, "cbda22bcb41ab0151b438589aa4637e2", sum)
}

func TestExtract_MultipleValues(t *testing.T) {
	t.Parallel()

	headers := types.HeaderVec{{Name: "Digest", Value: "adler32=10cf712f,md5=+Tvja0I4Jp7AhrZfWO7C3A=="}}

	sum, ok := Extract(headers, "adler32")
	require.True(t, ok)
	assert.Equal(t, "10cf712f", sum)

	sum, ok = Extract(headers, "md5")
	require.True(t, ok)
	assert.Equal(t, "f93be36b4238269ec086b65f58eec2dc", sum)
}

func TestFromETag(t *testing.T) {
	t.Parallel()

	sum, ok := FromETag(`"8DAFB171A7455EE8977515D81C90BC12"`)
	require.True(t, ok)
	assert.Equal(t, "8dafb171a7455ee8977515d81c90bc12", sum)

	_, ok = FromETag(`"8dafb171a7455ee8977515d81c90bc12-3"`)
	assert.False(t, ok)
	_, ok = FromETag(`W/"8dafb171a7455ee8977515d81c90bc12"`)
	assert.False(t, ok)
}

func TestAmzHeader(t *testing.T) {
	t.Parallel()

	h, ok := AmzHeader("CRC64NVME")
	require.True(t, ok)
	assert.Equal(t, "x-amz-checksum-crc64nvme", h)

	_, ok = AmzHeader("adler32")
	assert.False(t, ok)
}

func TestDecodeBase64Hex(t *testing.T) {
	t.Parallel()

	sum, ok := DecodeBase64Hex("+Tvja0I4Jp7AhrZfWO7C3A==")
	require.True(t, ok)
	assert.Equal(t, "f93be36b4238269ec086b65f58eec2dc", sum)

	_, ok = DecodeBase64Hex("%%%")
	assert.False(t, ok)
}

func TestCompute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		algo string
		want string
	}{
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"adler32", "024d0127"},
		{"crc32", "352441c2"},
		{"crc32c", "364b3fb7"},
	}

	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			t.Parallel()
			got, err := Compute(tt.algo, strings.NewReader("abc"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := Compute("crc64nvme", strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Len(t, got, 16)

	_, err = Compute("whirlpool", strings.NewReader("abc"))
	assert.True(t, daverr.Is(err, daverr.OperationNonSupported))
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, Equal("9600001", "09600001"))
	assert.True(t, Equal("ABCDEF", "abcdef"))
	assert.False(t, Equal("abcdef", "abcdee"))
}
