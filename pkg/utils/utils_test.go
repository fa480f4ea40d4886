package utils

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size int
		want int
	}{
		{size: 1, want: 0},
		{size: 4 << 10, want: 0},
		{size: 4<<10 + 1, want: 1},
		{size: 64 << 10, want: 4},
		{size: 4 << 20, want: 10},
		{size: 16 << 20, want: 12},
		{size: 16<<20 + 1, want: -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, blockClass(tt.size), "size %d", tt.size)
	}
}

func TestGetPutBlock(t *testing.T) {
	t.Parallel()

	b := GetBlock(3000)
	assert.Len(t, b, 3000)
	assert.Equal(t, 4096, cap(b))
	PutBlock(b)

	azure := GetBlock(4 << 20)
	assert.Len(t, azure, 4<<20)
	assert.Equal(t, 4<<20, cap(azure))
	PutBlock(azure)

	big := GetBlock(32 << 20)
	assert.Len(t, big, 32<<20)
	PutBlock(big)

	// not a class size
	PutBlock(make([]byte, 1500, 6000))
	again := GetBlock(5000)
	assert.Equal(t, 8192, cap(again))
}

func TestJitterUp(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := JitterUp(base, 0.2)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+20*time.Millisecond)
	}
	assert.Equal(t, base, JitterUp(base, 0))
	assert.Equal(t, time.Duration(0), JitterUp(0, 0.5))
}

func TestHasherPool(t *testing.T) {
	t.Parallel()

	h := MD5Pool.Get()
	h.Write([]byte("hello world"))
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", hex.EncodeToString(h.Sum(nil)))
	MD5Pool.Put(h)

	h = MD5Pool.Get()
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", hex.EncodeToString(h.Sum(nil)))
	MD5Pool.Put(h)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "relative/path", ResolvePath("relative/path"))
	assert.Equal(t, "", ResolvePath(""))

	got := ResolvePath("~/zapdav/key.json")
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "key.json", filepath.Base(got))
}

func TestClientTLSConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ClientTLSConfig(false, nil, "")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)

	_, err = ClientTLSConfig(true, nil, filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	_, err = ClientTLSConfig(true, nil, bad)
	assert.Error(t, err)

	_, err = LoadClientCertificate(bad, "")
	assert.Error(t, err)
}
