// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"sync"

	"github.com/minio/crc64nvme"
	"github.com/minio/sha256-simd"
)

// HasherPool recycles hashers of a single algorithm.
type HasherPool struct {
	pool sync.Pool
}

func NewHasherPool(newFn func() hash.Hash) *HasherPool {
	return &HasherPool{pool: sync.Pool{New: func() any { return newFn() }}}
}

func (p *HasherPool) Get() hash.Hash {
	return p.pool.Get().(hash.Hash)
}

// Put resets h and returns it to the pool.
func (p *HasherPool) Put(h hash.Hash) {
	h.Reset()
	p.pool.Put(h)
}

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

var (
	MD5Pool       = NewHasherPool(md5.New)
	SHA1Pool      = NewHasherPool(sha1.New)
	SHA256Pool    = NewHasherPool(sha256.New)
	Adler32Pool   = NewHasherPool(func() hash.Hash { return adler32.New() })
	CRC32Pool     = NewHasherPool(func() hash.Hash { return crc32.NewIEEE() })
	CRC32CPool    = NewHasherPool(func() hash.Hash { return crc32.New(crc32cTable) })
	CRC64NVMEPool = NewHasherPool(func() hash.Hash { return crc64nvme.New() })
)
