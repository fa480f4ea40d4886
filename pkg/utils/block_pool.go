// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Transfer blocks are recycled per power-of-two class, from one page up to
// the largest block an Azure upload commits in a single PUT.
const (
	minBlockShift = 12 // 4KiB
	maxBlockShift = 24 // 16MiB
)

var blockPools [maxBlockShift - minBlockShift + 1]sync.Pool

// blockClass maps a length to its pool slot, or -1 past the largest class.
func blockClass(size int) int {
	if size <= 1<<minBlockShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxBlockShift {
		return -1
	}
	return shift - minBlockShift
}

// GetBlock returns a slice of length size backed by a pooled block.
// Hand it back with PutBlock once nothing references it.
func GetBlock(size int) []byte {
	c := blockClass(size)
	if c < 0 {
		return make([]byte, size)
	}
	if v, ok := blockPools[c].Get().(*[]byte); ok {
		return (*v)[:size]
	}
	return make([]byte, size, 1<<(c+minBlockShift))
}

// PutBlock recycles b. Slices whose capacity is not a block class are dropped.
func PutBlock(b []byte) {
	n := cap(b)
	if n < 1<<minBlockShift || n > 1<<maxBlockShift || n&(n-1) != 0 {
		return
	}
	b = b[:n]
	blockPools[bits.Len(uint(n))-1-minBlockShift].Put(&b)
}
