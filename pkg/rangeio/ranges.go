// Package rangeio turns vectored reads into HTTP Range requests and scatters
// single-part, multipart/byteranges or full responses back into the caller's
// buffers.
package rangeio

import (
	"strconv"
	"strings"
)

// MaxHeaderSize bounds one Range header. Apache and nginx reject request
// header lines above 8K, and some S3 implementations cap the whole header
// block at 8K.
const MaxHeaderSize = 7900

const rangePrefix = "bytes="

// IOVec is one slot of a vectored read: len(Buf) bytes starting at Offset.
type IOVec struct {
	Offset int64
	Buf    []byte
}

// OffsetProvider yields inclusive (begin, end) pairs until ok is false.
type OffsetProvider func() (begin, end int64, ok bool)

// RangeHeader is one Range header value and the number of ranges it holds.
type RangeHeader struct {
	Count int
	Value string
}

// VecProvider walks vecs in order. Empty slots request a single byte since
// servers reject zero length ranges.
func VecProvider(vecs []IOVec) OffsetProvider {
	i := 0
	return func() (int64, int64, bool) {
		if i >= len(vecs) {
			return 0, 0, false
		}
		v := vecs[i]
		i++
		end := v.Offset + int64(len(v.Buf)) - 1
		if end < v.Offset {
			end = v.Offset
		}
		return v.Offset, end, true
	}
}

// OffsetRequest builds "bytes=a-b,c-d,...". A zero size is encoded as the
// open range "a-".
func OffsetRequest(offsets, sizes []int64) string {
	var b strings.Builder
	b.WriteString(rangePrefix)
	for i := range offsets {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(offsets[i], 10))
		b.WriteByte('-')
		if i < len(sizes) && sizes[i] > 0 {
			b.WriteString(strconv.FormatInt(offsets[i]+sizes[i]-1, 10))
		}
	}
	return b.String()
}

// GenerateRangeHeaders drains next into as few Range header values as fit in
// maxHeaderSize each. Input order is preserved, and the counts of the
// returned headers sum to the number of pairs pulled. A single range longer
// than maxHeaderSize still gets its own header.
func GenerateRangeHeaders(maxHeaderSize int, next OffsetProvider) []RangeHeader {
	var (
		out   []RangeHeader
		b     strings.Builder
		count int
	)
	flush := func() {
		if count == 0 {
			return
		}
		out = append(out, RangeHeader{Count: count, Value: b.String()})
		b.Reset()
		count = 0
	}

	for {
		begin, end, ok := next()
		if !ok {
			break
		}
		r := strconv.FormatInt(begin, 10) + "-" + strconv.FormatInt(end, 10)

		if count > 0 && b.Len()+1+len(r) > maxHeaderSize {
			flush()
		}
		if count == 0 {
			b.WriteString(rangePrefix)
		} else {
			b.WriteByte(',')
		}
		b.WriteString(r)
		count++
	}
	flush()
	return out
}
