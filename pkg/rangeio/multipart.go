// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package rangeio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strconv"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

const (
	scope = "rangeio"

	boundaryField  = "boundary="
	maxBoundaryLen = 70

	// header lines tolerated before a part payload starts
	maxPartHeaderLines = 100
	maxLineLength      = 4096

	readBlockSize = 64 << 10
)

func errMultipart(format string, args ...any) error {
	return daverr.Newf(daverr.InvalidServerResponse, scope, "invalid multi-part http response: "+format, args...)
}

// ExtractBoundary returns the boundary parameter of a multipart Content-Type.
// Quoted values and trailing parameters are accepted.
func ExtractBoundary(contentType string) (string, error) {
	boundary, ok := "", false
	if _, ps, err := mime.ParseMediaType(contentType); err == nil {
		boundary, ok = ps["boundary"]
	} else {
		// servers send parameters mime rejects; scan for the field instead
		boundary, ok = scanBoundary(contentType)
	}
	if !ok || boundary == "" || len(boundary) > maxBoundaryLen {
		return "", errMultipart("invalid boundary in %q", contentType)
	}
	return boundary, nil
}

func scanBoundary(contentType string) (string, bool) {
	i := strings.Index(strings.ToLower(contentType), boundaryField)
	if i < 0 {
		return "", false
	}
	rest := contentType[i+len(boundaryField):]
	tokens := strings.FieldsFunc(rest, func(r rune) bool { return r == '"' || r == ';' })
	if len(tokens) == 0 {
		return "", false
	}
	return strings.TrimSpace(tokens[0]), true
}

// IsStartBoundary reports whether line is exactly "--" followed by boundary.
func IsStartBoundary(line, boundary string) bool {
	return len(line) > 3 && strings.HasPrefix(line, "--") && line[2:] == boundary
}

func isEndBoundary(line, boundary string) bool {
	return line == "--"+boundary+"--"
}

// ParseContentRangeLine parses a "Content-Range: bytes a-b/total" header
// line. ok is false with a nil error when the line is another header.
func ParseContentRangeLine(line string) (offset, size int64, ok bool, err error) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return 0, 0, false, daverr.Newf(daverr.ParsingError, scope, "not a header line: %q", line)
	}
	if !strings.EqualFold(strings.TrimSpace(name), "Content-Range") {
		return 0, 0, false, nil
	}
	offset, size, err = ParseContentRange(value)
	if err != nil {
		return 0, 0, false, err
	}
	return offset, size, true, nil
}

// ParseContentRange parses a Content-Range value "bytes a-b/total" into the
// part offset and length. The total is required but may be "*".
// Non-numeric and reversed bounds are rejected.
func ParseContentRange(value string) (offset, size int64, err error) {
	value = strings.TrimSpace(value)
	unit, spec, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(unit, "bytes") {
		return 0, 0, daverr.Newf(daverr.ParsingError, scope, "invalid content range %q", value)
	}
	spec, total, found := strings.Cut(strings.TrimSpace(spec), "/")
	if !found {
		return 0, 0, daverr.Newf(daverr.ParsingError, scope, "content range without total %q", value)
	}
	if total != "*" {
		if _, err := strconv.ParseUint(total, 10, 63); err != nil {
			return 0, 0, daverr.Newf(daverr.ParsingError, scope, "invalid content range total %q", value)
		}
	}
	first, last, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, daverr.Newf(daverr.ParsingError, scope, "invalid content range %q", value)
	}
	begin, err1 := strconv.ParseInt(first, 10, 64)
	end, err2 := strconv.ParseInt(last, 10, 64)
	if err1 != nil || err2 != nil || begin < 0 || end < begin {
		return 0, 0, daverr.Newf(daverr.ParsingError, scope, "invalid content range %q", value)
	}
	return begin, end - begin + 1, nil
}

type lineReader struct {
	r *bufio.Reader
}

func (l lineReader) readLine() (string, error) {
	line, err := l.r.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", errMultipart("header line too long")
	case err == io.EOF && len(line) > 0:
		err = nil
	case err == io.EOF:
		return "", errMultipart("unexpected end of body")
	case err != nil:
		return "", err
	}
	return string(bytes.TrimRight(line, "\r\n")), nil
}

type partInfo struct {
	offset, size int64
	ranged       bool
	end          bool
}

// readPartHeader consumes the delimiter and headers of the next part.
func (l lineReader) readPartHeader(boundary string) (partInfo, error) {
	var (
		info    partInfo
		bounded bool
	)
	for n := 0; ; n++ {
		if n > maxPartHeaderLines {
			return info, errMultipart("multi-part header too long")
		}
		line, err := l.readLine()
		if err != nil {
			return info, err
		}

		if !bounded {
			switch {
			case line == "":
				continue
			case isEndBoundary(line, boundary):
				info.end = true
				return info, nil
			case !IsStartBoundary(line, boundary):
				return info, errMultipart("invalid boundary delimitation %q", line)
			}
			bounded = true
			continue
		}

		if line == "" {
			if !info.ranged {
				return info, errMultipart("part without content range")
			}
			return info, nil
		}
		if info.ranged {
			continue
		}
		off, size, ok, err := ParseContentRangeLine(line)
		if err != nil {
			return info, err
		}
		if ok {
			info.offset, info.size, info.ranged = off, size, true
		}
	}
}

// ReadMultipart scatters a multipart/byteranges body into vecs. Parts must
// arrive in request order and match the requested ranges. out[i] receives
// the bytes placed into vecs[i]; the total is returned.
func ReadMultipart(body io.Reader, boundary string, vecs []IOVec, out []int) (int64, error) {
	lr := lineReader{r: bufio.NewReaderSize(body, maxLineLength)}
	log := logger.Scoped(logger.ScopeHTTP)

	var total int64
	for i := range vecs {
		info, err := lr.readPartHeader(boundary)
		if err != nil {
			return total, err
		}
		if info.end {
			log.Debug().Int("parsed", i).Int("requested", len(vecs)).Msg("multi-part end reached early")
			return total, nil
		}

		v := vecs[i]
		want := int64(len(v.Buf))
		if want != 0 && (info.offset != v.Offset || info.size != want) {
			return total, errMultipart("request offset:%d size:%d, answer offset:%d size:%d",
				v.Offset, want, info.offset, info.size)
		}

		if want == 0 {
			// one byte was requested for an empty slot
			var trash [1]byte
			if _, err := io.ReadFull(lr.r, trash[:]); err != nil {
				return total, daverr.Wrap(err, daverr.InvalidServerResponse, scope, "read part")
			}
			out[i] = 0
			continue
		}

		n, err := io.ReadFull(lr.r, v.Buf)
		out[i] = n
		total += int64(n)
		if err != nil {
			return total, daverr.Wrap(err, daverr.InvalidServerResponse, scope, "read part")
		}
	}
	return total, nil
}

// ScatterFull handles a server answering a ranged request with the whole
// resource: the body is streamed once and every slot receives the bytes that
// overlap it.
func ScatterFull(body io.Reader, vecs []IOVec, out []int) (int64, error) {
	order := make([]int, len(vecs))
	for i := range order {
		order[i] = i
		out[i] = 0
	}
	sort.SliceStable(order, func(a, b int) bool { return vecs[order[a]].Offset < vecs[order[b]].Offset })

	buf := utils.GetBlock(readBlockSize)
	defer utils.PutBlock(buf)

	var (
		pos   int64
		start int
	)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			blockEnd := pos + int64(n)
			for start < len(order) && vecEnd(vecs[order[start]]) <= pos {
				start++
			}
			for _, idx := range order[start:] {
				v := vecs[idx]
				if v.Offset >= blockEnd {
					break
				}
				from := max(v.Offset+int64(out[idx]), pos)
				to := min(vecEnd(v), blockEnd)
				if to > from {
					c := copy(v.Buf[from-v.Offset:], buf[from-pos:to-pos])
					out[idx] += c
				}
			}
			pos = blockEnd
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum(out), fmt.Errorf("scatter full body: %w", err)
		}
	}
	return sum(out), nil
}

func vecEnd(v IOVec) int64 { return v.Offset + int64(len(v.Buf)) }

func sum(out []int) int64 {
	var t int64
	for _, n := range out {
		t += int64(n)
	}
	return t
}
