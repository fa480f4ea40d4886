// Package request runs one HTTP exchange as a small state machine on top of
// a pooled transport session.
package request

import (
	"context"
	"io"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// State of a request. Finished is terminal.
type State int

const (
	NotStarted State = iota
	Started
	Finished
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Finished:
		return "finished"
	}
	return "not-started"
}

// Request is one HTTP exchange. It is owned by a single goroutine from
// StartRequest until EndRequest.
type Request interface {
	// StartRequest sends the request and reads the response head. Calling it
	// again returns the outcome of the first call without sending anything.
	StartRequest(ctx context.Context) error
	// ReadBlock reads the next chunk of body. It returns io.EOF at the end of
	// the body and is only valid once started.
	ReadBlock(p []byte) (int, error)
	// EndRequest releases the session, returning it to the pool unless
	// DoNotReuseSession was called or the exchange failed.
	EndRequest() error
	DoNotReuseSession()
	IsRecycledSession() bool
	// StatusCode is 0 until a status line was received.
	StatusCode() int
	AnswerHeader(name string) (string, bool)
	AnswerHeaders() types.HeaderVec
	// ObtainRedirectedLocation resolves the Location header against the
	// request URI.
	ObtainRedirectedLocation() (*uri.URI, error)
	State() State
	SessionError() error
}

// blockReader adapts a Request to io.Reader.
type blockReader struct {
	req Request
}

func (b blockReader) Read(p []byte) (int, error) {
	return b.req.ReadBlock(p)
}

// Body exposes the response body of a started request as an io.Reader.
func Body(req Request) io.Reader {
	return blockReader{req: req}
}

// ReadAll reads at most limit bytes of a started request's body.
func ReadAll(req Request, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(Body(req), limit))
}
