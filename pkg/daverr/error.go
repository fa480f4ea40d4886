// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package daverr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every failure the library reports.
type Kind int

const (
	OK Kind = iota
	UnknownError

	// Input
	UriParsingError
	ParsingError
	InvalidArgument

	// Transport
	SessionCreationError
	ConnectionProblem
	ConnectionTimeout
	OperationTimeout
	RedirectionNeeded
	RedirectionLoop
	InvalidServerResponse

	// Authentication
	AuthenticationError
	LoginPasswordError
	CredentialNotFound

	// Resource
	WebDavPropertiesParsingError
	PermissionRefused
	FileNotFound
	IsADirectory
	IsNotADirectory
	FileExist

	// Misc
	SystemError
	OperationNonSupported
	Canceled
	RemoteError
)

var kindNames = map[Kind]string{
	OK:                           "OK",
	UnknownError:                 "UnknownError",
	UriParsingError:              "UriParsingError",
	ParsingError:                 "ParsingError",
	InvalidArgument:              "InvalidArgument",
	SessionCreationError:         "SessionCreationError",
	ConnectionProblem:            "ConnectionProblem",
	ConnectionTimeout:            "ConnectionTimeout",
	OperationTimeout:             "OperationTimeout",
	RedirectionNeeded:            "RedirectionNeeded",
	RedirectionLoop:              "RedirectionLoop",
	InvalidServerResponse:        "InvalidServerResponse",
	AuthenticationError:          "AuthenticationError",
	LoginPasswordError:           "LoginPasswordError",
	CredentialNotFound:           "CredentialNotFound",
	WebDavPropertiesParsingError: "WebDavPropertiesParsingError",
	PermissionRefused:            "PermissionRefused",
	FileNotFound:                 "FileNotFound",
	IsADirectory:                 "IsADirectory",
	IsNotADirectory:              "IsNotADirectory",
	FileExist:                    "FileExist",
	SystemError:                  "SystemError",
	OperationNonSupported:        "OperationNonSupported",
	Canceled:                     "Canceled",
	RemoteError:                  "RemoteError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error carries a Kind, the scope that raised it and an optional cause.
type Error struct {
	Kind  Kind
	Scope string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Scope != "" {
		b.WriteString(e.Scope)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: FileNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Scope == ""
}

func New(kind Kind, scope, msg string) *Error {
	return &Error{Kind: kind, Scope: scope, Msg: msg}
}

func Newf(kind Kind, scope, format string, args ...any) *Error {
	return &Error{Kind: kind, Scope: scope, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and scope to err. A nil err stays nil.
func Wrap(err error, kind Kind, scope, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Scope: scope, Msg: msg, Err: err}
}

// Prefix adds operation context to err while keeping its Kind.
func Prefix(err error, prefix string) error {
	if err == nil {
		return nil
	}
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	var de *Error
	if errors.As(err, &de) {
		msg := p
		if de.Msg != "" {
			msg = p + ": " + de.Msg
		}
		return &Error{Kind: de.Kind, Scope: de.Scope, Msg: msg, Err: de.Err}
	}
	return &Error{Kind: KindOf(err), Msg: p, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// UnknownError. A nil error is OK.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return OperationTimeout
	case errors.Is(err, context.Canceled):
		return Canceled
	}
	return UnknownError
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
