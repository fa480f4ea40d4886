package daverr

import "fmt"

// FromHTTPStatus maps an HTTP status code onto the error taxonomy.
func FromHTTPStatus(code int) Kind {
	switch code {
	case 200, 201, 202, 203, 204, 205, 206, 207, 304:
		return OK
	case 401, 402, 407:
		return AuthenticationError
	case 303, 404, 410:
		return FileNotFound
	case 408, 504:
		return OperationTimeout
	case 409:
		return FileExist
	case 403, 423:
		return PermissionRefused
	case 400, 405, 411, 412, 413, 414, 415, 424, 501, 507:
		return ConnectionProblem
	case 300, 301, 302:
		return RedirectionNeeded
	}
	return UnknownError
}

// StatusValid reports whether code is a success response.
func StatusValid(code int) bool {
	return code >= 200 && code < 300
}

// CheckStatus returns nil for a successful code, otherwise an *Error whose
// Kind is derived from the code.
func CheckStatus(code int, scope, what string) error {
	if StatusValid(code) || code == 304 {
		return nil
	}
	return &Error{
		Kind:  FromHTTPStatus(code),
		Scope: scope,
		Msg:   fmt.Sprintf("%s: HTTP %d", what, code),
	}
}
