package logger

import (
	"strings"
	"sync/atomic"
)

// Scope selects a family of log messages.
type Scope uint32

const (
	ScopeHTTP Scope = 1 << iota
	ScopeXML
	ScopeS3
	ScopeAzure
	ScopeGCloud
	ScopeSwift
	ScopeRedirect
	ScopePool
	ScopeChain
	ScopeCopy

	ScopeNone Scope = 0
	ScopeAll  Scope = ScopeHTTP | ScopeXML | ScopeS3 | ScopeAzure | ScopeGCloud |
		ScopeSwift | ScopeRedirect | ScopePool | ScopeChain | ScopeCopy
)

var scopeNames = map[Scope]string{
	ScopeHTTP:     "http",
	ScopeXML:      "xml",
	ScopeS3:       "s3",
	ScopeAzure:    "azure",
	ScopeGCloud:   "gcloud",
	ScopeSwift:    "swift",
	ScopeRedirect: "redirect",
	ScopePool:     "pool",
	ScopeChain:    "chain",
	ScopeCopy:     "copy",
}

// all scopes enabled unless LOG_SCOPES says otherwise
var activeScopes atomic.Uint32

func init() {
	activeScopes.Store(uint32(ScopeAll))
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	var parts []string
	for bit := ScopeHTTP; bit <= ScopeCopy; bit <<= 1 {
		if s&bit != 0 {
			parts = append(parts, scopeNames[bit])
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// SetScopes replaces the process-wide set of enabled scopes.
func SetScopes(s Scope) {
	activeScopes.Store(uint32(s))
}

// Scopes returns the enabled scopes.
func Scopes() Scope {
	return Scope(activeScopes.Load())
}

// ScopeEnabled reports whether every bit of s is enabled.
func ScopeEnabled(s Scope) bool {
	return Scope(activeScopes.Load())&s == s
}

// ParseScopes parses a comma separated list such as "http,s3". Unknown names
// are ignored and "all" enables everything.
func ParseScopes(raw string) Scope {
	var out Scope
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if name == "all" {
			return ScopeAll
		}
		for bit, n := range scopeNames {
			if n == name {
				out |= bit
			}
		}
	}
	return out
}
