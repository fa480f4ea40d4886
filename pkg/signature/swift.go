package signature

import (
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// SignSwift prefixes the path with /v1/AUTH_<project> when a project ID is
// configured and attaches the auth token.
func SignSwift(tok params.SwiftToken, u *uri.URI, headers *types.HeaderVec) *uri.URI {
	out := u
	if tok.ProjectID != "" {
		out = u.WithPath("/v1/AUTH_" + tok.ProjectID + u.Path())
	}
	if tok.Token != "" && headers != nil {
		headers.Set("X-Auth-Token", tok.Token)
	}
	return out
}
