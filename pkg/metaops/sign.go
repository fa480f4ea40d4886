package metaops

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/signature"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// Sign authenticates one exchange according to the configured credential.
// It returns the URI to send, which differs from u for query-string
// schemes, and may add headers. Credentials that do not sign (none,
// login/password, X.509) leave u and headers untouched.
func Sign(ctx context.Context, method string, u *uri.URI, p *params.RequestParams, headers *types.HeaderVec) (*uri.URI, error) {
	validity := p.SignDuration
	if validity <= 0 {
		validity = params.DefaultSignDuration
	}

	switch cred := p.Credential.(type) {
	case params.S3Keys:
		if cred.Region != "" {
			return signature.PresignS3V4(ctx, cred, method, u, *headers, validity)
		}
		signature.SignS3Request(cred, method, u, headers)
		return u, nil

	case params.AzureKey:
		return signature.SignAzure(cred.Key, method, u, validity)

	case params.GCloudKey:
		return signature.SignGCloud(cred, method, u, time.Now().Add(validity))

	case params.SwiftToken:
		return signature.SignSwift(cred, u, headers), nil
	}
	return u, nil
}
