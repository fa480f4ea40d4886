// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

const (
	unsignedPayload = "UNSIGNED-PAYLOAD"
	s3Service       = "s3"

	// maximum validity accepted by S3 for SigV4 presigned URLs
	maxV4Expiry = 7 * 24 * time.Hour
)

// S3Credentials converts keys into aws.Credentials through a static provider.
func S3Credentials(ctx context.Context, keys params.S3Keys) (aws.Credentials, error) {
	provider := credentials.NewStaticCredentialsProvider(keys.AccessKey, keys.SecretKey, keys.Token)
	return provider.Retrieve(ctx)
}

// PresignS3V4 returns u presigned with AWS Signature Version 4 query
// parameters. keys.Region must be set. Headers in headers are signed too and
// must be sent with the request.
func PresignS3V4(ctx context.Context, keys params.S3Keys, method string, u *uri.URI, headers types.HeaderVec, validity time.Duration) (*uri.URI, error) {
	if keys.Region == "" {
		return nil, daverr.New(daverr.InvalidArgument, "s3", "sigv4 needs a region")
	}
	if validity <= 0 || validity > maxV4Expiry {
		validity = maxV4Expiry
	}

	target := u.URL()
	q := target.Query()
	q.Set("X-Amz-Expires", strconv.FormatInt(int64(validity/time.Second), 10))
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, daverr.Wrap(err, daverr.UriParsingError, "s3", "build presign request")
	}
	for _, h := range headers {
		if isAmzHeader(h.Name) {
			req.Header.Add(h.Name, h.Value)
		}
	}

	creds, err := S3Credentials(ctx, keys)
	if err != nil {
		return nil, daverr.Wrap(err, daverr.CredentialNotFound, "s3", "retrieve credentials")
	}

	signed, _, err := v4.NewSigner().PresignHTTP(ctx, creds, req, unsignedPayload, s3Service, keys.Region, nowFunc().UTC())
	if err != nil {
		return nil, daverr.Wrap(err, daverr.AuthenticationError, "s3", "presign sigv4")
	}

	out := uri.Parse(signed)
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
