package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/minio/sha256-simd"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

// serviceAccount is the subset of a Google service account JSON key we use.
type serviceAccount struct {
	PrivateKey  *string `json:"private_key"`
	ClientEmail string  `json:"client_email"`
}

// ParseGCloudCredentials reads a service account JSON key.
func ParseGCloudCredentials(data []byte) (params.GCloudKey, error) {
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return params.GCloudKey{}, daverr.Wrap(err, daverr.ParsingError, "gcloud", "error during JSON parsing")
	}
	if sa.PrivateKey == nil {
		return params.GCloudKey{}, daverr.New(daverr.ParsingError, "gcloud", "error during JSON parsing: could not find private_key")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(*sa.PrivateKey))
	if err != nil {
		return params.GCloudKey{}, daverr.Wrap(err, daverr.ParsingError, "gcloud", "parse private_key")
	}
	return params.GCloudKey{ClientEmail: sa.ClientEmail, PrivateKey: key}, nil
}

// LoadGCloudCredentials reads a service account JSON key from path.
func LoadGCloudCredentials(path string) (params.GCloudKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return params.GCloudKey{}, daverr.Wrap(err, daverr.CredentialNotFound, "gcloud", "read credentials file")
	}
	return ParseGCloudCredentials(data)
}

// GCloudStringToSign builds the V2 signed URL string to sign. The path of a
// storage.googleapis.com URI is already "/<bucket>/<object>".
func GCloudStringToSign(method string, u *uri.URI, expires int64) string {
	return strings.Join([]string{
		method,
		"", // Content-MD5
		"", // Content-Type
		strconv.FormatInt(expires, 10),
		u.Path(),
	}, "\n")
}

// SignGCloud returns u with GoogleAccessId, Expires and Signature appended,
// where Signature is base64(RSA-SHA256(privateKey, stringToSign)).
func SignGCloud(key params.GCloudKey, method string, u *uri.URI, expires time.Time) (*uri.URI, error) {
	if key.PrivateKey == nil {
		return nil, daverr.New(daverr.CredentialNotFound, "gcloud", "no private key")
	}

	exp := expires.Unix()
	sts := GCloudStringToSign(method, u, exp)
	logger.Scoped(logger.ScopeGCloud).Trace().Str("string_to_sign", sts).Msg("signing gcloud request")

	digest := sha256.Sum256([]byte(sts))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, daverr.Wrap(err, daverr.AuthenticationError, "gcloud", "rsa sign")
	}

	return u.AddQueryParam("GoogleAccessId", key.ClientEmail).
		AddQueryParam("Expires", strconv.FormatInt(exp, 10)).
		AddQueryParam("Signature", base64.StdEncoding.EncodeToString(sig)), nil
}
