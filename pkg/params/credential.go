package params

import (
	"crypto/rsa"
)

// Credential is one of the supported credential kinds. The set is closed.
type Credential interface {
	kind() string
	clone() Credential
}

// LoginPassword is HTTP basic authentication.
type LoginPassword struct {
	User     string
	Password string
}

// S3Keys signs S3 requests. With Region set, SigV4 query signing is used;
// otherwise SigV2. Alternate selects path-style addressing, where the bucket
// is the first path segment instead of the host label.
type S3Keys struct {
	AccessKey string
	SecretKey string
	Token     string
	Region    string
	Alternate bool
}

// AzureKey is a base64 encoded storage account key.
type AzureKey struct {
	Key string
}

// GCloudKey is a Google service account key.
type GCloudKey struct {
	ClientEmail string
	PrivateKey  *rsa.PrivateKey
}

// SwiftToken authenticates against an OpenStack object store.
type SwiftToken struct {
	Token     string
	ProjectID string
}

// X509 marks that the client certificate in RequestParams authenticates
// the request; no signing happens.
type X509 struct{}

func (LoginPassword) kind() string { return "login" }
func (S3Keys) kind() string        { return "s3" }
func (AzureKey) kind() string      { return "azure" }
func (GCloudKey) kind() string     { return "gcloud" }
func (SwiftToken) kind() string    { return "swift" }
func (X509) kind() string          { return "x509" }

func (c LoginPassword) clone() Credential { return c }
func (c S3Keys) clone() Credential        { return c }
func (c AzureKey) clone() Credential      { return c }
func (c SwiftToken) clone() Credential    { return c }
func (c X509) clone() Credential          { return c }

// rsa keys are immutable once loaded, so sharing the pointer is safe
func (c GCloudKey) clone() Credential { return c }
