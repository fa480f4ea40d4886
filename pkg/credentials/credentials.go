// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package credentials turns user configuration into the signing credential
// carried by request parameters.
package credentials

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/signature"
)

const scope = "credentials"

// Config names one credential. Kind selects which fields are read; an empty
// Kind means no credential.
type Config struct {
	Kind string `mapstructure:"kind"`

	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Token     string `mapstructure:"s3_token"`
	S3Region    string `mapstructure:"s3_region"`
	S3Profile   string `mapstructure:"s3_profile"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`

	AzureKey string `mapstructure:"azure_key"`

	GCloudKeyFile string `mapstructure:"gcloud_key_file"`

	SwiftToken   string `mapstructure:"swift_token"`
	SwiftProject string `mapstructure:"swift_project"`
}

// Resolve builds the credential described by cfg. A nil credential with a
// nil error means anonymous access.
func Resolve(ctx context.Context, cfg Config) (params.Credential, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "none":
		return nil, nil
	case "login", "basic":
		if cfg.User == "" {
			return nil, daverr.New(daverr.InvalidArgument, scope, "login credential without user")
		}
		return params.LoginPassword{User: cfg.User, Password: cfg.Password}, nil
	case "s3":
		var (
			keys params.S3Keys
			err  error
		)
		if cfg.S3AccessKey != "" {
			keys, err = S3Static(ctx, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Token, cfg.S3Region)
		} else {
			keys, err = LoadS3Profile(ctx, cfg.S3Profile, cfg.S3Region)
		}
		keys.Alternate = cfg.S3PathStyle
		return keys, err
	case "azure":
		return Azure(cfg.AzureKey)
	case "gcloud":
		return signature.LoadGCloudCredentials(cfg.GCloudKeyFile)
	case "swift":
		if cfg.SwiftToken == "" {
			return nil, daverr.New(daverr.CredentialNotFound, scope, "swift credential without token")
		}
		return params.SwiftToken{Token: cfg.SwiftToken, ProjectID: cfg.SwiftProject}, nil
	case "x509":
		return params.X509{}, nil
	}
	return nil, daverr.Newf(daverr.InvalidArgument, scope, "unknown credential kind %q", cfg.Kind)
}

// S3Static validates a fixed key pair.
func S3Static(ctx context.Context, accessKey, secretKey, token, region string) (params.S3Keys, error) {
	provider := awscreds.NewStaticCredentialsProvider(accessKey, secretKey, token)
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return params.S3Keys{}, daverr.Wrap(err, daverr.CredentialNotFound, scope, "static s3 keys")
	}
	return fromAWS(creds, region), nil
}

// LoadS3Profile resolves S3 keys through the AWS default chain: environment,
// shared config and credential files, then the named profile.
func LoadS3Profile(ctx context.Context, profile, region string) (params.S3Keys, error) {
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return params.S3Keys{}, daverr.Wrap(err, daverr.CredentialNotFound, scope, "load aws config")
	}
	if cfg.Credentials == nil {
		return params.S3Keys{}, daverr.New(daverr.CredentialNotFound, scope, "no aws credentials configured")
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return params.S3Keys{}, daverr.Wrap(err, daverr.CredentialNotFound, scope, "retrieve aws credentials")
	}
	return fromAWS(creds, cfg.Region), nil
}

func fromAWS(creds aws.Credentials, region string) params.S3Keys {
	return params.S3Keys{
		AccessKey: creds.AccessKeyID,
		SecretKey: creds.SecretAccessKey,
		Token:     creds.SessionToken,
		Region:    region,
	}
}

// Azure checks that key is a base64 storage account key.
func Azure(key string) (params.AzureKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return params.AzureKey{}, daverr.New(daverr.CredentialNotFound, scope, "empty azure key")
	}
	if _, err := base64.StdEncoding.DecodeString(key); err != nil {
		return params.AzureKey{}, daverr.Wrap(err, daverr.InvalidArgument, scope, "azure key is not base64")
	}
	return params.AzureKey{Key: key}, nil
}
