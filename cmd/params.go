package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/client"
	"github.com/LeeDigitalWorks/zapdav/pkg/credentials"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func addRequestFlags(f *pflag.FlagSet) {
	// Transport
	f.Bool("insecure", false, "Do not verify server certificates")
	f.String("cert_file", "", "Client certificate (PEM)")
	f.String("key_file", "", "Client certificate key (PEM)")
	f.String("ca_file", "", "Additional CA bundle (PEM)")
	f.Duration("conn_timeout", params.DefaultConnectionTimeout, "Connection timeout")
	f.Duration("timeout", params.DefaultOperationTimeout, "Operation timeout")
	f.Bool("no_redirect", false, "Do not follow redirections")
	f.String("protocol", "auto", "Protocol: auto, http, webdav, s3, azure, gcloud, swift")
	f.String("user_agent", params.DefaultUserAgent, "User-Agent header")
	f.StringSlice("header", nil, "Extra request header 'Name: value' (repeatable)")
	f.Int("retry", params.DefaultOperationRetry, "Retries for failed operations")
	f.Duration("retry_delay", params.DefaultRetryDelay, "Delay between retries")
	f.Bool("ask_password", false, "Prompt for login and password when the server asks for them")

	// Credentials
	f.String("auth", "", "Credential kind: login, s3, azure, gcloud, swift, x509")
	f.String("user", "", "Login for basic authentication")
	f.String("password", "", "Password for basic authentication")
	f.String("s3_access_key", "", "S3 access key")
	f.String("s3_secret_key", "", "S3 secret key")
	f.String("s3_token", "", "S3 session token")
	f.String("s3_region", "", "S3 region; enables SigV4")
	f.String("s3_profile", "", "AWS profile to read S3 keys from")
	f.Bool("s3_path_style", false, "Put the bucket in the path instead of the host")
	f.String("azure_key", "", "Azure storage account key")
	f.String("gcloud_key_file", "", "Google service account JSON key")
	f.String("swift_token", "", "Swift auth token")
	f.String("swift_project", "", "Swift project ID")

	// Uploads
	f.String("azure_block_size", "", "Azure upload block size, e.g. 4MiB")
}

// requestParams builds the parameters shared by every operation of a command.
func requestParams(cmd *cobra.Command) (*params.RequestParams, error) {
	f := NewFlagLoader(cmd)
	p := params.Default()

	p.TLSVerify = !f.Bool("insecure")
	p.CAFile = f.String("ca_file")
	if certFile := f.String("cert_file"); certFile != "" {
		keyFile := f.String("key_file")
		if keyFile == "" {
			keyFile = certFile
		}
		cert, err := utils.LoadClientCertificate(certFile, keyFile)
		if err != nil {
			return nil, err
		}
		p.ClientCert = cert
	}
	p.ConnectionTimeout = f.Duration("conn_timeout")
	p.OperationTimeout = f.Duration("timeout")
	p.TransparentRedirect = !f.Bool("no_redirect")
	p.UserAgent = f.String("user_agent")
	p.OperationRetry = f.Int("retry")
	p.OperationRetryDelay = f.Duration("retry_delay")

	blockSize, err := f.Bytes("azure_block_size")
	if err != nil {
		return nil, err
	}
	if blockSize > 0 {
		p.AzureBlockSize = blockSize
	}

	proto, ok := params.ParseProtocol(f.String("protocol"))
	if !ok {
		return nil, fmt.Errorf("unknown protocol %q", f.String("protocol"))
	}
	p.Protocol = proto

	for _, h := range f.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q is not 'Name: value'", h)
		}
		p.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	cred, err := credentials.Resolve(cmd.Context(), credentials.Config{
		Kind:          f.String("auth"),
		User:          f.String("user"),
		Password:      f.String("password"),
		S3AccessKey:   f.String("s3_access_key"),
		S3SecretKey:   f.String("s3_secret_key"),
		S3Token:       f.String("s3_token"),
		S3Region:      f.String("s3_region"),
		S3Profile:     f.String("s3_profile"),
		S3PathStyle:   f.Bool("s3_path_style"),
		AzureKey:      f.String("azure_key"),
		GCloudKeyFile: utils.ResolvePath(f.String("gcloud_key_file")),
		SwiftToken:    f.String("swift_token"),
		SwiftProject:  f.String("swift_project"),
	})
	if err != nil {
		return nil, err
	}
	p.Credential = cred

	if f.Bool("ask_password") {
		p.LoginCallback = promptLogin
	}
	return &p, nil
}

// promptLogin asks for credentials on the terminal.
func promptLogin(ctx context.Context, u *uri.URI, attempt int) (string, string, error) {
	in := bufio.NewReader(os.Stdin)
	fmt.Fprintf(os.Stderr, "Login for %s (attempt %d): ", u.HostPort(), attempt)
	user, err := in.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(user), string(password), nil
}

// setup returns a client context and the request parameters of cmd.
func setup(cmd *cobra.Command) (*client.Context, *params.RequestParams, error) {
	p, err := requestParams(cmd)
	if err != nil {
		return nil, nil, err
	}
	return client.NewDefault(), p, nil
}

// parseURI rejects URIs that cannot be used.
func parseURI(raw string) (*uri.URI, error) {
	u := uri.Parse(raw)
	if err := u.Err(); err != nil {
		return nil, err
	}
	return u, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
