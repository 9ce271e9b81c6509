package awsutil

import (
	"bytes"
	"flag"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

const defaultMaxRetries = 5

// Config holds the AWS region and optional static credentials. Without
// static credentials the SDK default chain is used.
type Config struct {
	Region          string         `yaml:"region"`
	Endpoint        string         `yaml:"endpoint"`
	AccessKeyID     string         `yaml:"access_key_id"`
	SecretAccessKey flagext.Secret `yaml:"secret_access_key"`
}

// RegisterFlagsWithPrefix registers the AWS flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Region, prefix+"aws.region", "", "AWS region.")
	f.StringVar(&cfg.Endpoint, prefix+"aws.endpoint", "", "Override the AWS service endpoint.")
	f.StringVar(&cfg.AccessKeyID, prefix+"aws.access-key-id", "", "AWS access key ID.")
	f.Var(&cfg.SecretAccessKey, prefix+"aws.secret-access-key", "AWS secret access key.")
}

// Validate checks that credentials are either complete or absent.
func (cfg *Config) Validate() error {
	if cfg.Region == "" {
		return errors.New("aws region is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey.String() == "") {
		return errors.New("must supply both an Access Key ID and Secret Access Key or neither")
	}
	return nil
}

// NewSession builds an SDK session for cfg. httpClient may be nil.
func NewSession(cfg Config, httpClient *http.Client) (*session.Session, error) {
	var awsConfig *aws.Config
	awsConfig = awsConfig.WithMaxRetries(defaultMaxRetries)

	if cfg.Region != "" {
		awsConfig = awsConfig.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsConfig = awsConfig.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey.String(), ""))
	}
	if httpClient != nil {
		awsConfig = awsConfig.WithHTTPClient(httpClient)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new aws session")
	}
	return sess, nil
}

// SigV4RoundTripper signs every request for service before handing it to
// the next transport.
type SigV4RoundTripper struct {
	signer  *v4.Signer
	service string
	region  string
	next    http.RoundTripper
	now     func() time.Time
}

// NewSigV4RoundTripper returns a transport signing with the credentials of
// sess.
func NewSigV4RoundTripper(sess *session.Session, service string, next http.RoundTripper) *SigV4RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &SigV4RoundTripper{
		signer:  v4.NewSigner(sess.Config.Credentials),
		service: service,
		region:  aws.StringValue(sess.Config.Region),
		next:    next,
		now:     time.Now,
	}
}

func (rt *SigV4RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	signed := req.Clone(req.Context())

	var body io.ReadSeeker
	if req.Body != nil {
		buf, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading request body for signing")
		}
		_ = req.Body.Close()
		body = bytes.NewReader(buf)
		signed.Body = io.NopCloser(bytes.NewReader(buf))
	}

	if _, err := rt.signer.Sign(signed, body, rt.service, rt.region, rt.now()); err != nil {
		return nil, errors.Wrap(err, "signing request")
	}
	return rt.next.RoundTrip(signed)
}
