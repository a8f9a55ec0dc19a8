package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when neither the flags nor the environment name one.
const DefaultRegion = "us-east-1"

// S3ClientOptions controls construction of the shared S3 client.
type S3ClientOptions struct {
	Region         string
	Profile        string
	Endpoint       string // custom endpoint, e.g. MinIO or another S3-compatible store
	Proxy          string // http(s) proxy URL
	AccessKey      string
	SecretKey      string
	SessionToken   string
	MaxConnections int
	MaxAttempts    int // SDK-level retries, separate from per-key job retries
	PathStyle      bool
}

// NewS3Client builds the single S3 client shared by every store in a run.
// The caller constructs it once at startup and injects it.
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken),
		))
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	if opts.Proxy != "" || opts.MaxConnections > 0 {
		var proxyURL *url.URL
		if opts.Proxy != "" {
			u, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("parse proxy %q: %w", opts.Proxy, err)
			}
			proxyURL = u
		}
		httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			if proxyURL != nil {
				tr.Proxy = http.ProxyURL(proxyURL)
			}
			if opts.MaxConnections > 0 {
				tr.MaxConnsPerHost = opts.MaxConnections
				tr.MaxIdleConnsPerHost = opts.MaxConnections
			}
		})
		loadOpts = append(loadOpts, config.WithHTTPClient(httpClient))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if cfg.Credentials == nil {
		return nil, fmt.Errorf("obtain aws credentials: no provider configured")
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("obtain aws credentials: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
