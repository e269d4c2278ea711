// Package s3archive implements save.Archiver over S3. Reference
// implementation only — core (package save) never calls it; a host wires
// it the way it wires a telemetry backend. Grounded on the teacher's
// lode/client_s3.go AWS config/S3 client construction (region, custom
// endpoint, and path-style overrides for S3-compatible providers).
package s3archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forgelabs/ember/save"
)

// Config configures the S3 archiver.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("s3archive: bucket is required")
	}
	return nil
}

// Archiver ships a finished save blob to S3. Implements the save.Archiver
// interface (Archive(ctx, runID string, blob []byte) error) by structural
// typing — save does not import this package, avoiding a core→AWS SDK
// dependency.
type Archiver struct {
	cfg    Config
	client *s3.Client
}

// New constructs an Archiver from cfg, loading AWS credentials from the
// SDK's default chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{cfg: cfg, client: s3.NewFromConfig(awsConfig, s3Opts...)}, nil
}

// Archive uploads blob to {prefix}/{runID}.json under the configured
// bucket.
func (a *Archiver) Archive(ctx context.Context, runID string, blob []byte) error {
	key := runID + ".json"
	if a.cfg.Prefix != "" {
		key = a.cfg.Prefix + "/" + key
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.cfg.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return fmt.Errorf("s3archive: put object: %w", err)
	}
	return nil
}

// Verify Archiver implements save.Archiver.
var _ save.Archiver = (*Archiver)(nil)
