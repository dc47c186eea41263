// Package objstore vends short-lived presigned upload URLs for an
// S3-compatible object store (S3, R2, MinIO).
package objstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mlop-ai/ingest/apierr"
	"github.com/mlop-ai/ingest/schema"
)

// Presigned URLs expire one hour after issuance. The SDK signs with the
// current wall clock, which also bounds client clock skew.
const urlTTL = time.Hour

// Signer issues a presigned PUT URL for one object. The production
// implementation is *Client; tests substitute fakes.
type Signer interface {
	SignPut(ctx context.Context, key, contentType string, size int64) (string, error)
}

// Config holds the storage credentials and target bucket.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
}

// Client presigns uploads against one bucket.
type Client struct {
	presign *s3.PresignClient
	bucket  string
}

// New builds a presign client for the configured endpoint and bucket.
func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, apierr.Newf(apierr.ConfigurationError, "storage config: %v", err)
	}
	svc := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})
	return &Client{presign: s3.NewPresignClient(svc), bucket: cfg.Bucket}, nil
}

// SignPut returns a presigned PUT URL for key with the given Content-Type
// and Content-Length baked into the signature.
func (c *Client) SignPut(ctx context.Context, key, contentType string, size int64) (string, error) {
	out, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, func(o *s3.PresignOptions) {
		o.Expires = urlTTL
	})
	if err != nil {
		return "", apierr.Newf(apierr.InternalError, "presign %s: %v", key, err)
	}
	return out.URL, nil
}

// ObjectKey builds the canonical object key for an uploaded file.
func ObjectKey(e schema.Enrichment, logName, fileName string) string {
	return fmt.Sprintf("%s/%s/%d/%s/%s", e.TenantID, e.ProjectName, e.RunID, logName, fileName)
}
