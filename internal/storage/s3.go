// Package storage implements the object store the load core reads from:
// an S3 client built on aws-sdk-go-v2 and an in-memory store with fault
// injection for tests.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BartekS5/orderload/internal/config"
	"github.com/BartekS5/orderload/pkg/resilience"
)

// S3Store is bound to one bucket. Requests are retried by the SDK's standard
// retryer using the configured attempt count and backoff. GetObject retries
// the whole download itself so a body cut off mid-read is fetched again.
type S3Store struct {
	client  *s3.Client
	bucket  string
	backoff resilience.RetryConfig
}

// NewS3Store creates a store for cfg.Bucket. A custom endpoint (MinIO,
// Hetzner and other S3-compatible services) is honoured when set.
func NewS3Store(cfg *config.Config) *S3Store {
	backoff := resilience.DefaultRetryConfig()
	backoff.MaxAttempts = cfg.Retry.MaxAttempts
	backoff.InitialDelay = cfg.Retry.InitialDelay
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = resilience.DefaultRetryConfig().MaxAttempts
	}

	opts := s3.Options{
		Region:       cfg.S3.Region,
		UsePathStyle: cfg.S3.UsePathStyle,
		Retryer: retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = backoff.MaxAttempts
			o.MaxBackoff = backoff.MaxDelay
			o.Backoff = retry.BackoffDelayerFunc(func(attempt int, _ error) (time.Duration, error) {
				return backoff.Delay(attempt), nil
			})
		}),
	}
	if cfg.S3.KeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3.KeyID, cfg.S3.Secret, "")
	}
	if cfg.S3.Endpoint != "" {
		endpoint := cfg.S3.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}

	return &S3Store{
		client:  s3.New(opts),
		bucket:  cfg.Bucket,
		backoff: backoff,
	}
}

func (s *S3Store) Bucket() string { return s.bucket }

// ListKeys pages through every object under prefix and calls fn per key.
// Pagination starts fresh on each call.
func (s *S3Store) ListKeys(ctx context.Context, prefix string, fn func(key string) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			if err := fn(aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetObject returns the object body. The body is fully read inside the retry
// and the SDK is held to a single attempt per try, so the configured attempt
// count bounds the number of requests.
func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := resilience.Retry(ctx, "get object", s.backoff, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, func(o *s3.Options) {
			o.Retryer = aws.NopRetryer{}
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *S3Store) PutObject(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// CopyObject copies srcKey to dstKey within the bucket.
func (s *S3Store) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(copySource(s.bucket, srcKey)),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return fmt.Errorf("copying s3://%s/%s to %s: %w", s.bucket, srcKey, dstKey, err)
	}
	return nil
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// copySource renders the URL-encoded "bucket/key" form CopyObject expects,
// keeping the path separators readable. PathEscape leaves "+" alone, but
// S3 decodes it as a space.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(seg), "+", "%2B")
	}
	return bucket + "/" + strings.Join(segments, "/")
}
