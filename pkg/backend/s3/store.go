// Package s3 implements backend.Pool/Backend against an S3-compatible
// object store, grounded on the teacher's pkg/blocks/store/s3.Store (client
// construction, NotFound classification, HealthCheck).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/s3ql/main/pkg/backend"
)

// Config configures the S3 client used by Store.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	RetryConfig    backend.RetryConfig
}

// Store is both the backend.Pool and the backend.Backend: an S3 client is
// safe for concurrent use, so leasing just hands back the same instance
// (spec.md §6 only requires the Pool/Backend split for backends whose
// clients are not safely shared, e.g. connection-bound protocols).
type Store struct {
	client *s3.Client
	bucket string
	retry  backend.RetryConfig
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend/s3: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	retry := cfg.RetryConfig
	if retry == (backend.RetryConfig{}) {
		retry = backend.DefaultRetryConfig()
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		retry:  retry,
	}, nil
}

func (s *Store) Lease(_ context.Context) (backend.Backend, error) { return s, nil }
func (s *Store) Release(backend.Backend)                         {}

func (s *Store) Write(ctx context.Context, key string, fn backend.WriteFunc) (int64, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return 0, err
	}
	size := int64(buf.Len())

	err := backend.WithRetry(ctx, s.retry, "s3.PutObject", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		return classify(err)
	})
	if err != nil {
		return 0, fmt.Errorf("backend/s3: put %s: %w", key, err)
	}
	return size, nil
}

func (s *Store) Read(ctx context.Context, key string, fn backend.ReadFunc) error {
	var body io.ReadCloser
	err := backend.WithRetry(ctx, s.retry, "s3.GetObject", func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return classify(err)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("backend/s3: get %s: %w", key, err)
	}
	defer body.Close()
	return fn(body)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := backend.WithRetry(ctx, s.retry, "s3.DeleteObject", func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return classify(err)
	})
	if err != nil {
		if isNotFound(err) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("backend/s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteMulti(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	objs := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objs[i] = types.ObjectIdentifier{Key: aws.String(k)}
	}

	var out *s3.DeleteObjectsOutput
	err := backend.WithRetry(ctx, s.retry, "s3.DeleteObjects", func() error {
		resp, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objs},
		})
		if err != nil {
			return classify(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		return keys, fmt.Errorf("backend/s3: delete multi: %w", err)
	}

	var failed []string
	for _, e := range out.Errors {
		if e.Key != nil {
			failed = append(failed, *e.Key)
		}
	}
	return failed, nil
}

func (s *Store) HasDeleteMulti() bool { return true }

func (s *Store) MaxDeleteMultiBatch() int { return 1000 }

// classify wraps transient S3 errors (throttling, 5xx, network resets) as
// backend.TempFailureError so the retry wrapper and callers can distinguish
// them from permanent failures, matching spec.md §7's TempFailure contract.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return err
	}

	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
			return &backend.TempFailureError{Err: err}
		}
		return err
	}

	// Fall back to string sniffing for SDK errors that don't surface a
	// structured response (e.g. connection reset, DNS failure).
	msg := err.Error()
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "no such host") {
		return &backend.TempFailureError{Err: err}
	}
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("backend/s3: health check: %w", err)
	}
	return nil
}

var _ backend.Pool = (*Store)(nil)
var _ backend.Backend = (*Store)(nil)
