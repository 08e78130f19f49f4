package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/daypack/daypack/internal/types"
)

// S3Config configures the S3-compatible backend. Leaving AccessKey empty
// falls through to the SDK's default credential chain.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Store talks to any S3-compatible object store. The coordinator owns
// retries; this layer only classifies failures as transient or permanent.
type S3Store struct {
	svc    *s3.S3
	bucket string
}

// NewS3Store creates an S3-backed object store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.PathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &S3Store{svc: s3.New(sess), bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return s.classify(key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
		}
		return nil, s.classify(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, types.Transient(key, fmt.Errorf("failed to read object body: %w", err))
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, s.classify(key, err)
	}
	return true, nil
}

// classify maps SDK failures onto the retry taxonomy: throttling, 5xx and
// connection-level errors are transient; auth, quota and every other 4xx
// are surfaced immediately.
func (s *S3Store) classify(key string, err error) error {
	if request.IsErrorThrottle(err) || request.IsErrorRetryable(err) {
		return types.Transient(key, err)
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() >= 500 {
		return types.Transient(key, err)
	}
	return types.Permanent(key, err)
}

func isNoSuchKey(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == 404 {
		return true
	}
	return false
}
