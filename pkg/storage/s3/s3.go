// Package s3 implements storage.Storage on Amazon S3 and S3-compatible
// servers such as MinIO.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/MrWong99/transcribot/pkg/storage"
)

// DefaultRegion is used when Config.Region is empty.
const DefaultRegion = "us-east-1"

// Config holds the connection settings for an S3 bucket.
type Config struct {
	// Endpoint is a custom S3-compatible endpoint, e.g. "http://minio:9000".
	// Leave empty for AWS.
	Endpoint string

	Region    string
	AccessKey string
	SecretKey string
	Bucket    string

	// PublicBaseURL is the externally reachable base used to build object
	// URLs. Defaults to Endpoint.
	PublicBaseURL string

	// UsePathStyle forces path-style addressing. Always on when Endpoint is
	// set.
	UsePathStyle bool

	// PresignTTL, when positive, makes Upload return a presigned GET URL
	// valid for this long instead of a plain public URL.
	PresignTTL time.Duration

	// PublicRead applies a read-only anonymous policy to the bucket during
	// EnsureBucket.
	PublicRead bool
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("s3: bucket is required"))
	}
	if c.Endpoint == "" && c.PublicBaseURL == "" && c.PresignTTL <= 0 && c.Region == "" {
		errs = append(errs, errors.New("s3: region, endpoint or public_base_url is required"))
	}
	if c.Endpoint != "" {
		if _, err := url.Parse(c.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("s3: endpoint: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Store implements storage.Storage on a single bucket.
type Store struct {
	client  *awss3.Client
	presign *awss3.PresignClient
	cfg     Config
}

// Compile-time assertion.
var _ storage.Storage = (*Store)(nil)

// New creates a Store. It does not contact the server; call
// [Store.EnsureBucket] to create the bucket if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
		// MinIO releases before 2025 reject the default CRC trailers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Store{
		client:  client,
		presign: awss3.NewPresignClient(client),
		cfg:     cfg,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist and, when configured,
// applies the public read-only policy.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	switch {
	case err == nil:
		slog.Info("s3: bucket exists", "bucket", s.cfg.Bucket)
	case isNotFound(err):
		if _, err := s.client.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
			return fmt.Errorf("s3: create bucket %s: %w", s.cfg.Bucket, err)
		}
		slog.Info("s3: created bucket", "bucket", s.cfg.Bucket)
	default:
		return fmt.Errorf("s3: head bucket %s: %w", s.cfg.Bucket, err)
	}

	if !s.cfg.PublicRead {
		return nil
	}
	policy, err := PublicReadPolicy(s.cfg.Bucket)
	if err != nil {
		return err
	}
	if _, err := s.client.PutBucketPolicy(ctx, &awss3.PutBucketPolicyInput{
		Bucket: aws.String(s.cfg.Bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return fmt.Errorf("s3: put bucket policy: %w", err)
	}
	slog.Info("s3: applied public read-only policy", "bucket", s.cfg.Bucket)
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
		return fmt.Errorf("s3: head bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

// Upload puts the file at localPath into the bucket and returns its URL.
func (s *Store) Upload(ctx context.Context, localPath, destinationName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3: upload: %w", err)
	}
	defer f.Close()

	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(destinationName),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(destinationName)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", destinationName, err)
	}
	slog.Info("s3: uploaded object", "path", localPath, "object", destinationName, "bucket", s.cfg.Bucket)

	if s.cfg.PresignTTL > 0 {
		req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(destinationName),
		}, awss3.WithPresignExpires(s.cfg.PresignTTL))
		if err != nil {
			return "", fmt.Errorf("s3: presign %s: %w", destinationName, err)
		}
		return req.URL, nil
	}
	return s.ObjectURL(destinationName), nil
}

// Download writes the object to destinationPath, creating or truncating it.
func (s *Store) Download(ctx context.Context, objectName, destinationPath string) error {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return fmt.Errorf("s3: download %s: %w", objectName, err)
	}
	defer out.Body.Close()

	f, err := os.Create(destinationPath)
	if err != nil {
		return fmt.Errorf("s3: download: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("s3: download %s: %w", objectName, err)
	}
	return f.Close()
}

// ObjectURL returns "<base>/<bucket>/<object>" where base is PublicBaseURL,
// then Endpoint, then the regional AWS endpoint.
func (s *Store) ObjectURL(objectName string) string {
	base := s.cfg.PublicBaseURL
	if base == "" {
		base = s.cfg.Endpoint
	}
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", s.cfg.Region)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), s.cfg.Bucket, url.PathEscape(objectName))
}

// PublicReadPolicy returns a bucket policy that lets anyone list the bucket
// and read its objects.
func PublicReadPolicy(bucket string) (string, error) {
	type statement struct {
		Effect    string            `json:"Effect"`
		Principal map[string]string `json:"Principal"`
		Action    any               `json:"Action"`
		Resource  string            `json:"Resource"`
	}
	policy := struct {
		Version   string      `json:"Version"`
		Statement []statement `json:"Statement"`
	}{
		Version: "2012-10-17",
		Statement: []statement{
			{
				Effect:    "Allow",
				Principal: map[string]string{"AWS": "*"},
				Action:    []string{"s3:GetBucketLocation", "s3:ListBucket"},
				Resource:  "arn:aws:s3:::" + bucket,
			},
			{
				Effect:    "Allow",
				Principal: map[string]string{"AWS": "*"},
				Action:    "s3:GetObject",
				Resource:  "arn:aws:s3:::" + bucket + "/*",
			},
		},
	}
	b, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("s3: marshal policy: %w", err)
	}
	return string(b), nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	return errors.As(err, &nf) || errors.As(err, &nsb)
}
