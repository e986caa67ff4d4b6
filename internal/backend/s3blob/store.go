// Package s3blob implements backend.BlobStore on S3-compatible object
// storage (AWS S3, MinIO). Objects are addressed by stable public URLs, so
// the bucket (or a CDN in front of it) must allow anonymous reads.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

type Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL replaces the bucket's own address as the base of URLs
	// returned by URL.
	PublicURL string
}

type Store struct {
	bucket string
	base   string
	client *s3.Client
}

// New builds a Store. Static credentials are used when AccessKey is set,
// the default AWS credential chain otherwise. A custom Endpoint switches to
// path-style addressing as MinIO expects.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		bucket: cfg.Bucket,
		base:   publicBase(cfg),
		client: client,
	}, nil
}

// publicBase is the URL prefix objects are served from: PublicURL when set,
// the path-style endpoint URL for custom endpoints, the virtual-hosted AWS
// address otherwise.
func publicBase(cfg Config) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + url.PathEscape(cfg.Bucket)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func (s *Store) Upload(ctx context.Context, path string, r io.Reader, contentType string) error {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading upload %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := putObject(s.client, ctx, in); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	return nil
}

// URL returns the permanent public address of path. It does not expire and
// is safe to store in profiles.
func (s *Store) URL(ctx context.Context, path string) (string, error) {
	key := strings.Trim(path, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty object path", common.ErrInvalidRequest)
	}

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.base + "/" + strings.Join(segments, "/"), nil
}
