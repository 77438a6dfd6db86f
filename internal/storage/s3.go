// Package storage resolves attachment content from S3-compatible object
// storage so API callers can reference large files by key.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shineum/maildispatch/internal/email"
)

// DefaultMaxSize caps a single fetched object.
const DefaultMaxSize int64 = 25 << 20

// GetObjectAPI is the subset of the S3 client the store needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds the bucket location and credentials. Empty keys fall back to
// the default AWS credential chain.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	Prefix    string
	MaxSize   int64
}

// Store fetches attachment objects from a single bucket.
type Store struct {
	client  GetObjectAPI
	bucket  string
	prefix  string
	maxSize int64
}

// New creates a Store backed by a real S3 client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	var client *s3.Client
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append([]func(*s3.Options){func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}}, opts...)
		client = s3.New(s3.Options{}, opts...)
	} else {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg, opts...)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Store using the provided client, used for testing.
func NewWithClient(client GetObjectAPI, cfg Config) *Store {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		maxSize: cfg.MaxSize,
	}
}

// Object describes an attachment to resolve. Filename defaults to the base
// of Key and ContentType to the stored object's content type.
type Object struct {
	Key         string
	Filename    string
	ContentType string
	ContentID   string
}

// Fetch downloads the object and turns it into an attachment.
func (s *Store) Fetch(ctx context.Context, obj Object) (email.Attachment, error) {
	key, err := s.objectKey(obj.Key)
	if err != nil {
		return email.Attachment{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return email.Attachment{}, wrapS3Error(err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > s.maxSize {
		return email.Attachment{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, *out.ContentLength)
	}

	filename := obj.Filename
	if filename == "" {
		filename = path.Base(key)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = aws.ToString(out.ContentType)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := &limitedReader{r: io.LimitReader(out.Body, s.maxSize+1), max: s.maxSize}
	b := email.NewAttachmentBuilder().
		Filename(filename).
		ContentType(contentType).
		ContentFromReader(body)
	if obj.ContentID != "" {
		b.ID(obj.ContentID)
	}

	att, err := b.Build()
	if body.exceeded {
		return email.Attachment{}, fmt.Errorf("%w: %s", ErrTooLarge, key)
	}
	return att, err
}

func (s *Store) objectKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key, nil
}

// limitedReader records whether the body ran past the configured maximum.
type limitedReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		l.exceeded = true
	}
	return n, err
}
