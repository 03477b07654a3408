// Package s3 implements a blob store on one S3-compatible bucket (AWS S3 or
// MinIO). Keys map to object keys under an optional prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"datatree/internal/blob/core"
)

// Config holds construction parameters. Empty credentials fall back to the
// default AWS credential chain.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Store talks to the bucket through the AWS SDK client.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

const defaultRegion = "us-east-1"

// New builds a client from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Driver returns core.DriverS3.
func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) objectKey(key string) (string, string, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return clean, s.prefix + clean, nil
}

// Put uploads r. Without Overwrite an existing object fails the call; the
// check and the upload are not atomic.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.WriteOptions) (core.Object, error) {
	clean, objKey, err := s.objectKey(key)
	if err != nil {
		return core.Object{}, err
	}
	if !opts.Overwrite {
		if _, err := s.Stat(ctx, clean); err == nil {
			return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, clean)
		} else if !errors.Is(err, core.ErrNotFound) {
			return core.Object{}, err
		}
	}
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey), Body: r}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = core.CloneMetadata(opts.Metadata)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return core.Object{}, fmt.Errorf("put %s: %w", clean, err)
	}
	return s.Stat(ctx, clean)
}

// Get downloads key. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (core.Object, io.ReadCloser, error) {
	clean, objKey, err := s.objectKey(key)
	if err != nil {
		return core.Object{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey)})
	if err != nil {
		return core.Object{}, nil, translate(err, clean)
	}
	obj := object(clean, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return obj, out.Body, nil
}

// Stat issues a HEAD request for key.
func (s *Store) Stat(ctx context.Context, key string) (core.Object, error) {
	clean, objKey, err := s.objectKey(key)
	if err != nil {
		return core.Object{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey)})
	if err != nil {
		return core.Object{}, translate(err, clean)
	}
	return object(clean, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes key. S3 deletes are idempotent, so existence is checked
// first to report it.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	clean, objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	if _, err := s.Stat(ctx, clean); errors.Is(err, core.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(objKey)}); err != nil {
		return false, fmt.Errorf("delete %s: %w", clean, err)
	}
	return true, nil
}

// List pages through ListObjectsV2 for prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Object, error) {
	var out []core.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(item.Key), s.prefix)
			out = append(out, core.Object{
				Key:          key,
				Size:         aws.ToInt64(item.Size),
				ETag:         strings.Trim(aws.ToString(item.ETag), "\""),
				LastModified: aws.ToTime(item.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func object(key string, size *int64, contentType, etag *string, md map[string]string, modified *time.Time) core.Object {
	return core.Object{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), "\""),
		Metadata:     core.CloneMetadata(md),
		LastModified: aws.ToTime(modified),
	}
}

// translate maps a 404 response onto core.ErrNotFound.
func translate(err error, key string) error {
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return fmt.Errorf("%s: %w", key, err)
}
