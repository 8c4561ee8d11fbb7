package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3Store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Validate reports missing required settings.
func (c S3Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 cache: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Object metadata keys. The digest travels with the object so a Put is a
// single request.
const (
	metaDigest = "Matrixgrid-Digest"
	metaSize   = "Matrixgrid-Size"
	metaCodec  = "Matrixgrid-Codec"
)

// S3Store keeps entries as objects <prefix>/<key>.blob in a bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the object store and makes sure the bucket exists.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 cache: %w", err)
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("s3 cache: ensure bucket %s: %w", cfg.Bucket, err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) object(key string) string {
	return path.Join(s.prefix, key+blobExt)
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, Meta, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, Meta{}, s.mapError(err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, Meta{}, s.mapError(err)
	}
	meta, err := metaFromObject(key, info)
	if err != nil {
		return nil, Meta{}, err
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, Meta{}, s.mapError(err)
	}
	if err := verify(data, meta); err != nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", key, err)
	}
	return data, meta, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, meta Meta) (bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.object(key), minio.StatObjectOptions{})
	if err == nil {
		if existing, err := metaFromObject(key, info); err == nil && existing.Digest == meta.Digest {
			return false, nil
		}
	} else if !errors.Is(s.mapError(err), ErrNotFound) {
		return false, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.object(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		UserMetadata: map[string]string{
			metaDigest: meta.Digest,
			metaSize:   strconv.FormatInt(meta.Size, 10),
			metaCodec:  string(meta.Codec),
		},
	})
	if err != nil {
		return false, fmt.Errorf("s3 cache: put %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrNotFound
	}
	return err
}

func metaFromObject(key string, info minio.ObjectInfo) (Meta, error) {
	lookup := func(name string) string {
		for k, v := range info.UserMetadata {
			if strings.EqualFold(strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-"), strings.ToLower(name)) {
				return v
			}
		}
		return ""
	}
	digest := lookup(metaDigest)
	if digest == "" {
		return Meta{}, fmt.Errorf("%w: %s: object has no digest", ErrCorrupt, key)
	}
	size, err := strconv.ParseInt(lookup(metaSize), 10, 64)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %s: bad size metadata", ErrCorrupt, key)
	}
	return Meta{
		Key:     key,
		Digest:  digest,
		Size:    size,
		Codec:   Codec(lookup(metaCodec)),
		Created: info.LastModified,
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
