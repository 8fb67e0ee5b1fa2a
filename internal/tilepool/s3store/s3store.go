/*
Package s3store adapts tilepool.Store to an S3-compatible bucket,
grounded on mumuon-tile-service's s3.go (config.LoadDefaultConfig +
manager.Uploader + s3.Client HeadObject pattern). Selected when
EngineConfig.TilePoolRoot carries an "s3://" scheme (§9 supplemented
feature); otherwise the engine uses tilepool.DiskStore.
*/
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
)

// Store is an S3-backed tilepool.Store.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// ParseURL splits an "s3://bucket/prefix" root into bucket and prefix.
func ParseURL(root string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(root, "s3://")
	if trimmed == root {
		return "", "", fmt.Errorf("tile pool root %q is not an s3:// URL", root)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("tile pool root %q has no bucket name", root)
	}
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

// New builds a Store against the given bucket/prefix using the
// process's default AWS credential chain (environment, shared config,
// or container role — no credentials are read from EngineConfig
// directly).
func New(ctx context.Context, region, bucket, prefix string) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, engineerr.New(engineerr.KindConfigurationError, "s3store.New", "", fmt.Errorf("load AWS config: %w", err))
	}
	client := s3.NewFromConfig(awsCfg)
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, engineerr.New(engineerr.KindStorageError, "s3store.Exists", "", err)
}

func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, engineerr.New(engineerr.KindNotFound, "s3store.Open", "", err)
		}
		return nil, engineerr.New(engineerr.KindStorageError, "s3store.Open", "", err)
	}
	return out.Body, nil
}

// LocalPath downloads name to a temp file so it can be handed to a
// GDAL CLI invocation; callers must invoke the returned cleanup.
func (s *Store) LocalPath(ctx context.Context, name string) (string, func(), error) {
	body, err := s.Open(ctx, name)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "tile-*.tif")
	if err != nil {
		return "", nil, engineerr.New(engineerr.KindStorageError, "s3store.LocalPath", "", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, engineerr.New(engineerr.KindStorageError, "s3store.LocalPath", "", err)
	}
	tmp.Close()

	cleanup := func() { os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}

// Put uploads data under a uuid-suffixed staging key first, then
// copies it over the final key and removes the staging object — S3
// has no rename, so this is the closest equivalent to the atomic
// staging-then-rename discipline of §4.4.7 that a bucket-of-objects
// API affords.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	finalKey := s.key(name)
	stagingKey := finalKey + ".staging-" + uuid.NewString()

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stagingKey),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return engineerr.New(engineerr.KindStorageError, "s3store.Put", "", fmt.Errorf("stage: %w", err))
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(finalKey),
		CopySource: aws.String(s.bucket + "/" + stagingKey),
	})
	if err != nil {
		_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(stagingKey)})
		return engineerr.New(engineerr.KindStorageError, "s3store.Put", "", fmt.Errorf("promote: %w", err))
	}

	_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(stagingKey)})
	return nil
}
