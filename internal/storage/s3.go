package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API defines the S3 operations used by the archive.
type S3API interface {
	// PutObject uploads an object.
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)
}

// ArtifactArchive uploads the files a job produced to S3, under <prefix>/<job id>/<file>.
type ArtifactArchive struct {
	bucket string
	client S3API
	prefix string
}

// NewArtifactArchive creates a new S3-backed archive.
func NewArtifactArchive(client S3API, bucket string, prefix string) (*ArtifactArchive, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	return &ArtifactArchive{
		bucket: bucket,
		client: client,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Upload uploads each file and returns the object keys. Empty paths are ignored.
func (a *ArtifactArchive) Upload(ctx context.Context, jobID string, files ...string) ([]string, error) {
	if jobID == "" {
		return nil, errors.New("job ID is required")
	}

	var keys []string
	for _, file := range files {
		if file == "" {
			continue
		}
		key := a.Key(jobID, file)
		if err := a.upload(ctx, key, file); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Key returns the object key for a job's file.
func (a *ArtifactArchive) Key(jobID string, file string) string {
	return path.Join(a.prefix, jobID, filepath.Base(file))
}

func (a *ArtifactArchive) upload(ctx context.Context, key string, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
