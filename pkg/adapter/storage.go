package adapter

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage writes and reads exported chat transcripts
type Storage interface {
	// Write stores data under key, replacing any existing object
	Write(ctx context.Context, key, contentType string, data []byte) error
	// Read returns the object stored under key
	Read(ctx context.Context, key string) ([]byte, error)
}

// cloudStorage implements Storage with a single Cloud Storage bucket
type cloudStorage struct {
	bucket *storage.BucketHandle
	name   string
}

// NewStorage creates a Cloud Storage client for bucketName
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &cloudStorage{
		bucket: client.Bucket(bucketName),
		name:   bucketName,
	}, nil
}

func (s *cloudStorage) Write(ctx context.Context, key, contentType string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object", goerr.V("bucket", s.name), goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close object writer", goerr.V("bucket", s.name), goerr.V("key", key))
	}
	return nil
}

func (s *cloudStorage) Read(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("bucket", s.name), goerr.V("key", key))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object body", goerr.V("key", key))
	}
	return data, nil
}
