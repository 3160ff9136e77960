package client

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// StorageClient wraps the Google Cloud Storage client.
type StorageClient struct {
	client     *storage.Client
	bucketName string
	publicURL  string
}

// NewStorageClient creates a new storage client. publicURL defaults to the
// storage.googleapis.com address of the bucket.
func NewStorageClient(ctx context.Context, bucketName, publicURL string) (*StorageClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	if publicURL == "" {
		publicURL = "https://storage.googleapis.com/" + bucketName
	}

	return &StorageClient{
		client:     client,
		bucketName: bucketName,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}, nil
}

// Close closes the client.
func (c *StorageClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Upload writes data to objectName and returns its public URL.
func (c *StorageClient) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	w := c.client.Bucket(c.bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gcs upload: %w", err)
	}

	return c.publicURL + "/" + objectName, nil
}

// Ping checks that the bucket is reachable.
func (c *StorageClient) Ping(ctx context.Context) error {
	if _, err := c.client.Bucket(c.bucketName).Attrs(ctx); err != nil {
		if err == storage.ErrBucketNotExist {
			return fmt.Errorf("gcs bucket %s does not exist", c.bucketName)
		}
		return fmt.Errorf("gcs bucket %s unreachable: %w", c.bucketName, err)
	}
	return nil
}
