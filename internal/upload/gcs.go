package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"otapush/internal/models"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	contentTypeZip  = "application/zip"
	contentTypeJSON = "application/json"
)

// GCSUploader writes files to a Cloud Storage bucket.
type GCSUploader struct {
	client       *gcs.Client
	bucket       *gcs.BucketHandle
	bucketName   string
	prefix       string
	baseURL      string
	cacheControl string
}

// NewGCSUploader connects to config.GCS.Bucket. Without a BaseURL the public
// storage.googleapis.com URL is returned.
func NewGCSUploader(ctx context.Context, config models.UploadConfig) (*GCSUploader, error) {
	if config.GCS.Bucket == "" {
		return nil, errors.New("bucket is required for GCS upload")
	}

	var opts []option.ClientOption
	if config.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.GCS.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS upload client: %w", err)
	}

	return &GCSUploader{
		client:       client,
		bucket:       client.Bucket(config.GCS.Bucket),
		bucketName:   config.GCS.Bucket,
		prefix:       strings.Trim(config.GCS.Prefix, "/"),
		baseURL:      config.BaseURL,
		cacheControl: config.CacheControl,
	}, nil
}

func (u *GCSUploader) objectName(remote string) string {
	if u.prefix == "" {
		return remote
	}
	return path.Join(u.prefix, remote)
}

// Upload streams localPath into the bucket.
func (u *GCSUploader) Upload(ctx context.Context, localPath, remotePath string) (string, error) {
	remote, err := cleanRemotePath(remotePath)
	if err != nil {
		return "", err
	}
	name := u.objectName(remote)

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	w := u.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType(remote)
	w.CacheControl = u.cacheControl
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	return u.downloadURL(name)
}

func (u *GCSUploader) downloadURL(name string) (string, error) {
	if u.baseURL == "" {
		return joinURL("https://storage.googleapis.com/"+u.bucketName, name)
	}
	return joinURL(u.baseURL, name)
}

// Close releases the client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

func contentType(remote string) string {
	if strings.HasSuffix(remote, ".json") {
		return contentTypeJSON
	}
	return contentTypeZip
}
