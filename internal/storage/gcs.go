package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"otapush/internal/models"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorage keeps each history as a plain JSON object in a Cloud Storage
// bucket. The object generation is the revision, and publishes use generation
// preconditions so the bucket itself arbitrates concurrent writers.
type GCSStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
}

// NewGCSStorage connects to the bucket named in config. An empty
// CredentialsFile uses application default credentials.
func NewGCSStorage(ctx context.Context, config Config) (*GCSStorage, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket is required for GCS storage")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: client.Bucket(config.Bucket),
		prefix: strings.Trim(config.Prefix, "/"),
	}, nil
}

func (g *GCSStorage) objectName(p string) string {
	if g.prefix == "" {
		return p
	}
	return path.Join(g.prefix, p)
}

// FetchReleaseHistory downloads the history object.
func (g *GCSStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	r, err := g.bucket.Object(g.objectName(key.ObjectPath())).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key.ObjectPath(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key.ObjectPath(), err)
	}

	h, err := decodeHistory(data)
	if err != nil {
		return nil, err
	}
	return &models.HistoryRecord{Key: key, History: h, Revision: r.Attrs.Generation}, nil
}

// PublishReleaseHistory uploads the history with a generation precondition.
func (g *GCSStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}

	data, err := encodeHistory(history)
	if err != nil {
		return 0, err
	}

	cond := gcs.Conditions{GenerationMatch: expectedRevision}
	if expectedRevision == 0 {
		cond = gcs.Conditions{DoesNotExist: true}
	}

	w := g.bucket.Object(g.objectName(key.ObjectPath())).If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0, g.publishError(key, expectedRevision, err)
	}
	if err := w.Close(); err != nil {
		return 0, g.publishError(key, expectedRevision, err)
	}
	return w.Attrs().Generation, nil
}

func (g *GCSStorage) publishError(key models.HistoryKey, expectedRevision int64, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		if expectedRevision == 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return fmt.Errorf("%w: %s", ErrConflict, key)
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to write %s: %w", key.ObjectPath(), err)
}

// ListHistories lists the history objects under the platform and identifier.
func (g *GCSStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	prefix := g.objectName(listPrefix(platform, identifier))
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	var versions []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list histories: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" || !strings.HasSuffix(name, ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".json"))
	}
	return sortedVersions(versions), nil
}

// Ping reads the bucket attributes.
func (g *GCSStorage) Ping(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("failed to reach bucket: %w", err)
	}
	return nil
}

// Close closes the client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
