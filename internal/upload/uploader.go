// Package upload copies bundle archives to where devices download them from.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"otapush/internal/models"
	"path"
	"strings"
)

// ErrInvalidPath is returned for remote paths that escape the upload root.
var ErrInvalidPath = errors.New("invalid remote path")

// Uploader publishes a local file under remotePath and returns the URL it can
// be downloaded from.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) (string, error)
}

// New creates the uploader selected by config.
func New(ctx context.Context, config models.UploadConfig) (Uploader, error) {
	switch config.Type {
	case models.UploadTypeLocal, "":
		return NewLocalUploader(config.Path, config.BaseURL)
	case models.UploadTypeGCS:
		return NewGCSUploader(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported upload type: %s", config.Type)
	}
}

// cleanRemotePath normalizes p to a slash separated relative path.
func cleanRemotePath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" || p == "." {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	return p, nil
}

func joinURL(base, p string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	return u.JoinPath(strings.Split(p, "/")...).String(), nil
}
