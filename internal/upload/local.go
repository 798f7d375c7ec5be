package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalUploader copies files below a directory, typically one served by
// otapushd under /static.
type LocalUploader struct {
	root    string
	baseURL string
}

// NewLocalUploader creates an uploader rooted at root. With an empty baseURL
// Upload returns the absolute file path instead of a URL.
func NewLocalUploader(root, baseURL string) (*LocalUploader, error) {
	if root == "" {
		return nil, errors.New("path is required for local upload")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &LocalUploader{root: abs, baseURL: baseURL}, nil
}

// Upload copies localPath to root/remotePath, replacing any existing file.
func (u *LocalUploader) Upload(ctx context.Context, localPath, remotePath string) (string, error) {
	remote, err := cleanRemotePath(remotePath)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(u.root, filepath.FromSlash(remote))

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := copyAtomic(localPath, dest); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	if u.baseURL == "" {
		return dest, nil
	}
	return joinURL(u.baseURL, remote)
}

func copyAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
