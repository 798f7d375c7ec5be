// Package bundle builds CodePush-style update bundles: it runs the JS
// bundler and Hermes, hashes the produced contents and zips them under their
// package hash.
package bundle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrEmptyBundle is returned when a contents directory holds no files.
var ErrEmptyBundle = errors.New("bundle contains no files")

// ignored reports whether a manifest path is left out of the package hash.
func ignored(rel string) bool {
	if strings.HasPrefix(rel, "__MACOSX/") || strings.Contains(rel, "/__MACOSX/") {
		return true
	}
	switch path.Base(rel) {
	case ".DS_Store", ".codepushrelease":
		return true
	}
	return false
}

// Manifest returns the sorted "path:sha256" entries for every file under
// dir. Paths are relative to the parent of dir, so they start with the
// directory's own name, and always use forward slashes.
func Manifest(ctx context.Context, dir string) ([]string, error) {
	base := filepath.Dir(filepath.Clean(dir))

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	entries := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if ignored(rel) {
				return nil
			}
			sum, err := hashFile(p)
			if err != nil {
				return err
			}
			entries[i] = rel + ":" + sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := entries[:0]
	for _, e := range entries {
		if e != "" {
			manifest = append(manifest, e)
		}
	}
	if len(manifest) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrEmptyBundle)
	}
	sort.Strings(manifest)
	return manifest, nil
}

// HashDirectory returns the package hash of dir: the sha256 of its JSON
// encoded manifest.
func HashDirectory(ctx context.Context, dir string) (string, error) {
	manifest, err := Manifest(ctx, dir)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(manifest); err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:]), nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
