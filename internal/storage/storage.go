// Package storage publishes finished export artifacts. The pipeline writes
// everything locally first; a Publisher copies the results somewhere shared.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrPublish wraps every publication failure.
var ErrPublish = errors.New("storage: publish failed")

// Publisher copies a local artifact to shared storage and returns where it
// can be fetched from.
type Publisher interface {
	// Publish uploads data under key and returns its URL.
	Publish(ctx context.Context, key, contentType string, data io.ReadSeeker) (url string, err error)
}

// Noop is the Publisher used when no storage is configured. It publishes
// nothing and returns an empty URL.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, string, io.ReadSeeker) (string, error) {
	return "", nil
}

// PublishFile opens localPath and publishes it under prefix/<base name>.
func PublishFile(ctx context.Context, p Publisher, prefix, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	defer f.Close()

	return p.Publish(ctx, Key(prefix, filepath.Base(localPath)), ContentType(localPath), f)
}

// Key joins an object prefix and name with forward slashes, dropping empty
// and leading separators.
func Key(prefix, name string) string {
	return strings.TrimPrefix(path.Join(strings.Trim(prefix, "/"), name), "/")
}

// ContentType picks the MIME type for the artifacts the pipeline writes.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	case ".log", ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
