// Package provider is the local side of a bulk transfer: where downloaded VM
// images land and where uploads are read from. A location is either a plain
// filesystem path or an S3 staging bucket written as s3://bucket/prefix.
package provider

import (
	"context"
	"io"
	"strings"
	"time"
)

// FileInfo represents the standard metadata for a file or a directory
// across different storage abstractions.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend abstraction.
type Provider interface {
	// Stat returns the FileInfo for the given path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, creating parents as needed.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)

	// MkdirAll makes sure the directory exists.
	MkdirAll(ctx context.Context, path string) error

	// RemoveAll deletes path and everything beneath it.
	RemoveAll(ctx context.Context, path string) error

	// TempDir creates a new uniquely named directory inside dir. The last
	// "*" in pattern is replaced by a random string.
	TempDir(ctx context.Context, dir, pattern string) (string, error)

	// Join joins path elements using the provider's separator.
	Join(elem ...string) string
}

// Open returns the provider for location together with the base path to hand
// back to it. For s3://bucket/prefix the provider is rooted at the prefix and
// the base path is empty.
func Open(ctx context.Context, location string) (Provider, string, error) {
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		p, err := NewS3Provider(ctx, bucket, prefix)
		if err != nil {
			return nil, "", err
		}
		return p, "", nil
	}
	if location == "" {
		location = "."
	}
	return NewLocalProvider(""), location, nil
}
