// Package storage holds images and analysis results and hands out
// time-limited URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Key prefixes.
const (
	InputPrefix  = "input/"
	ResultPrefix = "web/"
)

// DefaultURLTTL is how long signed URLs stay valid.
const DefaultURLTTL = time.Hour

// Operation is what a signed URL allows.
type Operation string

// Operations.
const (
	OpGet Operation = "get"
	OpPut Operation = "put"
)

// ParseOperation maps a query value to an Operation. Empty means put.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "put":
		return OpPut, nil
	case "get":
		return OpGet, nil
	default:
		return "", fmt.Errorf("storage: unknown operation %q", s)
	}
}

// Sentinel errors.
var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")

	// ErrInvalidKey is returned for empty or escaping keys.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrInvalidToken is returned when a signed URL token does not verify.
	ErrInvalidToken = errors.New("storage: invalid token")
)

// Store is an object store.
type Store interface {
	// Put writes an object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Get reads an object.
	Get(ctx context.Context, key string) ([]byte, error)

	// SignURL returns a URL that allows op on key until ttl elapses.
	SignURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error)

	// Bucket names the container objects live in.
	Bucket() string
}

// UploadKey normalizes a client filename into an input key.
func UploadKey(filename string) (string, error) {
	key := strings.TrimSpace(filename)
	if key == "" {
		return "", fmt.Errorf("%w: filename is required", ErrInvalidKey)
	}
	if !strings.HasPrefix(key, InputPrefix) {
		key = InputPrefix + key
	}
	return CleanKey(key)
}

// ResultKey returns web/{base}_{unixMillis}.json where base is the last
// path segment of filename up to its first dot.
func ResultKey(filename string, now time.Time) string {
	base := path.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s%s_%d.json", ResultPrefix, base, now.UnixMilli())
}

// CleanKey rejects keys that are empty or escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
