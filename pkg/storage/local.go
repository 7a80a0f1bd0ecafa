package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// LocalBucket is the bucket name reported by the local store.
const LocalBucket = "local"

// Local is a filesystem Store whose signed URLs point at the service's
// own /files endpoint and carry an HMAC-signed token.
type Local struct {
	root      string
	publicURL string
	key       []byte
	logger    *slog.Logger
}

type fileClaims struct {
	Key string    `json:"key"`
	Op  Operation `json:"op"`
	jwt.RegisteredClaims
}

// NewLocal creates a local store rooted at dir.
func NewLocal(dir, publicURL string, signingKey []byte, logger *slog.Logger) (*Local, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("storage: signing key required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		root:      dir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		key:       signingKey,
		logger:    logger.With("component", "storage.local"),
	}, nil
}

// Bucket returns LocalBucket.
func (l *Local) Bucket() string {
	return LocalBucket
}

// Put writes an object atomically.
func (l *Local) Put(ctx context.Context, key string, body []byte, contentType string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	tmp := f.Name()
	_, err = f.Write(body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: rename %s: %w", key, err)
	}
	l.logger.Debug("object stored", "key", key, "bytes", len(body))
	return nil
}

// Get reads an object.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// SignURL returns {publicURL}/files/{key}?token=...
func (l *Local) SignURL(ctx context.Context, key string, op Operation, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if op != OpGet && op != OpPut {
		return "", fmt.Errorf("storage: unknown operation %q", op)
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	now := time.Now()
	claims := fileClaims{
		Key: key,
		Op:  op,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.key)
	if err != nil {
		return "", fmt.Errorf("storage: sign: %w", err)
	}

	u := l.publicURL + "/files/" + (&url.URL{Path: key}).EscapedPath()
	return u + "?token=" + url.QueryEscape(token), nil
}

// Verify checks that token grants op on key.
func (l *Local) Verify(token, key string, op Operation) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	var claims fileClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Key != key || claims.Op != op {
		return fmt.Errorf("%w: token does not grant %s on %s", ErrInvalidToken, op, key)
	}
	return nil
}

func (l *Local) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// Ensure Local implements Store.
var _ Store = (*Local)(nil)
