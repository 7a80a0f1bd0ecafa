package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "http://localhost:8080/", []byte("test-secret"), nil)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func tokenFrom(t *testing.T, raw string) (string, string) {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return strings.TrimPrefix(u.Path, "/files/"), u.Query().Get("token")
}

func TestLocal_PutGet(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()

	if err := l.Put(ctx, "web/result.json", []byte(`{"ok":true}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := l.Get(ctx, "web/result.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Expected stored body, got %s", got)
	}

	if _, err := l.Get(ctx, "web/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := l.Put(ctx, "../escape", []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestLocal_ConcurrentPutSameKey(t *testing.T) {
	l := testLocal(t)
	ctx := context.Background()

	const writers = 8
	bodies := make(map[string]bool, writers)
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		body := fmt.Sprintf(`{"writer":%d,"pad":"%s"}`, i, strings.Repeat("x", 64*1024))
		bodies[body] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Put(ctx, "input/same.jpg", []byte(body), "image/jpeg")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Put: %v", err)
		}
	}

	got, err := l.Get(ctx, "input/same.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bodies[string(got)] {
		t.Errorf("Expected one complete writer body, got %d bytes", len(got))
	}

	p, _ := l.path("input/same.jpg")
	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the stored object, got %d entries", len(entries))
	}
}

func TestLocal_SignAndVerify(t *testing.T) {
	l := testLocal(t)
	raw, err := l.SignURL(context.Background(), "input/a b.jpg", OpGet, time.Hour)
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	if !strings.HasPrefix(raw, "http://localhost:8080/files/input/a%20b.jpg?token=") {
		t.Errorf("Unexpected URL %s", raw)
	}

	key, token := tokenFrom(t, raw)
	if key != "input/a b.jpg" {
		t.Errorf("Expected decoded key, got %q", key)
	}
	if err := l.Verify(token, key, OpGet); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if err := l.Verify(token, key, OpPut); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected op mismatch to fail, got %v", err)
	}
	if err := l.Verify(token, "input/other.jpg", OpGet); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected key mismatch to fail, got %v", err)
	}
	if err := l.Verify(token+"x", key, OpGet); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected tampered token to fail, got %v", err)
	}
}

func TestLocal_ExpiredToken(t *testing.T) {
	l := testLocal(t)
	raw, _ := l.SignURL(context.Background(), "input/a.jpg", OpGet, time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)

	key, token := tokenFrom(t, raw)
	if err := l.Verify(token, key, OpGet); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to fail, got %v", err)
	}
}

func TestLocal_OtherKeyRejected(t *testing.T) {
	a := testLocal(t)
	b, _ := NewLocal(t.TempDir(), "http://localhost:8080", []byte("other-secret"), nil)

	raw, _ := a.SignURL(context.Background(), "input/a.jpg", OpGet, time.Hour)
	key, token := tokenFrom(t, raw)
	if err := b.Verify(token, key, OpGet); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected foreign token to fail, got %v", err)
	}
}

func TestNewLocal_RequiresKey(t *testing.T) {
	if _, err := NewLocal(t.TempDir(), "", nil, nil); err == nil {
		t.Error("Expected error without signing key")
	}
}
