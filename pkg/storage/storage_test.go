package storage

import (
	"errors"
	"testing"
	"time"
)

func TestUploadKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "photo.jpg", want: "input/photo.jpg"},
		{in: "input/photo.jpg", want: "input/photo.jpg"},
		{in: "  site/a.jpg ", want: "input/site/a.jpg"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "../../etc/passwd", wantErr: true},
	}
	for _, tc := range tests {
		got, err := UploadKey(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("UploadKey(%q): err %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("UploadKey(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResultKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		in   string
		want string
	}{
		{"input/site-a/worker.jpg", "web/worker_1700000000123.json"},
		{"worker.final.png", "web/worker_1700000000123.json"},
		{"noext", "web/noext_1700000000123.json"},
	}
	for _, tc := range tests {
		if got := ResultKey(tc.in, now); got != tc.want {
			t.Errorf("ResultKey(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanKey(t *testing.T) {
	bad := []string{"", "/", "..", "../x", "a/../../x"}
	for _, k := range bad {
		if _, err := CleanKey(k); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("CleanKey(%q): expected ErrInvalidKey, got %v", k, err)
		}
	}
	if got, err := CleanKey("/web/a.json"); err != nil || got != "web/a.json" {
		t.Errorf("CleanKey: got %q, %v", got, err)
	}
}

func TestParseOperation(t *testing.T) {
	if op, _ := ParseOperation(""); op != OpPut {
		t.Errorf("Expected put default, got %s", op)
	}
	if op, _ := ParseOperation("GET"); op != OpGet {
		t.Errorf("Expected get, got %s", op)
	}
	if _, err := ParseOperation("delete"); err == nil {
		t.Error("Expected error for unknown operation")
	}
}
