package detect

import (
	"context"
	"errors"
	"testing"
)

func TestImage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		img     Image
		wantErr bool
	}{
		{"bytes", Image{Bytes: []byte{1}}, false},
		{"object", Image{Bucket: "b", Key: "k"}, false},
		{"bytes win over partial object", Image{Bucket: "b", Bytes: []byte{1}}, false},
		{"empty", Image{}, true},
		{"missing key", Image{Bucket: "b"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.img.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate: got %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNoImage) {
				t.Errorf("Expected ErrNoImage, got %v", err)
			}
		})
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, tc := range tests {
		e := &APIError{StatusCode: tc.status}
		if got := e.IsRetryable(); got != tc.want {
			t.Errorf("status %d: got %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestMock_RecordsCalls(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	img := Image{Bucket: "b", Key: "k"}

	m.DetectProtectiveEquipment(ctx, img)
	m.DetectLabels(ctx, img)
	m.DetectLabels(ctx, img)

	if m.CallCount("DetectLabels") != 2 {
		t.Errorf("Expected 2 DetectLabels calls, got %d", m.CallCount("DetectLabels"))
	}
	if calls := m.Calls(); calls[0].Image.Key != "k" {
		t.Errorf("Expected image recorded, got %+v", calls[0])
	}
	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("Expected calls cleared")
	}
}

func TestWithError(t *testing.T) {
	boom := errors.New("boom")
	m := WithError(boom)
	if _, err := m.DetectFaces(context.Background(), Image{}); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}
