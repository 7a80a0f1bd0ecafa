package detect

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// Mock implements Detector for testing.
type Mock struct {
	// PPEFunc is called when DetectProtectiveEquipment is invoked.
	PPEFunc func(ctx context.Context, img Image) (*fusion.NativeResult, error)

	// LabelsFunc is called when DetectLabels is invoked.
	LabelsFunc func(ctx context.Context, img Image) (*fusion.LabelResult, error)

	// FacesFunc is called when DetectFaces is invoked.
	FacesFunc func(ctx context.Context, img Image) (*fusion.FaceResult, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Image  Image
	Time   time.Time
}

// NewMock creates a mock that reports one bare person and nothing else.
func NewMock() *Mock {
	return &Mock{
		PPEFunc: func(ctx context.Context, img Image) (*fusion.NativeResult, error) {
			return &fusion.NativeResult{Persons: []fusion.Person{{
				BoundingBox: &fusion.BoundingBox{Left: 0.25, Top: 0.125, Width: 0.5, Height: 0.75},
				Confidence:  99,
				BodyParts:   []fusion.BodyPart{},
			}}}, nil
		},
		LabelsFunc: func(ctx context.Context, img Image) (*fusion.LabelResult, error) {
			return &fusion.LabelResult{}, nil
		},
		FacesFunc: func(ctx context.Context, img Image) (*fusion.FaceResult, error) {
			return &fusion.FaceResult{}, nil
		},
	}
}

// DetectProtectiveEquipment calls PPEFunc and records the call.
func (m *Mock) DetectProtectiveEquipment(ctx context.Context, img Image) (*fusion.NativeResult, error) {
	m.record("DetectProtectiveEquipment", img)
	if m.PPEFunc != nil {
		return m.PPEFunc(ctx, img)
	}
	return nil, WrapError("mock", "DetectProtectiveEquipment", ErrBackendUnavailable)
}

// DetectLabels calls LabelsFunc and records the call.
func (m *Mock) DetectLabels(ctx context.Context, img Image) (*fusion.LabelResult, error) {
	m.record("DetectLabels", img)
	if m.LabelsFunc != nil {
		return m.LabelsFunc(ctx, img)
	}
	return nil, WrapError("mock", "DetectLabels", ErrBackendUnavailable)
}

// DetectFaces calls FacesFunc and records the call.
func (m *Mock) DetectFaces(ctx context.Context, img Image) (*fusion.FaceResult, error) {
	m.record("DetectFaces", img)
	if m.FacesFunc != nil {
		return m.FacesFunc(ctx, img)
	}
	return nil, WrapError("mock", "DetectFaces", ErrBackendUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", Image{})
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close records the call.
func (m *Mock) Close() error {
	m.record("Close", Image{})
	return nil
}

func (m *Mock) record(method string, img Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Image:  img,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock whose detection calls all fail with err.
func WithError(err error) *Mock {
	return &Mock{
		PPEFunc: func(ctx context.Context, img Image) (*fusion.NativeResult, error) {
			return nil, err
		},
		LabelsFunc: func(ctx context.Context, img Image) (*fusion.LabelResult, error) {
			return nil, err
		},
		FacesFunc: func(ctx context.Context, img Image) (*fusion.FaceResult, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Ensure Mock implements Detector.
var _ Detector = (*Mock)(nil)
