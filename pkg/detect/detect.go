// Package detect wraps the vision backends that feed the fusion engine.
//
// Three calls are made per image: native PPE detection, generic object
// labels and face attributes. Each backend returns the fusion package's
// wire types so results can be merged directly.
package detect

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// Fixed backend parameters. The detection floor is independent of any
// caller-supplied display threshold so that low-confidence equipment
// still reaches the fusion engine.
const (
	DetectionFloor = 50.0
	MaxLabels      = 50
)

// Detector is a vision backend.
type Detector interface {
	// DetectProtectiveEquipment returns persons with body parts and the
	// native per-person compliance flag.
	DetectProtectiveEquipment(ctx context.Context, img Image) (*fusion.NativeResult, error)

	// DetectLabels returns generic object labels with optional instances.
	DetectLabels(ctx context.Context, img Image) (*fusion.LabelResult, error)

	// DetectFaces returns faces with their attributes.
	DetectFaces(ctx context.Context, img Image) (*fusion.FaceResult, error)

	// Health checks if the backend is reachable.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Image references the picture to analyze: either an object in a bucket
// or inline bytes. Inline bytes win when both are set.
type Image struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key,omitempty"`
	Bytes  []byte `json:"bytes,omitempty"`
}

// Validate checks that the image has a usable source.
func (i Image) Validate() error {
	if len(i.Bytes) > 0 {
		return nil
	}
	if i.Bucket == "" || i.Key == "" {
		return fmt.Errorf("%w: need bytes or bucket and key", ErrNoImage)
	}
	return nil
}

// String describes the image for logs.
func (i Image) String() string {
	if len(i.Bytes) > 0 {
		return fmt.Sprintf("inline(%d bytes)", len(i.Bytes))
	}
	return i.Bucket + "/" + i.Key
}

// RequiredEquipment is the set the native detector summarizes against.
func RequiredEquipment() []fusion.EquipmentType {
	return fusion.NativeRequired()
}
