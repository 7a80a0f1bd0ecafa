// Package analysis runs one image through the detectors, fuses the
// results and persists them next to the source image.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// DetectionType selects what an analysis does.
type DetectionType string

// Detection types.
const (
	TypePPE   DetectionType = fusion.DetectionType
	TypeFace  DetectionType = "face_detection"
	TypeLabel DetectionType = "label_detection"
)

// ParseDetectionType maps a request value to a DetectionType. Empty means PPE.
func ParseDetectionType(s string) (DetectionType, error) {
	switch DetectionType(s) {
	case "":
		return TypePPE, nil
	case TypePPE, TypeFace, TypeLabel:
		return DetectionType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDetectionType, s)
	}
}

// DefaultMinConfidence is the display threshold when a request gives none.
const DefaultMinConfidence = 80.0

// Sentinel errors.
var (
	// ErrInvalidRequest marks caller mistakes.
	ErrInvalidRequest = errors.New("analysis: invalid request")

	// ErrUnsupportedDetectionType is returned for unknown detection types.
	ErrUnsupportedDetectionType = fmt.Errorf("%w: unsupported detection type", ErrInvalidRequest)

	// ErrProcessing marks a detector or storage failure.
	ErrProcessing = errors.New("failed to process image")
)

// Request describes one analysis.
type Request struct {
	Bucket        string
	Filename      string
	DetectionType string
	MinConfidence float64
	UserID        string

	// Image holds inline bytes. When set and Filename is empty the image
	// is stored under input/ first.
	Image []byte
}

// FaceSummary aggregates a face analysis.
type FaceSummary struct {
	TotalFaces    int     `json:"totalFaces"`
	MinConfidence float64 `json:"minConfidence"`
}

// FaceAnalysis is the result of a face_detection request.
type FaceAnalysis struct {
	Faces         []fusion.Face `json:"Faces"`
	Summary       FaceSummary   `json:"Summary"`
	DetectionType DetectionType `json:"DetectionType"`
}

// LabelSummary aggregates a label analysis.
type LabelSummary struct {
	TotalLabels   int     `json:"totalLabels"`
	MinConfidence float64 `json:"minConfidence"`
}

// LabelAnalysis is the result of a label_detection request.
type LabelAnalysis struct {
	Labels        []fusion.Label `json:"Labels"`
	Summary       LabelSummary   `json:"Summary"`
	DetectionType DetectionType  `json:"DetectionType"`
}

// Response is a finished analysis. Exactly one of PPE, Faces or Labels
// is set.
type Response struct {
	PPE    *fusion.Result
	Faces  *FaceAnalysis
	Labels *LabelAnalysis

	ResultKey         string
	ImageKey          string
	PresignedURL      string
	ImagePresignedURL string
	Timestamp         int64
}

// Payload returns the detection result that is stored as JSON.
func (r *Response) Payload() any {
	switch {
	case r.PPE != nil:
		return r.PPE
	case r.Faces != nil:
		return r.Faces
	case r.Labels != nil:
		return r.Labels
	}
	return struct{}{}
}

// MarshalJSON flattens the payload and adds the URL fields next to it.
func (r *Response) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(r.Payload())
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	extra := map[string]any{
		"presignedUrl":      r.PresignedURL,
		"imagePresignedUrl": r.ImagePresignedURL,
		"resultKey":         r.ResultKey,
		"imageKey":          r.ImageKey,
		"timestamp":         r.Timestamp,
	}
	for k, v := range extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}
