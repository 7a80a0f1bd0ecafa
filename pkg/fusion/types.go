package fusion

// BoundingBox is a rectangle in normalized image coordinates (0-1), origin top-left.
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

// EquipmentType identifies a kind of protective equipment.
type EquipmentType string

// Equipment types.
const (
	HeadCover EquipmentType = "HEAD_COVER"
	HandCover EquipmentType = "HAND_COVER"
	FaceCover EquipmentType = "FACE_COVER"
	EyeCover  EquipmentType = "EYE_COVER"
	FootCover EquipmentType = "FOOT_COVER"
	EarCover  EquipmentType = "EAR_COVER"
)

// DetectionMethod records which detector produced an equipment entry.
type DetectionMethod string

// Detection methods, from most to least trusted.
const (
	MethodNative DetectionMethod = "NATIVE"
	MethodFace   DetectionMethod = "FACE_DETECTION"
	MethodLabel  DetectionMethod = "LABEL_DETECTION"
)

// BodyPartName names an anatomical region of a person.
type BodyPartName string

// Body part names reported by the native detector, plus LEFT_FOOT used by label fusion.
const (
	PartFace      BodyPartName = "FACE"
	PartHead      BodyPartName = "HEAD"
	PartLeftHand  BodyPartName = "LEFT_HAND"
	PartRightHand BodyPartName = "RIGHT_HAND"
	PartLeftFoot  BodyPartName = "LEFT_FOOT"
)

// CoversBodyPart says whether the equipment covers the body part it was found on.
type CoversBodyPart struct {
	Confidence float64 `json:"Confidence"`
	Value      bool    `json:"Value"`
}

// EquipmentDetection is one piece of equipment found on a body part.
// Confidence is on a 0-100 scale.
type EquipmentDetection struct {
	Type            EquipmentType   `json:"Type"`
	Confidence      float64         `json:"Confidence"`
	CoversBodyPart  *CoversBodyPart `json:"CoversBodyPart,omitempty"`
	BoundingBox     *BoundingBox    `json:"BoundingBox,omitempty"`
	DetectionMethod DetectionMethod `json:"DetectionMethod,omitempty"`
}

// BodyPart is a named region of a person with the equipment found on it.
type BodyPart struct {
	Name                BodyPartName         `json:"Name"`
	Confidence          float64              `json:"Confidence"`
	EquipmentDetections []EquipmentDetection `json:"EquipmentDetections"`
}

// Summarization is the native detector's own verdict for a person.
type Summarization struct {
	AllRequiredEquipmentCovered bool `json:"AllRequiredEquipmentCovered"`
}

// Person is one human figure found by the native detector. ID is the
// position in the detection array and is not stable across calls.
type Person struct {
	ID                               int            `json:"Id"`
	BoundingBox                      *BoundingBox   `json:"BoundingBox,omitempty"`
	Confidence                       float64        `json:"Confidence"`
	BodyParts                        []BodyPart     `json:"BodyParts"`
	ProtectiveEquipmentSummarization *Summarization `json:"ProtectiveEquipmentSummarization,omitempty"`
}

// Compliant reports the native compliance flag.
func (p Person) Compliant() bool {
	return p.ProtectiveEquipmentSummarization != nil && p.ProtectiveEquipmentSummarization.AllRequiredEquipmentCovered
}

// NativeResult is the output of the native PPE detector.
type NativeResult struct {
	Persons []Person `json:"Persons"`
}

// Instance is one localized occurrence of a label.
type Instance struct {
	BoundingBox *BoundingBox `json:"BoundingBox,omitempty"`
	Confidence  float64      `json:"Confidence"`
}

// Label is a generic object label. A label without instances is a
// scene-level tag and cannot be attributed to a person.
type Label struct {
	Name       string     `json:"Name"`
	Confidence float64    `json:"Confidence"`
	Instances  []Instance `json:"Instances,omitempty"`
}

// LabelResult is the output of the generic object-label detector.
type LabelResult struct {
	Labels []Label `json:"Labels"`
}

// BoolAttribute is a boolean face attribute with its confidence.
type BoolAttribute struct {
	Value      bool    `json:"Value"`
	Confidence float64 `json:"Confidence"`
}

// Face is one face found by the face-attribute detector.
type Face struct {
	BoundingBox *BoundingBox   `json:"BoundingBox,omitempty"`
	Confidence  float64        `json:"Confidence"`
	Eyeglasses  *BoolAttribute `json:"Eyeglasses,omitempty"`
	Sunglasses  *BoolAttribute `json:"Sunglasses,omitempty"`
}

// WearsEyewear reports whether the face carries a positive eyeglasses attribute.
func (f *Face) WearsEyewear() bool {
	return f.Eyeglasses != nil && f.Eyeglasses.Value
}

// FaceResult is the output of the face-attribute detector.
type FaceResult struct {
	FaceDetails []Face `json:"FaceDetails"`
}

// DetectionMethods lists which equipment types each detector contributes.
type DetectionMethods struct {
	Native []EquipmentType `json:"native"`
	Faces  []EquipmentType `json:"faces"`
	Labels []EquipmentType `json:"labels"`
}

// Summary aggregates a fused result.
type Summary struct {
	TotalPersons     int              `json:"totalPersons"`
	Compliant        int              `json:"compliant"`
	MinConfidence    float64          `json:"minConfidence"`
	HybridDetection  bool             `json:"hybridDetection"`
	DetectionMethods DetectionMethods `json:"detectionMethods"`
}

// Result is the fused per-person equipment record for one image.
type Result struct {
	ProtectiveEquipment []Person `json:"ProtectiveEquipment"`
	Summary             Summary  `json:"Summary"`
	DetectionType       string   `json:"DetectionType"`
}
