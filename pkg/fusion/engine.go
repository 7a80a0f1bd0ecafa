// Package fusion merges native PPE detections with face-attribute and
// generic-label detections into one per-person equipment record.
//
// All operations are pure: input slices are never modified and every
// returned person is a deep copy.
package fusion

import "log/slog"

// DetectionType is the result tag for fused PPE analyses.
const DetectionType = "ppe_detection"

// DefaultBodyPartConfidence is assigned to body parts created by fusion
// when no better estimate is available.
const DefaultBodyPartConfidence = 90.0

// Input bundles the three detector outputs for one image. Any of them
// may be nil.
type Input struct {
	Native *NativeResult
	Labels *LabelResult
	Faces  *FaceResult

	// MinConfidence is echoed into the summary. It does not filter.
	MinConfidence float64
}

// Engine runs the fusion passes.
type Engine struct {
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "fusion")
	return e
}

// Fuse runs the face pass then the label pass over the native persons
// and builds the summary.
func (e *Engine) Fuse(in Input) *Result {
	var persons []Person
	if in.Native != nil {
		persons = in.Native.Persons
	}
	persons = tagNative(persons)

	if in.Faces != nil {
		persons = e.MergeFaces(persons, in.Faces.FaceDetails)
	}
	if in.Labels != nil {
		persons = e.MergeLabels(persons, in.Labels.Labels)
	}

	return &Result{
		ProtectiveEquipment: persons,
		Summary:             Summarize(persons, in.MinConfidence),
		DetectionType:       DetectionType,
	}
}

// MergeFaces attaches an EYE_COVER entry to the person nearest each face
// that wears eyeglasses. Faces without eyewear or without a box are
// skipped, as are persons without a box. Ties go to the lowest index.
func (e *Engine) MergeFaces(persons []Person, faces []Face) []Person {
	out := clonePersons(persons)
	if len(out) == 0 {
		return out
	}

	spec, _ := Spec(EyeCover)
	for i := range faces {
		face := &faces[i]
		if !face.WearsEyewear() || face.BoundingBox == nil {
			continue
		}

		best := nearestPerson(out, *face.BoundingBox)
		if best < 0 {
			continue
		}

		conf := face.Confidence
		if conf == 0 {
			conf = DefaultBodyPartConfidence
		}
		part := findOrCreatePart(&out[best], spec.BodyPart, conf)
		out[best].BodyParts[part].EquipmentDetections = append(out[best].BodyParts[part].EquipmentDetections, EquipmentDetection{
			Type:       EyeCover,
			Confidence: face.Eyeglasses.Confidence,
			CoversBodyPart: &CoversBodyPart{
				Confidence: face.Eyeglasses.Confidence,
				Value:      true,
			},
			BoundingBox:     cloneBox(face.BoundingBox),
			DetectionMethod: MethodFace,
		})
		e.logger.Debug("face eyewear attributed", "face", i, "person", out[best].ID, "confidence", face.Eyeglasses.Confidence)
	}
	return out
}

// MergeLabels attributes label instances to the persons whose box holds
// the instance center. For each person and label-sourced type, the first
// matching label with instances is used and at most one instance is
// attached.
func (e *Engine) MergeLabels(persons []Person, labels []Label) []Person {
	out := clonePersons(persons)

	for i := range out {
		person := &out[i]
		if person.BoundingBox == nil {
			continue
		}
		for _, spec := range equipmentSpecs {
			if spec.Method != MethodLabel {
				continue
			}
			label := firstLabel(labels, spec)
			if label == nil {
				continue
			}
			inst := firstInstanceInside(label.Instances, *person.BoundingBox)
			if inst == nil {
				continue
			}

			part := findOrCreatePart(person, spec.BodyPart, DefaultBodyPartConfidence)
			person.BodyParts[part].EquipmentDetections = append(person.BodyParts[part].EquipmentDetections, EquipmentDetection{
				Type:       spec.Type,
				Confidence: inst.Confidence,
				CoversBodyPart: &CoversBodyPart{
					Confidence: inst.Confidence,
					Value:      true,
				},
				BoundingBox:     cloneBox(inst.BoundingBox),
				DetectionMethod: MethodLabel,
			})
			e.logger.Debug("label attributed", "label", label.Name, "type", spec.Type, "person", person.ID)
		}
	}
	return out
}

// Summarize counts persons and native-compliant persons. Compliance is
// taken from the native summarization and is not recomputed from fused
// equipment.
func Summarize(persons []Person, minConfidence float64) Summary {
	compliant := 0
	for i := range persons {
		if persons[i].Compliant() {
			compliant++
		}
	}
	return Summary{
		TotalPersons:     len(persons),
		Compliant:        compliant,
		MinConfidence:    minConfidence,
		HybridDetection:  true,
		DetectionMethods: Methods(),
	}
}

var defaultEngine = New()

// Fuse runs the default engine.
func Fuse(in Input) *Result {
	return defaultEngine.Fuse(in)
}

func nearestPerson(persons []Person, box BoundingBox) int {
	best := -1
	bestDist := 0.0
	for i := range persons {
		if persons[i].BoundingBox == nil {
			continue
		}
		d := CenterDistance(box, *persons[i].BoundingBox)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func firstLabel(labels []Label, spec EquipmentSpec) *Label {
	for i := range labels {
		if len(labels[i].Instances) > 0 && spec.MatchesLabel(labels[i].Name) {
			return &labels[i]
		}
	}
	return nil
}

func firstInstanceInside(instances []Instance, outer BoundingBox) *Instance {
	for i := range instances {
		if instances[i].BoundingBox != nil && IsInside(*instances[i].BoundingBox, outer) {
			return &instances[i]
		}
	}
	return nil
}

// findOrCreatePart returns the index of the named body part, appending
// it with conf if absent.
func findOrCreatePart(p *Person, name BodyPartName, conf float64) int {
	for i := range p.BodyParts {
		if p.BodyParts[i].Name == name {
			return i
		}
	}
	p.BodyParts = append(p.BodyParts, BodyPart{
		Name:                name,
		Confidence:          conf,
		EquipmentDetections: []EquipmentDetection{},
	})
	return len(p.BodyParts) - 1
}

func tagNative(persons []Person) []Person {
	out := clonePersons(persons)
	for i := range out {
		if out[i].BodyParts == nil {
			out[i].BodyParts = []BodyPart{}
		}
		for j := range out[i].BodyParts {
			dets := out[i].BodyParts[j].EquipmentDetections
			for k := range dets {
				if dets[k].DetectionMethod == "" {
					dets[k].DetectionMethod = MethodNative
				}
			}
		}
	}
	return out
}

func clonePersons(in []Person) []Person {
	out := make([]Person, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Clone returns a deep copy of p.
func (p Person) Clone() Person {
	c := p
	c.BoundingBox = cloneBox(p.BoundingBox)
	if p.ProtectiveEquipmentSummarization != nil {
		s := *p.ProtectiveEquipmentSummarization
		c.ProtectiveEquipmentSummarization = &s
	}
	if p.BodyParts != nil {
		c.BodyParts = make([]BodyPart, len(p.BodyParts))
		for i, bp := range p.BodyParts {
			c.BodyParts[i] = bp
			c.BodyParts[i].EquipmentDetections = make([]EquipmentDetection, len(bp.EquipmentDetections))
			for j, d := range bp.EquipmentDetections {
				d.BoundingBox = cloneBox(d.BoundingBox)
				if d.CoversBodyPart != nil {
					cb := *d.CoversBodyPart
					d.CoversBodyPart = &cb
				}
				c.BodyParts[i].EquipmentDetections[j] = d
			}
		}
	}
	return c
}

func cloneBox(b *BoundingBox) *BoundingBox {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
