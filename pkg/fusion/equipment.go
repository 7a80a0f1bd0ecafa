package fusion

import "strings"

// EquipmentSpec describes where an equipment type comes from and where
// fused entries for it are attached.
type EquipmentSpec struct {
	Type     EquipmentType
	Method   DetectionMethod
	BodyPart BodyPartName

	// Labels are the generic label names that count as this equipment,
	// matched case-insensitively. Only set for label-sourced types.
	Labels []string
}

var equipmentSpecs = [...]EquipmentSpec{
	{Type: HeadCover, Method: MethodNative, BodyPart: PartHead},
	{Type: HandCover, Method: MethodNative, BodyPart: PartLeftHand},
	{Type: FaceCover, Method: MethodNative, BodyPart: PartFace},
	{Type: EyeCover, Method: MethodFace, BodyPart: PartFace},
	{
		Type:     FootCover,
		Method:   MethodLabel,
		BodyPart: PartLeftFoot,
		Labels:   []string{"Footwear", "Shoe", "Shoes", "Boot", "Boots", "Safety Boots"},
	},
	{
		Type:     EarCover,
		Method:   MethodLabel,
		BodyPart: PartHead,
		Labels:   []string{"Headphones", "Earmuffs", "Ear Protection", "Hearing Protection"},
	},
}

// AllEquipment returns every equipment type in canonical order.
func AllEquipment() []EquipmentType {
	out := make([]EquipmentType, len(equipmentSpecs))
	for i, s := range equipmentSpecs {
		out[i] = s.Type
	}
	return out
}

// NativeRequired is the equipment set the native detector summarizes against.
func NativeRequired() []EquipmentType {
	return typesByMethod(MethodNative)
}

// Spec returns the static record for t.
func Spec(t EquipmentType) (EquipmentSpec, bool) {
	for _, s := range equipmentSpecs {
		if s.Type == t {
			return s, true
		}
	}
	return EquipmentSpec{}, false
}

// Valid reports whether t is a known equipment type.
func (t EquipmentType) Valid() bool {
	_, ok := Spec(t)
	return ok
}

// Methods returns the provenance map attached to every fused summary.
func Methods() DetectionMethods {
	return DetectionMethods{
		Native: typesByMethod(MethodNative),
		Faces:  typesByMethod(MethodFace),
		Labels: typesByMethod(MethodLabel),
	}
}

// MatchesLabel reports whether name is one of the spec's label names.
func (s EquipmentSpec) MatchesLabel(name string) bool {
	for _, l := range s.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

func typesByMethod(m DetectionMethod) []EquipmentType {
	var out []EquipmentType
	for _, s := range equipmentSpecs {
		if s.Method == m {
			out = append(out, s.Type)
		}
	}
	return out
}
