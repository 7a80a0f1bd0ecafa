// Package compliance evaluates fused detections against a required
// equipment set at a display threshold.
//
// Detection and display thresholds are separate: the fusion engine keeps
// every detection above the backend floor, and this package decides what
// counts as present for a given threshold.
package compliance

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

// DefaultMinConfidence is the display threshold when none is given.
const DefaultMinConfidence = 75.0

// Status classifies a person.
type Status string

// Statuses.
const (
	StatusCompliant    Status = "compliant"
	StatusPartial      Status = "partial"
	StatusNonCompliant Status = "non_compliant"
)

// Trust grades a detection method.
type Trust string

// Trust levels.
const (
	TrustHigh   Trust = "HIGH"
	TrustMedium Trust = "MEDIUM"
)

// TrustOf returns the trust level for a detection method.
func TrustOf(m fusion.DetectionMethod) Trust {
	if m == fusion.MethodNative || m == "" {
		return TrustHigh
	}
	return TrustMedium
}

// Passes reports whether conf meets the display threshold.
func Passes(conf, minConfidence float64) bool {
	return conf >= minConfidence
}

// ErrInvalidOptions is returned for bad thresholds or unknown equipment.
var ErrInvalidOptions = errors.New("compliance: invalid options")

// Options controls an evaluation.
type Options struct {
	// Required lists the equipment every person must wear. Empty means
	// every known equipment type.
	Required []fusion.EquipmentType

	// MinConfidence is the display threshold. Zero means DefaultMinConfidence.
	MinConfidence float64
}

func (o Options) normalize() (Options, error) {
	if o.MinConfidence == 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.MinConfidence < 0 || o.MinConfidence > 100 {
		return o, fmt.Errorf("%w: min confidence %v outside [0,100]", ErrInvalidOptions, o.MinConfidence)
	}
	if len(o.Required) == 0 {
		o.Required = fusion.AllEquipment()
		return o, nil
	}

	seen := make(map[fusion.EquipmentType]bool, len(o.Required))
	required := make([]fusion.EquipmentType, 0, len(o.Required))
	for _, t := range o.Required {
		if !t.Valid() {
			return o, fmt.Errorf("%w: unknown equipment type %q", ErrInvalidOptions, t)
		}
		if !seen[t] {
			seen[t] = true
			required = append(required, t)
		}
	}
	o.Required = required
	return o, nil
}

// Item is the best detection of one equipment type on a person.
type Item struct {
	Type       fusion.EquipmentType   `json:"type"`
	Confidence float64                `json:"confidence"`
	Method     fusion.DetectionMethod `json:"method"`
	Trust      Trust                  `json:"trust"`
	Pass       bool                   `json:"pass"`
}

// PersonReport is the verdict for one person.
type PersonReport struct {
	ID       int                    `json:"id"`
	Status   Status                 `json:"status"`
	Detected []fusion.EquipmentType `json:"detected"`
	Missing  []fusion.EquipmentType `json:"missing"`
	Items    []Item                 `json:"items"`
}

// Report is the evaluation of one fused result.
type Report struct {
	TotalPersons      int                    `json:"totalPersons"`
	Compliant         int                    `json:"compliant"`
	Partial           int                    `json:"partial"`
	NonCompliant      int                    `json:"nonCompliant"`
	Required          []fusion.EquipmentType `json:"required"`
	MinConfidence     float64                `json:"minConfidence"`
	DetectedRequired  int                    `json:"detectedRequired"`
	TotalRequired     int                    `json:"totalRequired"`
	CompliancePercent int                    `json:"compliancePercent"`
	DetectedTypes     []fusion.EquipmentType `json:"detectedTypes"`
	Persons           []PersonReport         `json:"persons"`
	Narrative         string                 `json:"narrative"`
}

// Evaluate recomputes compliance for every person in res.
func Evaluate(res *fusion.Result, opts Options) (*Report, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	var persons []fusion.Person
	if res != nil {
		persons = res.ProtectiveEquipment
	}

	r := &Report{
		TotalPersons:  len(persons),
		Required:      opts.Required,
		MinConfidence: opts.MinConfidence,
		TotalRequired: len(opts.Required) * len(persons),
		DetectedTypes: []fusion.EquipmentType{},
		Persons:       make([]PersonReport, 0, len(persons)),
	}

	detectedAny := make(map[fusion.EquipmentType]bool)
	for i := range persons {
		pr := evaluatePerson(persons[i], opts)
		for _, it := range pr.Items {
			if it.Pass && !detectedAny[it.Type] {
				detectedAny[it.Type] = true
				r.DetectedTypes = append(r.DetectedTypes, it.Type)
			}
		}
		r.DetectedRequired += len(pr.Detected)
		switch pr.Status {
		case StatusCompliant:
			r.Compliant++
		case StatusPartial:
			r.Partial++
		default:
			r.NonCompliant++
		}
		r.Persons = append(r.Persons, pr)
	}

	if r.TotalRequired > 0 {
		r.CompliancePercent = int(math.Round(float64(r.DetectedRequired) / float64(r.TotalRequired) * 100))
	}
	r.Narrative = Narrative(r)
	return r, nil
}

func evaluatePerson(p fusion.Person, opts Options) PersonReport {
	best := make(map[fusion.EquipmentType]Item)
	var order []fusion.EquipmentType
	for _, bp := range p.BodyParts {
		for _, d := range bp.EquipmentDetections {
			cur, ok := best[d.Type]
			if !ok {
				order = append(order, d.Type)
			}
			if !ok || d.Confidence > cur.Confidence {
				best[d.Type] = Item{
					Type:       d.Type,
					Confidence: d.Confidence,
					Method:     d.DetectionMethod,
					Trust:      TrustOf(d.DetectionMethod),
					Pass:       Passes(d.Confidence, opts.MinConfidence),
				}
			}
		}
	}

	pr := PersonReport{
		ID:       p.ID,
		Detected: []fusion.EquipmentType{},
		Missing:  []fusion.EquipmentType{},
		Items:    make([]Item, 0, len(order)),
	}
	for _, t := range order {
		pr.Items = append(pr.Items, best[t])
	}
	for _, t := range opts.Required {
		if it, ok := best[t]; ok && it.Pass {
			pr.Detected = append(pr.Detected, t)
		} else {
			pr.Missing = append(pr.Missing, t)
		}
	}

	switch {
	case len(pr.Missing) == 0:
		pr.Status = StatusCompliant
	case len(pr.Detected) > 0:
		pr.Status = StatusPartial
	default:
		pr.Status = StatusNonCompliant
	}
	return pr
}
