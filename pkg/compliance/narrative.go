package compliance

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-ppe/pkg/fusion"
)

var equipmentNames = map[fusion.EquipmentType]string{
	fusion.HeadCover: "Helmet",
	fusion.EyeCover:  "Safety glasses",
	fusion.HandCover: "Gloves",
	fusion.FootCover: "Safety footwear",
	fusion.FaceCover: "Face mask",
	fusion.EarCover:  "Hearing protection",
}

// DisplayName returns a human name for an equipment type.
func DisplayName(t fusion.EquipmentType) string {
	if n, ok := equipmentNames[t]; ok {
		return n
	}
	return string(t)
}

// Narrative renders a plain-text summary of the report with
// recommendations matched to the overall outcome.
func Narrative(r *Report) string {
	var b strings.Builder
	b.WriteString("Safety analysis summary\n\n")

	if r.TotalPersons == 0 {
		b.WriteString("No persons were detected in the image. Check that the image shows workers and that its quality is adequate for analysis.")
		return b.String()
	}

	fmt.Fprintf(&b, "%s detected in the work area.\n\n", plural(r.TotalPersons, "person", "persons"))

	if len(r.DetectedTypes) > 0 {
		names := make([]string, len(r.DetectedTypes))
		for i, t := range r.DetectedTypes {
			names[i] = DisplayName(t)
		}
		fmt.Fprintf(&b, "Equipment detected: %s\n\n", strings.Join(names, ", "))
	}

	required := len(r.Required)
	switch {
	case r.Compliant == r.TotalPersons:
		fmt.Fprintf(&b, "Full compliance (%d%%): all %s wear the %d required items.\n\n",
			r.CompliancePercent, plural(r.TotalPersons, "person", "persons"), required)
		b.WriteString("Recommendations:\n")
		b.WriteString("- Maintain this level of compliance\n")
		b.WriteString("- Run periodic inspections\n")
		b.WriteString("- Keep reinforcing safety culture")

	case r.Compliant > 0 || r.Partial > 0:
		fmt.Fprintf(&b, "Partial compliance (%d%% of required equipment detected):\n\n", r.CompliancePercent)
		if r.Compliant > 0 {
			fmt.Fprintf(&b, "- %s with all equipment (%d/%d)\n", plural(r.Compliant, "person", "persons"), required, required)
		}
		if r.Partial > 0 {
			avg := int(math.Round(float64(r.DetectedRequired) / float64(r.Compliant+r.Partial)))
			fmt.Fprintf(&b, "- %s with incomplete equipment (~%d/%d)\n", plural(r.Partial, "person", "persons"), avg, required)
		}
		if r.NonCompliant > 0 {
			fmt.Fprintf(&b, "- %s without detected equipment (0/%d)\n", plural(r.NonCompliant, "person", "persons"), required)
		}
		b.WriteString("\nRecommended actions:\n")
		b.WriteString("- Check missing equipment on non-compliant staff\n")
		b.WriteString("- Provide every required protective item\n")
		b.WriteString("- Reinforce training on correct use\n")
		b.WriteString("- Keep continuous supervision in place")

	default:
		fmt.Fprintf(&b, "Non-compliance (%d%%): nobody wears all %d required items.\n\n", r.CompliancePercent, required)
		b.WriteString("Action required:\n")
		b.WriteString("- Stop work until corrected\n")
		b.WriteString("- Provide complete equipment to all staff\n")
		b.WriteString("- Train staff on correct use\n")
		b.WriteString("- Add verification checkpoints\n")
		b.WriteString("- Review safety procedures")
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
