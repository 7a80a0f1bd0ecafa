package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-ppe/pkg/compliance"
)

// Title returns the document title for a report taken at t.
func Title(t time.Time) string {
	return "PPE compliance report " + t.Format("2006-01-02 15:04")
}

// FormatReport renders a compliance report as document text.
func FormatReport(r *compliance.Report, t time.Time) string {
	var b strings.Builder

	b.WriteString(Title(t) + "\n\n")
	b.WriteString(r.Narrative)
	b.WriteString("\n\nPer person\n")

	for _, p := range r.Persons {
		fmt.Fprintf(&b, "Person %d: %s\n", p.ID, p.Status)
		for _, it := range p.Items {
			mark := "fail"
			if it.Pass {
				mark = "pass"
			}
			fmt.Fprintf(&b, "  %s %.1f%% (%s, %s trust) %s\n",
				compliance.DisplayName(it.Type), it.Confidence, it.Method, it.Trust, mark)
		}
		if len(p.Missing) > 0 {
			names := make([]string, len(p.Missing))
			for i, m := range p.Missing {
				names[i] = compliance.DisplayName(m)
			}
			fmt.Fprintf(&b, "  Missing: %s\n", strings.Join(names, ", "))
		}
	}

	fmt.Fprintf(&b, "\nThreshold: %.0f%%\n", r.MinConfidence)
	fmt.Fprintf(&b, "Generated: %s\n", t.Format("January 2, 2006 3:04 PM"))
	return b.String()
}
