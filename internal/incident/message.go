package incident

import (
	"fmt"
	"strings"
	"time"
)

// Message renders the single notification for this evaluation, or "" when
// there is nothing to announce. One cycle produces at most one message, even
// when incidents and recoveries happen together.
func (r Report) Message(now time.Time) string {
	if r.Empty() {
		return ""
	}

	ts := now.UTC().Format("2006-01-02 15:04:05 UTC")
	var lines []string

	switch {
	case len(r.Incidents) > 0 && len(r.Recoveries) > 0:
		lines = append(lines, fmt.Sprintf("📊 **Status Update** — %s", ts), "", "🔴 New incidents:")
		lines = append(lines, incidentLines(r.Incidents)...)
		lines = append(lines, "", "🟢 Recovered:")
		lines = append(lines, recoveryLines(r.Recoveries)...)
	case len(r.Incidents) > 0:
		lines = append(lines, fmt.Sprintf("🔴 **Incident detected** — %s", ts), "")
		lines = append(lines, incidentLines(r.Incidents)...)
	default:
		header := "🟢 **Recovered**"
		if len(r.Ongoing) > 0 {
			header = "🟡 **Partially Recovered**"
		}
		lines = append(lines, fmt.Sprintf("%s — %s", header, ts), "")
		lines = append(lines, recoveryLines(r.Recoveries)...)
	}

	if len(r.Ongoing) > 0 {
		lines = append(lines, "", "🟡 Ongoing issues:")
		for _, name := range r.Ongoing {
			lines = append(lines, fmt.Sprintf("- **%s**", name))
		}
	}

	return strings.Join(lines, "\n")
}

func incidentLines(events []Event) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- **%s** — %s (%s)", e.Name, e.Status, e.Message))
	}
	return lines
}

func recoveryLines(events []Event) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, fmt.Sprintf("- **%s**", e.Name))
	}
	return lines
}
