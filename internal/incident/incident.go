// Package incident converts per-cycle check results into incident and
// recovery events. A check must fail a configured number of consecutive
// cycles before an incident is announced, so a single blip never pages
// anyone, and evaluation is idempotent against unchanged input.
package incident

import (
	"sort"

	"github.com/hazz-dev/statuswatch/internal/checker"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// Event is one incident or recovery produced by an evaluation.
type Event struct {
	CheckID string
	Name    string
	Status  checker.Status
	Message string
}

// Report is everything one evaluation decided to announce.
type Report struct {
	Incidents  []Event
	Recoveries []Event
	// Ongoing lists display names of checks in a previously reported,
	// still unrecovered incident, excluding this cycle's new incidents.
	Ongoing []string
}

// Empty reports whether there is nothing to announce.
func (r Report) Empty() bool {
	return len(r.Incidents) == 0 && len(r.Recoveries) == 0
}

// Evaluate advances the state machine for every check with a result in the
// current window. prev holds the persisted states; latest the newest
// confirmed result per check; names maps check ids to display names.
// It returns the report plus the states that changed and must be persisted.
// Checks absent from latest keep their prior state untouched: absence of
// data is not evidence of anything.
//
// A result whose timestamp equals the state's last processed timestamp has
// already been counted; it is carried forward unchanged, which makes
// repeated evaluations of the same data safe.
func Evaluate(prev map[string]statestore.IncidentState, latest map[string]checker.CheckResult, names map[string]string, threshold int) (Report, []statestore.IncidentState) {
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var report Report
	var updated []statestore.IncidentState
	newIncident := make(map[string]bool)
	final := make(map[string]statestore.IncidentState, len(prev))
	for id, st := range prev {
		final[id] = st
	}

	for _, id := range ids {
		cur := latest[id]
		st, ok := prev[id]
		if !ok {
			st = statestore.IncidentState{CheckID: id}
		}

		if !st.LastTimestamp.IsZero() && cur.Timestamp.Equal(st.LastTimestamp) {
			continue
		}

		if cur.Status != checker.StatusUp {
			st.ConsecutiveFailures++
			if st.ConsecutiveFailures >= threshold && !st.Reported {
				st.Reported = true
				report.Incidents = append(report.Incidents, Event{
					CheckID: id,
					Name:    displayName(names, id),
					Status:  cur.Status,
					Message: cur.Message,
				})
				newIncident[id] = true
			}
		} else {
			if st.Reported {
				report.Recoveries = append(report.Recoveries, Event{
					CheckID: id,
					Name:    displayName(names, id),
					Status:  cur.Status,
				})
			}
			st.ConsecutiveFailures = 0
			st.Reported = false
		}
		st.LastTimestamp = cur.Timestamp

		final[id] = st
		updated = append(updated, st)
	}

	var ongoing []string
	for id, st := range final {
		if st.Reported && !newIncident[id] {
			ongoing = append(ongoing, displayName(names, id))
		}
	}
	sort.Strings(ongoing)
	report.Ongoing = ongoing

	return report, updated
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
