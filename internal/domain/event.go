package domain

import "time"

// EventType names what happened to a case.
type EventType string

const (
	EventCaseSubmitted    EventType = "case.submitted"
	EventCaseTransitioned EventType = "case.transitioned"
)

// CaseEvent is a snapshot of a case change, emitted after it is persisted.
type CaseEvent struct {
	Type      EventType
	CaseID    string
	ProgramID string
	Family    Family
	From      State
	To        State
	ActorID   string
	At        time.Time
}

// CaseEvents builds one event per history entry of c starting at index
// from. The entry that created the case yields EventCaseSubmitted.
func CaseEvents(c Case, from int) []CaseEvent {
	if from < 0 {
		from = 0
	}
	if from >= len(c.History) {
		return nil
	}
	events := make([]CaseEvent, 0, len(c.History)-from)
	for _, tr := range c.History[from:] {
		t := EventCaseTransitioned
		if tr.From == "" {
			t = EventCaseSubmitted
		}
		events = append(events, CaseEvent{
			Type:      t,
			CaseID:    c.ID,
			ProgramID: c.ProgramID,
			Family:    c.Family,
			From:      tr.From,
			To:        tr.To,
			ActorID:   tr.ActorID,
			At:        tr.At,
		})
	}
	return events
}

// ProgramStatistics is the read-only administrative projection of a program.
type ProgramStatistics struct {
	ProgramID string
	Total     int
	ByState   map[State]int
	// AverageDaysInState covers finished stays and the running stay of
	// non-terminal states.
	AverageDaysInState map[State]float64
	Overdue            int
	QueueLength        int
	RemainingBudget    int64
}
