package recurrence

import (
	"time"

	"github.com/samber/mo"
)

// Occurrence is one dated instance produced from a recurring template.
type Occurrence struct {
	Start           time.Time
	End             time.Time
	MovedFromSunday bool
}

// Duration returns the length of the occurrence.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Expander turns a template window plus a Rule into a bounded series of
// occurrences.
type Expander struct {
	location *time.Location
}

// NewExpander constructs an Expander that evaluates weekdays and calendar
// days in loc. If loc is nil, UTC is used.
func NewExpander(loc *time.Location) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	return &Expander{location: loc}
}

// Location returns the zone the expander evaluates calendar days in.
func (e *Expander) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Expand produces the occurrences for rule starting at the template window.
//
// The engine enforces the following semantics:
//   - The cursor starts on the template's start date and advances one rule
//     step per iteration, whether or not the iteration emitted.
//   - Iteration stops after the rule's end date (compared by calendar day) or
//     after MaxOccurrences iterations.
//   - Every occurrence keeps the template's time of day and duration. A
//     template without an end time yields zero-length occurrences.
//   - Weekend handling follows ApplyWeekendPolicy.
func (e *Expander) Expand(rule Rule, baseStart time.Time, baseEnd mo.Option[time.Time]) ([]Occurrence, error) {
	if baseStart.IsZero() {
		return nil, ErrMissingStart
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	loc := e.Location()
	baseStart = baseStart.In(loc)

	// A missing or non-positive window yields zero-length occurrences.
	var duration time.Duration
	if end, ok := baseEnd.Get(); ok && end.After(baseStart) {
		duration = end.Sub(baseStart)
	}

	lastDay := dayOf(rule.EndDate.In(loc))
	cursor := baseStart
	occurrences := make([]Occurrence, 0)

	for iterations := 0; iterations < MaxOccurrences && !dayOf(cursor).After(lastDay); iterations++ {
		decision := ApplyWeekendPolicy(cursor, rule.SkipWeekends)
		if decision.Emit {
			start := combineDateTime(decision.Date, baseStart, loc)
			occurrences = append(occurrences, Occurrence{
				Start:           start,
				End:             start.Add(duration),
				MovedFromSunday: decision.Moved,
			})
		}
		cursor = rule.Next(cursor)
	}

	return occurrences, nil
}

func combineDateTime(dateSource, template time.Time, loc *time.Location) time.Time {
	y, m, d := dateSource.In(loc).Date()
	t := template.In(loc)
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
