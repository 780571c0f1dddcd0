package recurrence

import "time"

// WeekendDecision is the outcome of applying the weekend policy to a
// candidate occurrence date.
type WeekendDecision struct {
	// Emit is false when the occurrence is dropped for this cycle.
	Emit bool
	// Date is the effective date of the occurrence when Emit is true.
	Date time.Time
	// Moved reports that a Sunday candidate was folded onto Saturday.
	Moved bool
}

// ApplyWeekendPolicy decides what happens to a candidate date.
//
// With skipWeekends disabled every date is emitted untouched. Otherwise a
// Sunday is emitted on the preceding Saturday and flagged as moved, while a
// Saturday is suppressed entirely rather than rescheduled.
func ApplyWeekendPolicy(date time.Time, skipWeekends bool) WeekendDecision {
	if !skipWeekends {
		return WeekendDecision{Emit: true, Date: date}
	}
	switch date.Weekday() {
	case time.Sunday:
		return WeekendDecision{Emit: true, Date: date.AddDate(0, 0, -1), Moved: true}
	case time.Saturday:
		return WeekendDecision{}
	default:
		return WeekendDecision{Emit: true, Date: date}
	}
}
