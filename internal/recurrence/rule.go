package recurrence

import (
	"errors"
	"strings"
	"time"
)

// MaxOccurrences bounds the number of expansion iterations regardless of the
// rule's end date.
const MaxOccurrences = 365

// Kind identifies the unit a recurrence rule steps by.
type Kind int

const (
	// KindDaily advances the cursor by Interval days.
	KindDaily Kind = iota
	// KindWeekly advances the cursor by Interval weeks.
	KindWeekly
	// KindMonthly advances the cursor by Interval calendar months.
	KindMonthly
	// KindYearly advances the cursor by Interval calendar years.
	KindYearly

	kindCount
)

type stepFunc func(t time.Time, interval int) time.Time

// kindSteps must hold one entry per Kind; TestKindStepTableIsComplete guards it.
var kindSteps = [kindCount]stepFunc{
	KindDaily:   func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) },
	KindWeekly:  func(t time.Time, n int) time.Time { return t.AddDate(0, 0, 7*n) },
	KindMonthly: func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) },
	KindYearly:  func(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) },
}

var kindNames = [kindCount]string{
	KindDaily:   "daily",
	KindWeekly:  "weekly",
	KindMonthly: "monthly",
	KindYearly:  "yearly",
}

// ParseKind maps a rule type name to a Kind. Unknown or empty values fall back
// to KindDaily.
func ParseKind(value string) Kind {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for kind, name := range kindNames {
		if name == normalized {
			return Kind(kind)
		}
	}
	return KindDaily
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return kindNames[KindDaily]
	}
	return kindNames[k]
}

// Step advances t by interval units of the kind. Out-of-range kinds step daily
// and intervals below one are treated as one.
func (k Kind) Step(t time.Time, interval int) time.Time {
	if k < 0 || k >= kindCount {
		k = KindDaily
	}
	if interval < 1 {
		interval = 1
	}
	return kindSteps[k](t, interval)
}

// Rule describes how a templated work order repeats.
type Rule struct {
	Kind         Kind
	Interval     int
	EndDate      time.Time
	SkipWeekends bool
}

var (
	// ErrInvalidInterval indicates the rule interval is below one.
	ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")
	// ErrMissingEndDate indicates the rule has no end date.
	ErrMissingEndDate = errors.New("recurrence: end date is required")
	// ErrMissingStart indicates the template has no start time.
	ErrMissingStart = errors.New("recurrence: template start time is required")
)

// Validate reports whether the rule can be expanded.
func (r Rule) Validate() error {
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	if r.EndDate.IsZero() {
		return ErrMissingEndDate
	}
	return nil
}

// Next returns the cursor position one rule step after t.
func (r Rule) Next(t time.Time) time.Time {
	return r.Kind.Step(t, r.Interval)
}
