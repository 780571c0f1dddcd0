package scheduler

import (
	"sort"
	"time"

	"github.com/samber/mo"
)

// Update is the new window computed for one member of a conflict group.
type Update struct {
	ID              string
	WorkOrderNumber string
	PreviousStart   time.Time
	PreviousEnd     mo.Option[time.Time]
	NewStart        time.Time
	NewEnd          time.Time
	// Position is the 1-based slot of the member in the packed timeline.
	Position int
}

// Changed reports whether the packed window differs from the original one.
func (u Update) Changed() bool {
	end, ok := u.PreviousEnd.Get()
	if !ok {
		return true
	}
	return !u.PreviousStart.Equal(u.NewStart) || !end.Equal(u.NewEnd)
}

// Pack lays members out back to back starting at their earliest start.
//
// Members are deduplicated by id and ordered by the sequence key of their work
// order number (ties keep input order). Each member keeps its own duration, so
// the packed timeline spans from the earliest start to the earliest start plus
// the sum of durations. Packing an already packed group is a no-op.
func Pack(members []Record) []Update {
	unique := make([]Record, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if _, dup := seen[member.ID]; dup {
			continue
		}
		seen[member.ID] = struct{}{}
		unique = append(unique, member)
	}
	if len(unique) == 0 {
		return nil
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return ParseSequenceKey(unique[i].WorkOrderNumber) < ParseSequenceKey(unique[j].WorkOrderNumber)
	})

	earliest := unique[0].Start
	for _, member := range unique[1:] {
		if member.Start.Before(earliest) {
			earliest = member.Start
		}
	}

	updates := make([]Update, 0, len(unique))
	cursor := earliest
	for i, member := range unique {
		end := cursor.Add(member.Duration())
		updates = append(updates, Update{
			ID:              member.ID,
			WorkOrderNumber: member.WorkOrderNumber,
			PreviousStart:   member.Start,
			PreviousEnd:     member.End,
			NewStart:        cursor,
			NewEnd:          end,
			Position:        i + 1,
		})
		cursor = end
	}

	return updates
}
