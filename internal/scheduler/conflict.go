package scheduler

import (
	"sort"
	"time"

	"github.com/samber/mo"
)

// Record is the scheduling view of a work order taking part in overlap
// resolution.
type Record struct {
	ID              string
	WorkOrderNumber string
	TeamIDs         []string
	EmployeeIDs     []string
	Start           time.Time
	End             mo.Option[time.Time]
}

// Duration returns the planned length of the record. A missing or inverted
// end time counts as zero.
func (r Record) Duration() time.Duration {
	end, ok := r.End.Get()
	if !ok || !end.After(r.Start) {
		return 0
	}
	return end.Sub(r.Start)
}

// ResourceKind describes which assignment axis a conflict was detected on.
type ResourceKind string

const (
	// ResourceTeam groups records sharing a team.
	ResourceTeam ResourceKind = "team"
	// ResourceEmployee groups records sharing an individual employee.
	ResourceEmployee ResourceKind = "employee"
)

// GroupKey identifies one resource on one calendar day.
type GroupKey struct {
	Kind       ResourceKind
	ResourceID string
	Day        string
}

// ConflictGroup is the set of records sharing a resource on a calendar day.
type ConflictGroup struct {
	Key     GroupKey
	Members []Record
}

const dayLayout = "2006-01-02"

// GroupConflicts buckets records by every team and employee they reference
// and by the calendar day of their start in loc.
//
// A record joins one bucket per resource it occupies, so the team axis and the
// employee axis are resolved independently. Members are deduplicated by id,
// records without a start time are ignored and buckets with fewer than two
// members are dropped. Groups are returned ordered by kind, resource id and day.
func GroupConflicts(records []Record, loc *time.Location) []ConflictGroup {
	if loc == nil {
		loc = time.UTC
	}

	buckets := make(map[GroupKey][]Record)
	seen := make(map[GroupKey]map[string]struct{})

	add := func(key GroupKey, record Record) {
		if key.ResourceID == "" {
			return
		}
		ids, ok := seen[key]
		if !ok {
			ids = make(map[string]struct{})
			seen[key] = ids
		}
		if _, dup := ids[record.ID]; dup {
			return
		}
		ids[record.ID] = struct{}{}
		buckets[key] = append(buckets[key], record)
	}

	for _, record := range records {
		if record.Start.IsZero() {
			continue
		}
		day := record.Start.In(loc).Format(dayLayout)
		for _, teamID := range record.TeamIDs {
			add(GroupKey{Kind: ResourceTeam, ResourceID: teamID, Day: day}, record)
		}
		for _, employeeID := range record.EmployeeIDs {
			add(GroupKey{Kind: ResourceEmployee, ResourceID: employeeID, Day: day}, record)
		}
	}

	groups := make([]ConflictGroup, 0, len(buckets))
	for key, members := range buckets {
		if len(members) <= 1 {
			continue
		}
		groups = append(groups, ConflictGroup{Key: key, Members: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.Day < b.Day
	})

	return groups
}
