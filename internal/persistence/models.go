package persistence

import "time"

// User represents an operator account allowed to drive the scheduler.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// ActivityEntry is one append-only audit line on a work order.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
}

// WorkOrder is a unit of field work as stored.
type WorkOrder struct {
	ID              string
	WorkOrderNumber string
	Title           string
	Notes           string
	Category        string
	ShiftType       string
	Status          string
	BranchID        string
	TeamIDs         []string
	EmployeeIDs     []string
	PlannedStart    *time.Time
	PlannedEnd      *time.Time

	IsRecurring        bool
	RecurrenceParentID string
	RecurrenceType     string
	RecurrenceInterval int
	RecurrenceEndDate  *time.Time
	SkipWeekends       bool
	MovedFromSunday    bool

	ActivityLog []ActivityEntry
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkOrderPatch carries the fields an update may change. Nil fields are left
// untouched; a non-nil ActivityLog replaces the stored log.
type WorkOrderPatch struct {
	PlannedStart *time.Time
	PlannedEnd   *time.Time
	Status       *string
	ActivityLog  []ActivityEntry
	UpdatedAt    time.Time
}

// Apply returns a copy of order with the patch applied.
func (p WorkOrderPatch) Apply(order WorkOrder) WorkOrder {
	updated := CloneWorkOrder(order)
	if p.PlannedStart != nil {
		updated.PlannedStart = timePtr(*p.PlannedStart)
	}
	if p.PlannedEnd != nil {
		updated.PlannedEnd = timePtr(*p.PlannedEnd)
	}
	if p.Status != nil {
		updated.Status = *p.Status
	}
	if p.ActivityLog != nil {
		updated.ActivityLog = append([]ActivityEntry(nil), p.ActivityLog...)
	}
	if !p.UpdatedAt.IsZero() {
		updated.UpdatedAt = p.UpdatedAt
	}
	return updated
}

// CloneWorkOrder deep-copies the slices and pointers of a work order.
func CloneWorkOrder(order WorkOrder) WorkOrder {
	clone := order
	clone.TeamIDs = append([]string(nil), order.TeamIDs...)
	clone.EmployeeIDs = append([]string(nil), order.EmployeeIDs...)
	clone.ActivityLog = append([]ActivityEntry(nil), order.ActivityLog...)
	if order.PlannedStart != nil {
		clone.PlannedStart = timePtr(*order.PlannedStart)
	}
	if order.PlannedEnd != nil {
		clone.PlannedEnd = timePtr(*order.PlannedEnd)
	}
	if order.RecurrenceEndDate != nil {
		clone.RecurrenceEndDate = timePtr(*order.RecurrenceEndDate)
	}
	return clone
}

func timePtr(t time.Time) *time.Time {
	return &t
}
