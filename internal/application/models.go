package application

import (
	"time"

	"github.com/samber/mo"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID      string
	DisplayName string
	IsAdmin     bool
}

// actorName returns the label recorded in activity logs for the principal.
func (p Principal) actorName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.UserID != "" {
		return p.UserID
	}
	return "system"
}

// ActivityEntry is one append-only line in a work order's activity log.
type ActivityEntry struct {
	Timestamp time.Time
	Action    string
	Actor     string
	Details   string
}

// Activity log actions written by the work-order service.
const (
	ActionCreated          = "created"
	ActionScheduleAdjusted = "schedule_adjusted"
)

// WorkOrder is the service view of a persisted work order.
type WorkOrder struct {
	ID                 string
	WorkOrderNumber    string
	Title              string
	Notes              string
	Category           string
	ShiftType          string
	Status             string
	BranchID           string
	TeamIDs            []string
	EmployeeIDs        []string
	PlannedStart       *time.Time
	PlannedEnd         *time.Time
	IsRecurring        bool
	RecurrenceParentID string
	RecurrenceType     string
	RecurrenceInterval int
	RecurrenceEndDate  *time.Time
	SkipWeekends       bool
	MovedFromSunday    bool
	ActivityLog        []ActivityEntry
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WorkOrderPatch lists the fields the resolution driver rewrites. Nil fields
// are left untouched.
type WorkOrderPatch struct {
	PlannedStart *time.Time
	PlannedEnd   *time.Time
	ActivityLog  []ActivityEntry
	UpdatedAt    time.Time
}

// WorkOrderTemplate carries the business fields copied onto every occurrence.
// Recurrence and system fields never come from the template.
type WorkOrderTemplate struct {
	SourceID        string
	WorkOrderNumber string
	Title           string
	Notes           string
	Category        string
	ShiftType       string
	Status          string
	BranchID        string
	TeamIDs         []string
	EmployeeIDs     []string
	PlannedStart    time.Time
	PlannedEnd      mo.Option[time.Time]
}

// ExpandRecurrenceParams wraps the data required to materialize a recurrence.
type ExpandRecurrenceParams struct {
	Principal          Principal
	Template           WorkOrderTemplate
	RecurrenceType     string
	RecurrenceInterval int
	RecurrenceEndDate  time.Time
	SkipWeekends       bool
	// BranchID overrides the template's branch when set.
	BranchID string
}

// CreatedOccurrence describes one persisted occurrence.
type CreatedOccurrence struct {
	ID              string
	WorkOrderNumber string
	Date            time.Time
	MovedFromSunday bool
}

// FailedItem reports a batch item that could not be persisted.
type FailedItem struct {
	ID    string
	Date  *time.Time
	Error string
}

// ExpandRecurrenceResult summarises an expansion call. TotalOccurrences counts
// generated occurrences; TotalCreated counts the ones persisted.
type ExpandRecurrenceResult struct {
	TotalCreated     int
	TotalOccurrences int
	WorkOrders       []CreatedOccurrence
	Failed           []FailedItem
}

// Team names a team id for activity log messages.
type Team struct {
	ID   string
	Name string
}

// ResolveOverlapsParams wraps the caller-supplied snapshot of overlapping
// work orders. The snapshot is authoritative: records are never re-read.
type ResolveOverlapsParams struct {
	Principal  Principal
	WorkOrders []WorkOrder
	Teams      []Team
}

// AdjustedWorkOrder is a record whose schedule was rewritten.
type AdjustedWorkOrder struct {
	ID              string
	WorkOrderNumber string
	NewStart        time.Time
	NewEnd          time.Time
}

// ResolveOverlapsResult lists only the successful updates in Updated.
type ResolveOverlapsResult struct {
	UpdatedCount int
	Summary      string
	Updated      []AdjustedWorkOrder
	Failed       []FailedItem
}

// ListWorkOrdersParams narrows work order listings.
type ListWorkOrdersParams struct {
	Sort  string
	Limit int
}

// User represents an account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateUserParams wraps the data required to register a user.
type CreateUserParams struct {
	Email       string
	DisplayName string
	Password    string
	IsAdmin     bool
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
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

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}
