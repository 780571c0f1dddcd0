package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/mo"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/persistence"
)

var (
	userCounter      uint64
	workOrderCounter uint64
)

// Monday 2024-01-08 08:00 UTC.
var referenceTime = time.Date(2024, time.January, 8, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic account record.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures a UserFixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("Dispatcher %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserAdmin sets the admin flag.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(f *UserFixture) {
		f.IsAdmin = isAdmin
	}
}

// Application returns the fixture as an application.User.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		IsAdmin:     f.IsAdmin,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{User: f.Application(), PasswordHash: f.PasswordHash}
}

// Principal returns the caller identity derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, DisplayName: f.DisplayName, IsAdmin: f.IsAdmin}
}

// Persistence returns the fixture as a persistence.User.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		IsAdmin:      f.IsAdmin,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// --------------------------- Work order fixtures ---------------------------

// WorkOrderFixture is a deterministic work order. A nil PlannedEnd models an
// open-ended order.
type WorkOrderFixture struct {
	ID              string
	WorkOrderNumber string
	Title           string
	Category        string
	ShiftType       string
	Status          string
	BranchID        string
	TeamIDs         []string
	EmployeeIDs     []string
	PlannedStart    time.Time
	PlannedEnd      *time.Time
	CreatedBy       string
	CreatedAt       time.Time
}

// WorkOrderOption configures a WorkOrderFixture.
type WorkOrderOption func(*WorkOrderFixture)

// NewWorkOrderFixture returns a two-hour work order starting at
// ReferenceTime, assigned to team-a.
func NewWorkOrderFixture(opts ...WorkOrderOption) WorkOrderFixture {
	idx := atomic.AddUint64(&workOrderCounter, 1)
	end := referenceTime.Add(2 * time.Hour)
	fixture := WorkOrderFixture{
		ID:              fmt.Sprintf("wo-%03d", idx),
		WorkOrderNumber: fmt.Sprintf("N%d", idx),
		Title:           fmt.Sprintf("Inspection %03d", idx),
		Category:        "maintenance",
		ShiftType:       "day",
		Status:          "planned",
		BranchID:        "branch-1",
		TeamIDs:         []string{"team-a"},
		PlannedStart:    referenceTime,
		PlannedEnd:      &end,
		CreatedBy:       "user-001",
		CreatedAt:       referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithWorkOrderID overrides the generated ID.
func WithWorkOrderID(id string) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.ID = id
	}
}

// WithWorkOrderNumber overrides the generated work order number.
func WithWorkOrderNumber(number string) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.WorkOrderNumber = number
	}
}

// WithTeams replaces the assigned teams.
func WithTeams(teamIDs ...string) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.TeamIDs = append([]string(nil), teamIDs...)
	}
}

// WithEmployees replaces the assigned employees.
func WithEmployees(employeeIDs ...string) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.EmployeeIDs = append([]string(nil), employeeIDs...)
	}
}

// WithWindow sets the planned start and end.
func WithWindow(start, end time.Time) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.PlannedStart = start
		f.PlannedEnd = &end
	}
}

// WithoutPlannedEnd makes the work order open-ended.
func WithoutPlannedEnd() WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.PlannedEnd = nil
	}
}

// WithBranch overrides the branch.
func WithBranch(branchID string) WorkOrderOption {
	return func(f *WorkOrderFixture) {
		f.BranchID = branchID
	}
}

// Application returns the fixture as an application.WorkOrder.
func (f WorkOrderFixture) Application() application.WorkOrder {
	start := f.PlannedStart
	return application.WorkOrder{
		ID:              f.ID,
		WorkOrderNumber: f.WorkOrderNumber,
		Title:           f.Title,
		Category:        f.Category,
		ShiftType:       f.ShiftType,
		Status:          f.Status,
		BranchID:        f.BranchID,
		TeamIDs:         copyStrings(f.TeamIDs),
		EmployeeIDs:     copyStrings(f.EmployeeIDs),
		PlannedStart:    &start,
		PlannedEnd:      copyTimePtr(f.PlannedEnd),
		CreatedBy:       f.CreatedBy,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.WorkOrder.
func (f WorkOrderFixture) Persistence() persistence.WorkOrder {
	start := f.PlannedStart
	return persistence.WorkOrder{
		ID:              f.ID,
		WorkOrderNumber: f.WorkOrderNumber,
		Title:           f.Title,
		Category:        f.Category,
		ShiftType:       f.ShiftType,
		Status:          f.Status,
		BranchID:        f.BranchID,
		TeamIDs:         copyStrings(f.TeamIDs),
		EmployeeIDs:     copyStrings(f.EmployeeIDs),
		PlannedStart:    &start,
		PlannedEnd:      copyTimePtr(f.PlannedEnd),
		CreatedBy:       f.CreatedBy,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.CreatedAt,
	}
}

// Template returns the fixture as the base of a recurrence expansion.
func (f WorkOrderFixture) Template() application.WorkOrderTemplate {
	end := mo.None[time.Time]()
	if f.PlannedEnd != nil {
		end = mo.Some(*f.PlannedEnd)
	}
	return application.WorkOrderTemplate{
		SourceID:        f.ID,
		WorkOrderNumber: f.WorkOrderNumber,
		Title:           f.Title,
		Category:        f.Category,
		ShiftType:       f.ShiftType,
		Status:          f.Status,
		BranchID:        f.BranchID,
		TeamIDs:         copyStrings(f.TeamIDs),
		EmployeeIDs:     copyStrings(f.EmployeeIDs),
		PlannedStart:    f.PlannedStart,
		PlannedEnd:      end,
	}
}

func copyStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func copyTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
