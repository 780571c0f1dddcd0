package main

import (
	"context"
	"time"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/persistence"
)

type workOrderStoreAdapter struct {
	repo persistence.WorkOrderRepository
}

func newWorkOrderStoreAdapter(repo persistence.WorkOrderRepository) *workOrderStoreAdapter {
	return &workOrderStoreAdapter{repo: repo}
}

func (a *workOrderStoreAdapter) CreateWorkOrder(ctx context.Context, order application.WorkOrder) (application.WorkOrder, error) {
	stored, err := a.repo.CreateWorkOrder(ctx, toPersistenceWorkOrder(order))
	if err != nil {
		return application.WorkOrder{}, err
	}
	return toApplicationWorkOrder(stored), nil
}

func (a *workOrderStoreAdapter) UpdateWorkOrder(ctx context.Context, id string, patch application.WorkOrderPatch) (application.WorkOrder, error) {
	stored, err := a.repo.UpdateWorkOrder(ctx, id, persistence.WorkOrderPatch{
		PlannedStart: cloneTime(patch.PlannedStart),
		PlannedEnd:   cloneTime(patch.PlannedEnd),
		ActivityLog:  toPersistenceActivity(patch.ActivityLog),
		UpdatedAt:    patch.UpdatedAt,
	})
	if err != nil {
		return application.WorkOrder{}, err
	}
	return toApplicationWorkOrder(stored), nil
}

func (a *workOrderStoreAdapter) GetWorkOrder(ctx context.Context, id string) (application.WorkOrder, error) {
	stored, err := a.repo.GetWorkOrder(ctx, id)
	if err != nil {
		return application.WorkOrder{}, err
	}
	return toApplicationWorkOrder(stored), nil
}

func (a *workOrderStoreAdapter) ListWorkOrders(ctx context.Context, params application.ListWorkOrdersParams) ([]application.WorkOrder, error) {
	models, err := a.repo.ListWorkOrders(ctx, persistence.ListOptions{Sort: params.Sort, Limit: params.Limit})
	if err != nil {
		return nil, err
	}
	orders := make([]application.WorkOrder, 0, len(models))
	for _, model := range models {
		orders = append(orders, toApplicationWorkOrder(model))
	}
	return orders, nil
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, credentials application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(credentials.User, credentials.PasswordHash)); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, credentials.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type credentialStoreAdapter struct {
	repo persistence.UserRepository
}

func newCredentialStoreAdapter(repo persistence.UserRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

func (a *credentialStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return a.repo.DeleteExpiredSessions(ctx, reference)
}

func toApplicationWorkOrder(model persistence.WorkOrder) application.WorkOrder {
	return application.WorkOrder{
		ID:                 model.ID,
		WorkOrderNumber:    model.WorkOrderNumber,
		Title:              model.Title,
		Notes:              model.Notes,
		Category:           model.Category,
		ShiftType:          model.ShiftType,
		Status:             model.Status,
		BranchID:           model.BranchID,
		TeamIDs:            cloneStrings(model.TeamIDs),
		EmployeeIDs:        cloneStrings(model.EmployeeIDs),
		PlannedStart:       cloneTime(model.PlannedStart),
		PlannedEnd:         cloneTime(model.PlannedEnd),
		IsRecurring:        model.IsRecurring,
		RecurrenceParentID: model.RecurrenceParentID,
		RecurrenceType:     model.RecurrenceType,
		RecurrenceInterval: model.RecurrenceInterval,
		RecurrenceEndDate:  cloneTime(model.RecurrenceEndDate),
		SkipWeekends:       model.SkipWeekends,
		MovedFromSunday:    model.MovedFromSunday,
		ActivityLog:        toApplicationActivity(model.ActivityLog),
		CreatedBy:          model.CreatedBy,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func toPersistenceWorkOrder(order application.WorkOrder) persistence.WorkOrder {
	return persistence.WorkOrder{
		ID:                 order.ID,
		WorkOrderNumber:    order.WorkOrderNumber,
		Title:              order.Title,
		Notes:              order.Notes,
		Category:           order.Category,
		ShiftType:          order.ShiftType,
		Status:             order.Status,
		BranchID:           order.BranchID,
		TeamIDs:            cloneStrings(order.TeamIDs),
		EmployeeIDs:        cloneStrings(order.EmployeeIDs),
		PlannedStart:       cloneTime(order.PlannedStart),
		PlannedEnd:         cloneTime(order.PlannedEnd),
		IsRecurring:        order.IsRecurring,
		RecurrenceParentID: order.RecurrenceParentID,
		RecurrenceType:     order.RecurrenceType,
		RecurrenceInterval: order.RecurrenceInterval,
		RecurrenceEndDate:  cloneTime(order.RecurrenceEndDate),
		SkipWeekends:       order.SkipWeekends,
		MovedFromSunday:    order.MovedFromSunday,
		ActivityLog:        toPersistenceActivity(order.ActivityLog),
		CreatedBy:          order.CreatedBy,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func toApplicationActivity(entries []persistence.ActivityEntry) []application.ActivityEntry {
	if entries == nil {
		return nil
	}
	out := make([]application.ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, application.ActivityEntry(entry))
	}
	return out
}

func toPersistenceActivity(entries []application.ActivityEntry) []persistence.ActivityEntry {
	if entries == nil {
		return nil
	}
	out := make([]persistence.ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, persistence.ActivityEntry(entry))
	}
	return out
}

func toApplicationUser(user persistence.User) application.User {
	return application.User{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsAdmin:     user.IsAdmin,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toPersistenceUser(user application.User, passwordHash string) persistence.User {
	return persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		PasswordHash: passwordHash,
		IsAdmin:      user.IsAdmin,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		Token:       model.Token,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
