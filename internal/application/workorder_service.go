package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/example/workorder-scheduler/internal/batch"
	"github.com/example/workorder-scheduler/internal/persistence"
	"github.com/example/workorder-scheduler/internal/recurrence"
	"github.com/example/workorder-scheduler/internal/scheduler"
)

// WorkOrderStore captures the persistence interactions needed by the service.
// Every call is independent; the service never spans a transaction across
// records.
type WorkOrderStore interface {
	CreateWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, id string, patch WorkOrderPatch) (WorkOrder, error)
	GetWorkOrder(ctx context.Context, id string) (WorkOrder, error)
	ListWorkOrders(ctx context.Context, params ListWorkOrdersParams) ([]WorkOrder, error)
}

// WorkOrderServiceConfig tunes the work-order service.
type WorkOrderServiceConfig struct {
	// Location is the zone used for weekdays and calendar days.
	Location *time.Location
	// Batch governs the persistence loops. Occurrence creation always runs
	// sequentially regardless of Batch.Concurrency.
	Batch batch.Policy
}

// WorkOrderService drives recurrence expansion and overlap resolution.
type WorkOrderService struct {
	store    WorkOrderStore
	expander *recurrence.Expander
	numberer workOrderNumberer
	location *time.Location
	policy   batch.Policy
	now      func() time.Time
	logger   *slog.Logger
}

// NewWorkOrderService wires dependencies for the work-order service.
func NewWorkOrderService(store WorkOrderStore, cfg WorkOrderServiceConfig, now func() time.Time, logger *slog.Logger) *WorkOrderService {
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &WorkOrderService{
		store:    store,
		expander: recurrence.NewExpander(loc),
		numberer: workOrderNumberer{store: store, now: now},
		location: loc,
		policy:   cfg.Batch,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

func (s *WorkOrderService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "WorkOrderService", operation, attrs...)
}

// ExpandRecurrence turns a template work order into persisted occurrences.
//
// Occurrences are created one at a time in chronological order. A failed
// create is reported in the result and does not stop the remaining ones.
func (s *WorkOrderService) ExpandRecurrence(ctx context.Context, params ExpandRecurrenceParams) (result ExpandRecurrenceResult, err error) {
	if s == nil {
		err = fmt.Errorf("WorkOrderService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("work order store not configured")
		return
	}

	logger := s.loggerWith(ctx, "ExpandRecurrence",
		"source_id", params.Template.SourceID,
		"recurrence_type", params.RecurrenceType,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recurrence expansion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "recurrence expanded",
			"total_occurrences", result.TotalOccurrences,
			"total_created", result.TotalCreated,
			"total_failed", len(result.Failed),
		)
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	var rule recurrence.Rule
	rule, err = buildRule(params)
	if err != nil {
		return
	}

	var occurrences []recurrence.Occurrence
	occurrences, err = s.expander.Expand(rule, params.Template.PlannedStart, params.Template.PlannedEnd)
	if err != nil {
		err = mapRecurrenceError(err)
		return
	}

	branchID := params.Template.BranchID
	if trimmed := strings.TrimSpace(params.BranchID); trimmed != "" {
		branchID = trimmed
	}

	tasks := make([]batch.Task[CreatedOccurrence], 0, len(occurrences))
	for _, occurrence := range occurrences {
		tasks = append(tasks, func(ctx context.Context) (CreatedOccurrence, error) {
			order := s.occurrenceWorkOrder(ctx, params, rule, branchID, occurrence, logger)
			created, err := s.store.CreateWorkOrder(ctx, order)
			if err != nil {
				return CreatedOccurrence{}, err
			}
			return CreatedOccurrence{
				ID:              created.ID,
				WorkOrderNumber: created.WorkOrderNumber,
				Date:            occurrence.Start,
				MovedFromSunday: occurrence.MovedFromSunday,
			}, nil
		})
	}

	report := batch.Run(ctx, s.policy.Sequential(), tasks)

	result = ExpandRecurrenceResult{
		TotalCreated:     len(report.Succeeded),
		TotalOccurrences: len(occurrences),
		WorkOrders:       report.Values(),
	}
	for _, failure := range report.Failed {
		date := occurrences[failure.Index].Start
		logger.WarnContext(ctx, "occurrence creation failed",
			"date", date,
			"attempts", failure.Attempts,
			"error", failure.Err,
			"error_kind", ErrorKind(failure.Err),
		)
		result.Failed = append(result.Failed, FailedItem{Date: &date, Error: failure.Err.Error()})
	}
	return
}

func buildRule(params ExpandRecurrenceParams) (recurrence.Rule, error) {
	vErr := &ValidationError{}
	if params.Template.PlannedStart.IsZero() {
		vErr.add("baseWorkOrder.planned_start_time", "is required")
	}
	if strings.TrimSpace(params.RecurrenceType) == "" {
		vErr.add("recurrence_type", "is required")
	}
	if params.RecurrenceEndDate.IsZero() {
		vErr.add("recurrence_end_date", "is required")
	}
	if params.RecurrenceInterval < 0 {
		vErr.add("recurrence_interval", "must be at least 1")
	}
	if vErr.HasErrors() {
		return recurrence.Rule{}, vErr
	}

	interval := params.RecurrenceInterval
	if interval == 0 {
		interval = 1
	}
	return recurrence.Rule{
		Kind:         recurrence.ParseKind(params.RecurrenceType),
		Interval:     interval,
		EndDate:      params.RecurrenceEndDate,
		SkipWeekends: params.SkipWeekends,
	}, nil
}

func (s *WorkOrderService) occurrenceWorkOrder(ctx context.Context, params ExpandRecurrenceParams, rule recurrence.Rule, branchID string, occurrence recurrence.Occurrence, logger *slog.Logger) WorkOrder {
	template := params.Template
	now := s.now()
	start := occurrence.Start
	end := occurrence.End
	endDate := rule.EndDate

	order := WorkOrder{
		WorkOrderNumber:    s.numberer.Next(ctx, logger),
		Title:              template.Title,
		Notes:              template.Notes,
		Category:           template.Category,
		ShiftType:          template.ShiftType,
		Status:             template.Status,
		BranchID:           branchID,
		TeamIDs:            cloneStrings(template.TeamIDs),
		EmployeeIDs:        cloneStrings(template.EmployeeIDs),
		PlannedStart:       &start,
		IsRecurring:        true,
		RecurrenceParentID: template.SourceID,
		RecurrenceType:     rule.Kind.String(),
		RecurrenceInterval: rule.Interval,
		RecurrenceEndDate:  &endDate,
		SkipWeekends:       rule.SkipWeekends,
		MovedFromSunday:    occurrence.MovedFromSunday,
		CreatedBy:          params.Principal.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if template.PlannedEnd.IsPresent() {
		order.PlannedEnd = &end
	}
	order.ActivityLog = []ActivityEntry{{
		Timestamp: now,
		Action:    ActionCreated,
		Actor:     params.Principal.actorName(),
		Details:   creationDetails(template, rule, occurrence, s.location),
	}}
	return order
}

func creationDetails(template WorkOrderTemplate, rule recurrence.Rule, occurrence recurrence.Occurrence, loc *time.Location) string {
	source := template.WorkOrderNumber
	if source == "" {
		source = template.SourceID
	}
	details := fmt.Sprintf("Created from recurring work order %s (%s every %d, until %s) for %s",
		source,
		rule.Kind,
		rule.Interval,
		rule.EndDate.In(loc).Format(dateLayout),
		occurrence.Start.In(loc).Format(dateLayout),
	)
	if occurrence.MovedFromSunday {
		details += "; moved from Sunday to Saturday"
	}
	return details
}

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ResolveOverlaps packs every group of work orders sharing a resource on the
// same day into a back-to-back timeline and persists the new windows.
//
// The caller-supplied records are treated as an authoritative snapshot: the
// store is not re-read before writing, so the last writer wins. A record that
// belongs to several groups receives one update and one activity entry per
// group, applied in group order. Failed updates are reported and skipped.
func (s *WorkOrderService) ResolveOverlaps(ctx context.Context, params ResolveOverlapsParams) (result ResolveOverlapsResult, err error) {
	if s == nil {
		err = fmt.Errorf("WorkOrderService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("work order store not configured")
		return
	}

	logger := s.loggerWith(ctx, "ResolveOverlaps", "candidates", len(params.WorkOrders))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "overlap resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "overlaps resolved",
			"updated_count", result.UpdatedCount,
			"total_failed", len(result.Failed),
		)
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if len(params.WorkOrders) == 0 {
		err = NewValidationError("overlapping_work_orders", "must contain at least one work order")
		return
	}

	snapshot := make(map[string]WorkOrder, len(params.WorkOrders))
	records := make([]scheduler.Record, 0, len(params.WorkOrders))
	vErr := &ValidationError{}
	for i, order := range params.WorkOrders {
		if strings.TrimSpace(order.ID) == "" {
			vErr.add(fmt.Sprintf("overlapping_work_orders[%d].id", i), "is required")
			continue
		}
		if _, dup := snapshot[order.ID]; dup {
			continue
		}
		snapshot[order.ID] = order
		records = append(records, toSchedulerRecord(order))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	groups := scheduler.GroupConflicts(records, s.location)
	teamNames := make(map[string]string, len(params.Teams))
	for _, team := range params.Teams {
		if team.Name != "" {
			teamNames[team.ID] = team.Name
		}
	}

	adjustments := make([]adjustment, 0)
	for _, group := range groups {
		updates := scheduler.Pack(group.Members)
		for _, update := range updates {
			adjustments = append(adjustments, adjustment{
				group:  group,
				update: update,
				total:  len(updates),
			})
		}
	}

	logs := newActivityLogs(snapshot)
	for _, wave := range wavesByRecord(adjustments) {
		tasks := make([]batch.Task[AdjustedWorkOrder], 0, len(wave))
		for _, adj := range wave {
			tasks = append(tasks, s.adjustmentTask(params.Principal, adj, logs, teamNames))
		}

		report := batch.Run(ctx, s.policy, tasks)
		result.Updated = append(result.Updated, report.Values()...)
		for _, failure := range report.Failed {
			adj := wave[failure.Index]
			logger.WarnContext(ctx, "work order update failed",
				"work_order_id", adj.update.ID,
				"attempts", failure.Attempts,
				"error", failure.Err,
				"error_kind", ErrorKind(failure.Err),
			)
			result.Failed = append(result.Failed, FailedItem{ID: adj.update.ID, Error: failure.Err.Error()})
		}
	}

	result.UpdatedCount = len(result.Updated)
	result.Summary = resolutionSummary(len(groups), result.UpdatedCount, len(adjustments))
	return
}

type adjustment struct {
	group  scheduler.ConflictGroup
	update scheduler.Update
	total  int
}

// wavesByRecord splits adjustments so that every record appears at most once
// per wave while keeping each record's adjustments in their original order.
func wavesByRecord(adjustments []adjustment) [][]adjustment {
	waves := make([][]adjustment, 0)
	seen := make(map[string]int)
	for _, adj := range adjustments {
		idx := seen[adj.update.ID]
		seen[adj.update.ID] = idx + 1
		if idx == len(waves) {
			waves = append(waves, nil)
		}
		waves[idx] = append(waves[idx], adj)
	}
	return waves
}

// activityLogs tracks the log each record will carry after its successful
// updates within one resolution call.
type activityLogs struct {
	mu   sync.Mutex
	logs map[string][]ActivityEntry
}

func newActivityLogs(snapshot map[string]WorkOrder) *activityLogs {
	logs := make(map[string][]ActivityEntry, len(snapshot))
	for id, order := range snapshot {
		logs[id] = cloneActivity(order.ActivityLog)
	}
	return &activityLogs{logs: logs}
}

func (a *activityLogs) with(id string, entry ActivityEntry) []ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	current := a.logs[id]
	next := make([]ActivityEntry, 0, len(current)+1)
	next = append(next, current...)
	return append(next, entry)
}

func (a *activityLogs) commit(id string, log []ActivityEntry) {
	a.mu.Lock()
	a.logs[id] = log
	a.mu.Unlock()
}

func (s *WorkOrderService) adjustmentTask(principal Principal, adj adjustment, logs *activityLogs, teamNames map[string]string) batch.Task[AdjustedWorkOrder] {
	return func(ctx context.Context) (AdjustedWorkOrder, error) {
		now := s.now()
		entry := ActivityEntry{
			Timestamp: now,
			Action:    ActionScheduleAdjusted,
			Actor:     principal.actorName(),
			Details:   adjustmentDetails(adj, teamNames, s.location),
		}
		log := logs.with(adj.update.ID, entry)

		newStart := adj.update.NewStart
		newEnd := adj.update.NewEnd
		if _, err := s.store.UpdateWorkOrder(ctx, adj.update.ID, WorkOrderPatch{
			PlannedStart: &newStart,
			PlannedEnd:   &newEnd,
			ActivityLog:  log,
			UpdatedAt:    now,
		}); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return AdjustedWorkOrder{}, batch.Permanent(fmt.Errorf("work order %s: %w", adj.update.ID, ErrNotFound))
			}
			return AdjustedWorkOrder{}, err
		}
		logs.commit(adj.update.ID, log)

		return AdjustedWorkOrder{
			ID:              adj.update.ID,
			WorkOrderNumber: adj.update.WorkOrderNumber,
			NewStart:        newStart,
			NewEnd:          newEnd,
		}, nil
	}
}

func adjustmentDetails(adj adjustment, teamNames map[string]string, loc *time.Location) string {
	resource := string(adj.group.Key.Kind) + " " + adj.group.Key.ResourceID
	if adj.group.Key.Kind == scheduler.ResourceTeam {
		if name, ok := teamNames[adj.group.Key.ResourceID]; ok {
			resource = "team " + name
		}
	}

	previous := adj.update.PreviousStart.In(loc).Format(clockLayout) + "-"
	if end, ok := adj.update.PreviousEnd.Get(); ok {
		previous += end.In(loc).Format(clockLayout)
	} else {
		previous += "?"
	}

	return fmt.Sprintf("Schedule adjusted to resolve overlap for %s on %s: %s moved to %s-%s (position %d of %d by work order number)",
		resource,
		adj.group.Key.Day,
		previous,
		adj.update.NewStart.In(loc).Format(clockLayout),
		adj.update.NewEnd.In(loc).Format(clockLayout),
		adj.update.Position,
		adj.total,
	)
}

func resolutionSummary(groups, updated, planned int) string {
	if groups == 0 {
		return "No overlapping work orders found"
	}
	return fmt.Sprintf("Resolved %d overlap group(s): updated %d of %d work order schedule(s)", groups, updated, planned)
}

func toSchedulerRecord(order WorkOrder) scheduler.Record {
	record := scheduler.Record{
		ID:              order.ID,
		WorkOrderNumber: order.WorkOrderNumber,
		TeamIDs:         order.TeamIDs,
		EmployeeIDs:     order.EmployeeIDs,
		End:             mo.None[time.Time](),
	}
	if order.PlannedStart != nil {
		record.Start = *order.PlannedStart
	}
	if order.PlannedEnd != nil {
		record.End = mo.Some(*order.PlannedEnd)
	}
	return record
}

// GetWorkOrder returns a single work order.
func (s *WorkOrderService) GetWorkOrder(ctx context.Context, principal Principal, id string) (WorkOrder, error) {
	if s == nil || s.store == nil {
		return WorkOrder{}, fmt.Errorf("work order store not configured")
	}
	if principal.UserID == "" {
		return WorkOrder{}, ErrUnauthorized
	}
	if strings.TrimSpace(id) == "" {
		return WorkOrder{}, NewValidationError("id", "is required")
	}
	order, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return WorkOrder{}, mapWorkOrderRepoError(err)
	}
	return order, nil
}

// ListWorkOrders returns work orders in the requested order.
func (s *WorkOrderService) ListWorkOrders(ctx context.Context, principal Principal, params ListWorkOrdersParams) ([]WorkOrder, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("work order store not configured")
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}
	if params.Limit < 0 {
		return nil, NewValidationError("limit", "must not be negative")
	}
	orders, err := s.store.ListWorkOrders(ctx, params)
	if err != nil {
		return nil, mapWorkOrderRepoError(err)
	}
	return orders, nil
}

func mapRecurrenceError(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrMissingStart):
		return NewValidationError("baseWorkOrder.planned_start_time", "is required")
	case errors.Is(err, recurrence.ErrMissingEndDate):
		return NewValidationError("recurrence_end_date", "is required")
	case errors.Is(err, recurrence.ErrInvalidInterval):
		return NewValidationError("recurrence_interval", "must be at least 1")
	}
	return err
}

func mapWorkOrderRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isNotFoundError(err):
		return ErrNotFound
	case errors.Is(err, persistence.ErrInvalidSort):
		return NewValidationError("sort", "must be created_at or planned_start_time, optionally prefixed with - or +")
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func cloneActivity(entries []ActivityEntry) []ActivityEntry {
	if entries == nil {
		return nil
	}
	return append([]ActivityEntry(nil), entries...)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
