package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/mo"

	"github.com/example/workorder-scheduler/internal/application"
)

const dateLayout = "2006-01-02"

type workOrderService interface {
	ExpandRecurrence(ctx context.Context, params application.ExpandRecurrenceParams) (application.ExpandRecurrenceResult, error)
	ResolveOverlaps(ctx context.Context, params application.ResolveOverlapsParams) (application.ResolveOverlapsResult, error)
	GetWorkOrder(ctx context.Context, principal application.Principal, id string) (application.WorkOrder, error)
	ListWorkOrders(ctx context.Context, principal application.Principal, params application.ListWorkOrdersParams) ([]application.WorkOrder, error)
}

// WorkOrderHandler serves the recurrence and overlap endpoints plus the
// work order reads.
type WorkOrderHandler struct {
	service   workOrderService
	location  *time.Location
	validate  *validator.Validate
	responder responder
	logger    *slog.Logger
}

// NewWorkOrderHandler builds a handler. Date-only request values are read in
// loc, which should match the service's location.
func NewWorkOrderHandler(service workOrderService, loc *time.Location, logger *slog.Logger) *WorkOrderHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &WorkOrderHandler{
		service:   service,
		location:  loc,
		validate:  newValidator(),
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *WorkOrderHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "WorkOrderHandler", operation, attrs...)
}

// ExpandRecurrence handles POST /work-orders/recurrences.
func (h *WorkOrderHandler) ExpandRecurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	var req expandRecurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "ExpandRecurrence", "error_kind", "bad_request").WarnContext(ctx, "failed to decode recurrence request", "error", err)
		h.responder.writeProblem(ctx, w, r, http.StatusBadRequest, "bad_request", errBadRequestBody)
		return
	}
	if err := validateRequest(h.validate, req); err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	endDate, err := parseFlexibleDate(req.RecurrenceEndDate, h.location)
	if err != nil {
		h.responder.handleServiceError(ctx, w, r, application.NewValidationError("recurrence_end_date", "must be a YYYY-MM-DD date or an RFC 3339 timestamp"))
		return
	}

	principal, _ := PrincipalFromContext(ctx)
	result, err := h.service.ExpandRecurrence(ctx, application.ExpandRecurrenceParams{
		Principal:          principal,
		Template:           req.BaseWorkOrder.toTemplate(),
		RecurrenceType:     req.RecurrenceType,
		RecurrenceInterval: req.RecurrenceInterval,
		RecurrenceEndDate:  endDate,
		SkipWeekends:       req.SkipWeekends,
		BranchID:           req.BranchID,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusCreated, toExpandRecurrenceResponse(result, h.location))
}

// ResolveOverlaps handles POST /work-orders/overlaps/resolve.
func (h *WorkOrderHandler) ResolveOverlaps(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	var req resolveOverlapsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "ResolveOverlaps", "error_kind", "bad_request").WarnContext(ctx, "failed to decode overlap request", "error", err)
		h.responder.writeProblem(ctx, w, r, http.StatusBadRequest, "bad_request", errBadRequestBody)
		return
	}
	if err := validateRequest(h.validate, req); err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	principal, _ := PrincipalFromContext(ctx)
	orders := make([]application.WorkOrder, 0, len(req.OverlappingWorkOrders))
	for _, dto := range req.OverlappingWorkOrders {
		orders = append(orders, dto.toWorkOrder())
	}
	teams := make([]application.Team, 0, len(req.Teams))
	for _, team := range req.Teams {
		teams = append(teams, application.Team{ID: team.ID, Name: team.Name})
	}

	result, err := h.service.ResolveOverlaps(ctx, application.ResolveOverlapsParams{
		Principal:  principal,
		WorkOrders: orders,
		Teams:      teams,
	})
	if err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, toResolveOverlapsResponse(result, h.location))
}

// List handles GET /work-orders.
func (h *WorkOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	query := r.URL.Query()
	params := application.ListWorkOrdersParams{Sort: strings.TrimSpace(query.Get("sort"))}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.responder.handleServiceError(ctx, w, r, application.NewValidationError("limit", "must be an integer"))
			return
		}
		params.Limit = limit
	}

	principal, _ := PrincipalFromContext(ctx)
	orders, err := h.service.ListWorkOrders(ctx, principal, params)
	if err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	payload := listWorkOrdersResponse{WorkOrders: make([]workOrderDTO, 0, len(orders))}
	for _, order := range orders {
		payload.WorkOrders = append(payload.WorkOrders, toWorkOrderDTO(order))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, payload)
}

// Get handles GET /work-orders/{id}.
func (h *WorkOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	id, ok := WorkOrderIDFromContext(ctx)
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeProblem(ctx, w, r, http.StatusBadRequest, "bad_request", errMissingWorkOrderID)
		return
	}

	principal, _ := PrincipalFromContext(ctx)
	order, err := h.service.GetWorkOrder(ctx, principal, id)
	if err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, toWorkOrderDTO(order))
}

// parseFlexibleDate accepts a calendar date, read as midnight in loc, or a
// full RFC 3339 timestamp.
func parseFlexibleDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

type expandRecurrenceRequest struct {
	BaseWorkOrder      *templateDTO `json:"baseWorkOrder" validate:"required"`
	RecurrenceType     string       `json:"recurrence_type" validate:"required"`
	RecurrenceInterval int          `json:"recurrence_interval" validate:"gte=0"`
	RecurrenceEndDate  string       `json:"recurrence_end_date" validate:"required"`
	SkipWeekends       bool         `json:"skip_weekends"`
	BranchID           string       `json:"branch_id"`
}

// templateDTO is the work order being repeated. Recurrence and system fields
// present in the payload are ignored.
type templateDTO struct {
	ID               string     `json:"id"`
	WorkOrderNumber  string     `json:"work_order_number"`
	Title            string     `json:"title"`
	Notes            string     `json:"notes"`
	Category         string     `json:"category"`
	ShiftType        string     `json:"shift_type"`
	Status           string     `json:"status"`
	BranchID         string     `json:"branch_id"`
	TeamIDs          []string   `json:"team_ids"`
	EmployeeIDs      []string   `json:"employee_ids"`
	PlannedStartTime *time.Time `json:"planned_start_time" validate:"required"`
	PlannedEndTime   *time.Time `json:"planned_end_time"`
}

func (t templateDTO) toTemplate() application.WorkOrderTemplate {
	template := application.WorkOrderTemplate{
		SourceID:        t.ID,
		WorkOrderNumber: t.WorkOrderNumber,
		Title:           t.Title,
		Notes:           t.Notes,
		Category:        t.Category,
		ShiftType:       t.ShiftType,
		Status:          t.Status,
		BranchID:        t.BranchID,
		TeamIDs:         t.TeamIDs,
		EmployeeIDs:     t.EmployeeIDs,
		PlannedEnd:      mo.None[time.Time](),
	}
	if t.PlannedStartTime != nil {
		template.PlannedStart = *t.PlannedStartTime
	}
	if t.PlannedEndTime != nil {
		template.PlannedEnd = mo.Some(*t.PlannedEndTime)
	}
	return template
}

type resolveOverlapsRequest struct {
	OverlappingWorkOrders []workOrderDTO `json:"overlapping_work_orders" validate:"required,min=1,dive"`
	Teams                 []teamDTO      `json:"teams"`
}

type teamDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type workOrderDTO struct {
	ID                 string             `json:"id" validate:"required"`
	WorkOrderNumber    string             `json:"work_order_number"`
	Title              string             `json:"title,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	Category           string             `json:"category,omitempty"`
	ShiftType          string             `json:"shift_type,omitempty"`
	Status             string             `json:"status,omitempty"`
	BranchID           string             `json:"branch_id,omitempty"`
	TeamIDs            []string           `json:"team_ids"`
	EmployeeIDs        []string           `json:"employee_ids"`
	PlannedStartTime   *time.Time         `json:"planned_start_time"`
	PlannedEndTime     *time.Time         `json:"planned_end_time"`
	IsRecurring        bool               `json:"is_recurring"`
	RecurrenceParentID string             `json:"recurrence_parent_id,omitempty"`
	RecurrenceType     string             `json:"recurrence_type,omitempty"`
	RecurrenceInterval int                `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time         `json:"recurrence_end_date,omitempty"`
	SkipWeekends       bool               `json:"skip_weekends"`
	MovedFromSunday    bool               `json:"moved_from_sunday"`
	ActivityLog        []activityEntryDTO `json:"activity_log"`
	CreatedBy          string             `json:"created_by,omitempty"`
	CreatedAt          *time.Time         `json:"created_at,omitempty"`
	UpdatedAt          *time.Time         `json:"updated_at,omitempty"`
}

type activityEntryDTO struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
}

func (d workOrderDTO) toWorkOrder() application.WorkOrder {
	order := application.WorkOrder{
		ID:                 d.ID,
		WorkOrderNumber:    d.WorkOrderNumber,
		Title:              d.Title,
		Notes:              d.Notes,
		Category:           d.Category,
		ShiftType:          d.ShiftType,
		Status:             d.Status,
		BranchID:           d.BranchID,
		TeamIDs:            d.TeamIDs,
		EmployeeIDs:        d.EmployeeIDs,
		PlannedStart:       d.PlannedStartTime,
		PlannedEnd:         d.PlannedEndTime,
		IsRecurring:        d.IsRecurring,
		RecurrenceParentID: d.RecurrenceParentID,
		RecurrenceType:     d.RecurrenceType,
		RecurrenceInterval: d.RecurrenceInterval,
		RecurrenceEndDate:  d.RecurrenceEndDate,
		SkipWeekends:       d.SkipWeekends,
		MovedFromSunday:    d.MovedFromSunday,
		CreatedBy:          d.CreatedBy,
	}
	for _, entry := range d.ActivityLog {
		order.ActivityLog = append(order.ActivityLog, application.ActivityEntry{
			Timestamp: entry.Timestamp,
			Action:    entry.Action,
			Actor:     entry.Actor,
			Details:   entry.Details,
		})
	}
	if d.CreatedAt != nil {
		order.CreatedAt = *d.CreatedAt
	}
	if d.UpdatedAt != nil {
		order.UpdatedAt = *d.UpdatedAt
	}
	return order
}

func toWorkOrderDTO(order application.WorkOrder) workOrderDTO {
	dto := workOrderDTO{
		ID:                 order.ID,
		WorkOrderNumber:    order.WorkOrderNumber,
		Title:              order.Title,
		Notes:              order.Notes,
		Category:           order.Category,
		ShiftType:          order.ShiftType,
		Status:             order.Status,
		BranchID:           order.BranchID,
		TeamIDs:            nonNilStrings(order.TeamIDs),
		EmployeeIDs:        nonNilStrings(order.EmployeeIDs),
		PlannedStartTime:   order.PlannedStart,
		PlannedEndTime:     order.PlannedEnd,
		IsRecurring:        order.IsRecurring,
		RecurrenceParentID: order.RecurrenceParentID,
		RecurrenceType:     order.RecurrenceType,
		RecurrenceInterval: order.RecurrenceInterval,
		RecurrenceEndDate:  order.RecurrenceEndDate,
		SkipWeekends:       order.SkipWeekends,
		MovedFromSunday:    order.MovedFromSunday,
		ActivityLog:        make([]activityEntryDTO, 0, len(order.ActivityLog)),
		CreatedBy:          order.CreatedBy,
	}
	for _, entry := range order.ActivityLog {
		dto.ActivityLog = append(dto.ActivityLog, activityEntryDTO{
			Timestamp: entry.Timestamp.UTC(),
			Action:    entry.Action,
			Actor:     entry.Actor,
			Details:   entry.Details,
		})
	}
	if !order.CreatedAt.IsZero() {
		created := order.CreatedAt.UTC()
		dto.CreatedAt = &created
	}
	if !order.UpdatedAt.IsZero() {
		updated := order.UpdatedAt.UTC()
		dto.UpdatedAt = &updated
	}
	return dto
}

type listWorkOrdersResponse struct {
	WorkOrders []workOrderDTO `json:"work_orders"`
}

type expandRecurrenceResponse struct {
	Success          bool                   `json:"success"`
	TotalCreated     int                    `json:"total_created"`
	TotalOccurrences int                    `json:"total_occurrences"`
	WorkOrders       []createdOccurrenceDTO `json:"work_orders"`
	Failed           []failedItemDTO        `json:"failed,omitempty"`
}

type createdOccurrenceDTO struct {
	ID              string `json:"id"`
	WorkOrderNumber string `json:"work_order_number"`
	Date            string `json:"date"`
	MovedFromSunday bool   `json:"moved_from_sunday"`
}

type failedItemDTO struct {
	ID    string `json:"id,omitempty"`
	Date  string `json:"date,omitempty"`
	Error string `json:"error"`
}

type resolveOverlapsResponse struct {
	Success           bool                   `json:"success"`
	UpdatedCount      int                    `json:"updated_count"`
	Summary           string                 `json:"summary"`
	UpdatedWorkOrders []adjustedWorkOrderDTO `json:"updated_work_orders"`
	Failed            []failedItemDTO        `json:"failed,omitempty"`
}

type adjustedWorkOrderDTO struct {
	ID              string    `json:"id"`
	WorkOrderNumber string    `json:"work_order_number"`
	NewStart        time.Time `json:"new_start"`
	NewEnd          time.Time `json:"new_end"`
}

func toExpandRecurrenceResponse(result application.ExpandRecurrenceResult, loc *time.Location) expandRecurrenceResponse {
	resp := expandRecurrenceResponse{
		Success:          true,
		TotalCreated:     result.TotalCreated,
		TotalOccurrences: result.TotalOccurrences,
		WorkOrders:       make([]createdOccurrenceDTO, 0, len(result.WorkOrders)),
		Failed:           toFailedItemDTOs(result.Failed, loc),
	}
	for _, occ := range result.WorkOrders {
		resp.WorkOrders = append(resp.WorkOrders, createdOccurrenceDTO{
			ID:              occ.ID,
			WorkOrderNumber: occ.WorkOrderNumber,
			Date:            occ.Date.In(loc).Format(dateLayout),
			MovedFromSunday: occ.MovedFromSunday,
		})
	}
	return resp
}

func toResolveOverlapsResponse(result application.ResolveOverlapsResult, loc *time.Location) resolveOverlapsResponse {
	resp := resolveOverlapsResponse{
		Success:           true,
		UpdatedCount:      result.UpdatedCount,
		Summary:           result.Summary,
		UpdatedWorkOrders: make([]adjustedWorkOrderDTO, 0, len(result.Updated)),
		Failed:            toFailedItemDTOs(result.Failed, loc),
	}
	for _, updated := range result.Updated {
		resp.UpdatedWorkOrders = append(resp.UpdatedWorkOrders, adjustedWorkOrderDTO{
			ID:              updated.ID,
			WorkOrderNumber: updated.WorkOrderNumber,
			NewStart:        updated.NewStart.UTC(),
			NewEnd:          updated.NewEnd.UTC(),
		})
	}
	return resp
}

func toFailedItemDTOs(items []application.FailedItem, loc *time.Location) []failedItemDTO {
	if len(items) == 0 {
		return nil
	}
	out := make([]failedItemDTO, 0, len(items))
	for _, item := range items {
		dto := failedItemDTO{ID: item.ID, Error: item.Error}
		if item.Date != nil {
			dto.Date = item.Date.In(loc).Format(dateLayout)
		}
		out = append(out, dto)
	}
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
