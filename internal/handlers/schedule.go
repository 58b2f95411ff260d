package handlers

import (
	"context"
	"net/http"

	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
)

// ScheduleService is the scheduling behaviour the schedule routes need.
type ScheduleService interface {
	ListSchedules(ctx context.Context, q scheduling.ScheduleQuery) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	CreateSchedule(ctx context.Context, in scheduling.ScheduleInput) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, in scheduling.ScheduleInput) (*models.Schedule, error)
	TransitionSchedule(ctx context.Context, id string, next models.ScheduleStatus) (*models.Schedule, error)
	CheckSchedule(ctx context.Context, in scheduling.ScheduleInput, excludeID string) (*scheduling.CheckResult, error)
}

// ScheduleHandler serves /api/schedules.
type ScheduleHandler struct {
	service ScheduleService
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(service ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// List handles GET /api/schedules?vehicle_id=&driver_id=&status=
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	schedules, err := h.service.ListSchedules(r.Context(), scheduling.ScheduleQuery{
		VehicleID: q.Get("vehicle_id"),
		DriverID:  q.Get("driver_id"),
		Status:    models.ScheduleStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

// Get handles GET /api/schedules/{id}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Create handles POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in scheduling.ScheduleInput
	if err := readJSON(w, r, &in, false); err != nil {
		writeBodyError(w, err)
		return
	}
	s, err := h.service.CreateSchedule(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// Update handles PUT /api/schedules/{id}
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in scheduling.ScheduleInput
	if err := readJSON(w, r, &in, false); err != nil {
		writeBodyError(w, err)
		return
	}
	s, err := h.service.UpdateSchedule(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Transition handles POST /api/schedules/{id}/status
func (h *ScheduleHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.ScheduleStatus `json:"status"`
	}
	if err := readJSON(w, r, &req, false); err != nil {
		writeBodyError(w, err)
		return
	}
	s, err := h.service.TransitionSchedule(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type checkRequest struct {
	scheduling.ScheduleInput
	ExcludeID string `json:"exclude_id"`
}

type checkResponse struct {
	HasConflict bool                 `json:"has_conflict"`
	Conflict    *conflictResponse    `json:"conflict,omitempty"`
	Schedules   []models.Schedule    `json:"schedules"`
	Maintenance []models.Maintenance `json:"maintenance"`
}

// Check handles POST /api/schedules/check, a dry run that stores nothing.
func (h *ScheduleHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := readJSON(w, r, &req, false); err != nil {
		writeBodyError(w, err)
		return
	}
	res, err := h.service.CheckSchedule(r.Context(), req.ScheduleInput, req.ExcludeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckResponse(res))
}

func toCheckResponse(res *scheduling.CheckResult) checkResponse {
	resp := checkResponse{
		HasConflict: res.HasConflict(),
		Schedules:   res.Schedules,
		Maintenance: res.Maintenance,
	}
	if res.Conflict != nil {
		c := newConflictResponse(res.Conflict)
		resp.Conflict = &c
	}
	return resp
}
