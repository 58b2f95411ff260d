package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
)

// MaintenanceService is the scheduling behaviour the maintenance routes need.
type MaintenanceService interface {
	ListMaintenance(ctx context.Context, q scheduling.MaintenanceQuery) ([]models.Maintenance, error)
	GetMaintenance(ctx context.Context, id string) (*models.Maintenance, error)
	CreateMaintenance(ctx context.Context, in scheduling.MaintenanceInput) (*models.Maintenance, error)
	UpdateMaintenance(ctx context.Context, id string, in scheduling.MaintenanceInput) (*models.Maintenance, error)
	CompleteMaintenance(ctx context.Context, id, completedOn string) (*models.Maintenance, error)
}

// MaintenanceHandler serves /api/maintenance.
type MaintenanceHandler struct {
	service MaintenanceService
}

// NewMaintenanceHandler creates a maintenance handler.
func NewMaintenanceHandler(service MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: service}
}

// List handles GET /api/maintenance?vehicle_id=&completed=
func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := scheduling.MaintenanceQuery{VehicleID: r.URL.Query().Get("vehicle_id")}
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "Invalid completed parameter", http.StatusBadRequest)
			return
		}
		q.Completed = &completed
	}
	records, err := h.service.ListMaintenance(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /api/maintenance/{id}
func (h *MaintenanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMaintenance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Create handles POST /api/maintenance
func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in scheduling.MaintenanceInput
	if err := readJSON(w, r, &in, false); err != nil {
		writeBodyError(w, err)
		return
	}
	m, err := h.service.CreateMaintenance(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Update handles PUT /api/maintenance/{id}
func (h *MaintenanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in scheduling.MaintenanceInput
	if err := readJSON(w, r, &in, false); err != nil {
		writeBodyError(w, err)
		return
	}
	m, err := h.service.UpdateMaintenance(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Complete handles POST /api/maintenance/{id}/complete. The body is optional.
func (h *MaintenanceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompletionDate string `json:"completion_date"`
	}
	if err := readJSON(w, r, &req, true); err != nil {
		writeBodyError(w, err)
		return
	}
	m, err := h.service.CompleteMaintenance(r.Context(), r.PathValue("id"), req.CompletionDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
