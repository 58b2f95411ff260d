package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DriverHandler serves /api/drivers.
type DriverHandler struct {
	drivers   db.DriverCollection
	schedules conflict.ScheduleFinder
	validate  *validator.Validate
}

// NewDriverHandler creates a driver handler.
func NewDriverHandler(drivers db.DriverCollection, schedules conflict.ScheduleFinder, validate *validator.Validate) *DriverHandler {
	if validate == nil {
		validate = scheduling.NewValidator()
	}
	return &DriverHandler{drivers: drivers, schedules: schedules, validate: validate}
}

// List handles GET /api/drivers?status=
func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}
	drivers, err := h.drivers.FindDrivers(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drivers)
}

// Get handles GET /api/drivers/{id}
func (h *DriverHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.drivers.FindDriverByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Create handles POST /api/drivers
func (h *DriverHandler) Create(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := readJSON(w, r, &d, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, d); err != nil {
		writeError(w, r, err)
		return
	}
	d.ID = primitive.NewObjectID()
	if d.Status == "" {
		d.Status = "active"
	}
	if err := h.drivers.InsertDriver(r.Context(), d); err != nil {
		writeError(w, r, fmt.Errorf("insert driver: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// Update handles PUT /api/drivers/{id}
func (h *DriverHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.drivers.FindDriverByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var d models.Driver
	if err := readJSON(w, r, &d, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, d); err != nil {
		writeError(w, r, err)
		return
	}
	d.ID = existing.ID
	d.CreatedAt = existing.CreatedAt
	if err := h.drivers.UpdateDriver(r.Context(), id, d); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Delete handles DELETE /api/drivers/{id}
func (h *DriverHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if blocked, err := hasActiveSchedules(r.Context(), h.schedules, models.ResourceDriver, id); err != nil {
		writeError(w, r, err)
		return
	} else if blocked {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "in use", Message: "Driver has active schedules"})
		return
	}
	if err := h.drivers.DeleteDriver(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
