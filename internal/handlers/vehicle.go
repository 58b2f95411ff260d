package handlers

import (
	"context"
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

// VehicleHandler serves /api/vehicles.
type VehicleHandler struct {
	vehicles  db.VehicleCollection
	schedules conflict.ScheduleFinder
	validate  *validator.Validate
}

// NewVehicleHandler creates a vehicle handler. schedules is used to refuse
// deleting a vehicle that still has active schedules.
func NewVehicleHandler(vehicles db.VehicleCollection, schedules conflict.ScheduleFinder, validate *validator.Validate) *VehicleHandler {
	if validate == nil {
		validate = scheduling.NewValidator()
	}
	return &VehicleHandler{vehicles: vehicles, schedules: schedules, validate: validate}
}

// List handles GET /api/vehicles?status=&type=
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}
	if vehicleType := r.URL.Query().Get("type"); vehicleType != "" {
		filter["type"] = vehicleType
	}
	vehicles, err := h.vehicles.FindVehicles(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// Get handles GET /api/vehicles/{id}
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vehicles.FindVehicleByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create handles POST /api/vehicles
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := readJSON(w, r, &v, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, v); err != nil {
		writeError(w, r, err)
		return
	}
	v.ID = primitive.NewObjectID()
	if v.Status == "" {
		v.Status = "active"
	}
	if err := h.vehicles.InsertVehicle(r.Context(), v); err != nil {
		writeError(w, r, fmt.Errorf("insert vehicle: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Update handles PUT /api/vehicles/{id}
func (h *VehicleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var v models.Vehicle
	if err := readJSON(w, r, &v, false); err != nil {
		writeBodyError(w, err)
		return
	}
	if err := scheduling.ValidateStruct(h.validate, v); err != nil {
		writeError(w, r, err)
		return
	}
	v.ID = existing.ID
	v.CreatedAt = existing.CreatedAt
	if err := h.vehicles.UpdateVehicle(r.Context(), id, v); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete handles DELETE /api/vehicles/{id}
func (h *VehicleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if blocked, err := hasActiveSchedules(r.Context(), h.schedules, models.ResourceVehicle, id); err != nil {
		writeError(w, r, err)
		return
	} else if blocked {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "in use", Message: "Vehicle has active schedules"})
		return
	}
	if err := h.vehicles.DeleteVehicle(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hasActiveSchedules reports whether any pending or assigned schedule
// references the resource.
func hasActiveSchedules(ctx context.Context, schedules conflict.ScheduleFinder, kind models.ResourceKind, id string) (bool, error) {
	if schedules == nil {
		return false, nil
	}
	found, err := schedules.FindSchedules(ctx, bson.M{
		kind.Field(): id,
		"status":     bson.M{"$nin": models.InactiveStatuses},
	})
	if err != nil {
		return false, fmt.Errorf("find %s schedules: %w", kind, err)
	}
	return len(found) > 0, nil
}
