package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMaintenanceHandler_Create(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewMaintenanceHandler(svc)
	in := scheduling.MaintenanceInput{VehicleID: "v1", ServiceType: "inspection", MaintenanceDate: "2024-03-10"}
	svc.On("CreateMaintenance", mock.Anything, in).Return(nil, &conflict.ConflictError{
		ResourceType: models.ResourceVehicle,
		ResourceID:   "v1",
		ResourceName: "Ford Transit (AB12)",
		RecordType:   conflict.RecordMaintenance,
		StartDate:    day(t, "2024-03-01"),
	})

	w := serve("POST /api/maintenance", h.Create, httptest.NewRequest("POST", "/api/maintenance", jsonBody(t, in)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Vehicle Ford Transit (AB12) is in maintenance from 2024-03-01 (open-ended)")
}

func TestMaintenanceHandler_List(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewMaintenanceHandler(svc)
	open := false
	svc.On("ListMaintenance", mock.Anything, scheduling.MaintenanceQuery{VehicleID: "v1", Completed: &open}).
		Return([]models.Maintenance{{VehicleID: "v1"}}, nil)

	w := serve("GET /api/maintenance", h.List, httptest.NewRequest("GET", "/api/maintenance?vehicle_id=v1&completed=false", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve("GET /api/maintenance", h.List, httptest.NewRequest("GET", "/api/maintenance?completed=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaintenanceHandler_Complete(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewMaintenanceHandler(svc)
	id := primitive.NewObjectID().Hex()
	completed := day(t, "2024-03-05")
	svc.On("CompleteMaintenance", mock.Anything, id, "").
		Return(&models.Maintenance{VehicleID: "v1", Completed: true, CompletionDate: &completed}, nil)
	svc.On("CompleteMaintenance", mock.Anything, id, "2024-03-05").
		Return(&models.Maintenance{VehicleID: "v1", Completed: true, CompletionDate: &completed}, nil)

	w := serve("POST /api/maintenance/{id}/complete", h.Complete, httptest.NewRequest("POST", "/api/maintenance/"+id+"/complete", nil))
	assert.Equal(t, http.StatusOK, w.Code, "the body is optional")
	assert.Contains(t, w.Body.String(), `"completed":true`)

	w = serve("POST /api/maintenance/{id}/complete", h.Complete,
		httptest.NewRequest("POST", "/api/maintenance/"+id+"/complete", jsonBody(t, map[string]string{"completion_date": "2024-03-05"})))
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestMaintenanceHandler_UpdateAndGet(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewMaintenanceHandler(svc)
	id := primitive.NewObjectID().Hex()
	in := scheduling.MaintenanceInput{VehicleID: "v1", ServiceType: "brake_service", MaintenanceDate: "2024-03-10"}
	svc.On("UpdateMaintenance", mock.Anything, id, in).Return(&models.Maintenance{VehicleID: "v1", ServiceType: "brake_service"}, nil)
	svc.On("GetMaintenance", mock.Anything, id).Return(&models.Maintenance{VehicleID: "v1"}, nil)

	w := serve("PUT /api/maintenance/{id}", h.Update, httptest.NewRequest("PUT", "/api/maintenance/"+id, jsonBody(t, in)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "brake_service")

	w = serve("GET /api/maintenance/{id}", h.Get, httptest.NewRequest("GET", "/api/maintenance/"+id, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
