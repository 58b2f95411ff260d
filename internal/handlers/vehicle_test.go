package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockVehicleCollection is a mock implementation of VehicleCollection
type MockVehicleCollection struct {
	mock.Mock
}

func (m *MockVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	return m.Called(ctx, vehicle).Error(0)
}

func (m *MockVehicleCollection) FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *MockVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleCollection) UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	return m.Called(ctx, id, vehicle).Error(0)
}

func (m *MockVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockScheduleFinder answers active-schedule lookups.
type MockScheduleFinder struct {
	mock.Mock
}

func (m *MockScheduleFinder) FindSchedules(ctx context.Context, filter bson.M) ([]models.Schedule, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Schedule), args.Error(1)
}

func TestVehicleHandler_Create(t *testing.T) {
	vehicles := new(MockVehicleCollection)
	h := NewVehicleHandler(vehicles, nil, nil)
	vehicles.On("InsertVehicle", mock.Anything, mock.MatchedBy(func(v models.Vehicle) bool {
		return !v.ID.IsZero() && v.Status == "active" && v.PlateNumber == "AB12 CDE"
	})).Return(nil)

	body := jsonBody(t, map[string]interface{}{"plate_number": "AB12 CDE", "make": "Ford", "model": "Transit", "type": "ICE", "year": 2021})
	w := serve("POST /api/vehicles", h.Create, httptest.NewRequest("POST", "/api/vehicles", body))
	assert.Equal(t, http.StatusCreated, w.Code)
	vehicles.AssertExpectations(t)

	body = jsonBody(t, map[string]interface{}{"plate_number": "AB12 CDE", "make": "Ford", "type": "diesel"})
	w = serve("POST /api/vehicles", h.Create, httptest.NewRequest("POST", "/api/vehicles", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"model"`)
	assert.Contains(t, w.Body.String(), `"type"`)
}

func TestVehicleHandler_ListAndUpdate(t *testing.T) {
	vehicles := new(MockVehicleCollection)
	h := NewVehicleHandler(vehicles, nil, nil)
	existing := &models.Vehicle{ID: primitive.NewObjectID(), PlateNumber: "X1", Make: "VW", Model: "Crafter"}
	id := existing.ID.Hex()

	vehicles.On("FindVehicles", mock.Anything, bson.M{"type": "EV"}).Return([]models.Vehicle{*existing}, nil)
	vehicles.On("FindVehicleByID", mock.Anything, id).Return(existing, nil)
	vehicles.On("UpdateVehicle", mock.Anything, id, mock.MatchedBy(func(v models.Vehicle) bool {
		return v.ID == existing.ID && v.Model == "e-Crafter"
	})).Return(nil)

	w := serve("GET /api/vehicles", h.List, httptest.NewRequest("GET", "/api/vehicles?type=EV", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := jsonBody(t, map[string]interface{}{"plate_number": "X1", "make": "VW", "model": "e-Crafter", "type": "EV"})
	w = serve("PUT /api/vehicles/{id}", h.Update, httptest.NewRequest("PUT", "/api/vehicles/"+id, body))
	assert.Equal(t, http.StatusOK, w.Code)
	vehicles.AssertExpectations(t)
}

func TestVehicleHandler_Delete(t *testing.T) {
	id := primitive.NewObjectID().Hex()
	activeFilter := bson.M{"vehicle_id": id, "status": bson.M{"$nin": models.InactiveStatuses}}

	t.Run("blocked by active schedule", func(t *testing.T) {
		vehicles := new(MockVehicleCollection)
		schedules := new(MockScheduleFinder)
		h := NewVehicleHandler(vehicles, schedules, nil)
		schedules.On("FindSchedules", mock.Anything, activeFilter).Return([]models.Schedule{{VehicleID: id}}, nil)

		w := serve("DELETE /api/vehicles/{id}", h.Delete, httptest.NewRequest("DELETE", "/api/vehicles/"+id, nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		vehicles.AssertNotCalled(t, "DeleteVehicle", mock.Anything, mock.Anything)
	})

	t.Run("deleted", func(t *testing.T) {
		vehicles := new(MockVehicleCollection)
		schedules := new(MockScheduleFinder)
		h := NewVehicleHandler(vehicles, schedules, nil)
		schedules.On("FindSchedules", mock.Anything, activeFilter).Return([]models.Schedule{}, nil)
		vehicles.On("DeleteVehicle", mock.Anything, id).Return(nil)

		w := serve("DELETE /api/vehicles/{id}", h.Delete, httptest.NewRequest("DELETE", "/api/vehicles/"+id, nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		vehicles := new(MockVehicleCollection)
		h := NewVehicleHandler(vehicles, nil, nil)
		vehicles.On("DeleteVehicle", mock.Anything, id).Return(db.ErrNotFound)

		w := serve("DELETE /api/vehicles/{id}", h.Delete, httptest.NewRequest("DELETE", "/api/vehicles/"+id, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
