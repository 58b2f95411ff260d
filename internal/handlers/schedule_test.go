package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockSchedulingService is a mock of both ScheduleService and MaintenanceService.
type MockSchedulingService struct {
	mock.Mock
}

func (m *MockSchedulingService) ListSchedules(ctx context.Context, q scheduling.ScheduleQuery) ([]models.Schedule, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Schedule), args.Error(1)
}

func (m *MockSchedulingService) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockSchedulingService) CreateSchedule(ctx context.Context, in scheduling.ScheduleInput) (*models.Schedule, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockSchedulingService) UpdateSchedule(ctx context.Context, id string, in scheduling.ScheduleInput) (*models.Schedule, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockSchedulingService) TransitionSchedule(ctx context.Context, id string, next models.ScheduleStatus) (*models.Schedule, error) {
	args := m.Called(ctx, id, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockSchedulingService) CheckSchedule(ctx context.Context, in scheduling.ScheduleInput, excludeID string) (*scheduling.CheckResult, error) {
	args := m.Called(ctx, in, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.CheckResult), args.Error(1)
}

func (m *MockSchedulingService) ListMaintenance(ctx context.Context, q scheduling.MaintenanceQuery) ([]models.Maintenance, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Maintenance), args.Error(1)
}

func (m *MockSchedulingService) GetMaintenance(ctx context.Context, id string) (*models.Maintenance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockSchedulingService) CreateMaintenance(ctx context.Context, in scheduling.MaintenanceInput) (*models.Maintenance, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockSchedulingService) UpdateMaintenance(ctx context.Context, id string, in scheduling.MaintenanceInput) (*models.Maintenance, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockSchedulingService) CompleteMaintenance(ctx context.Context, id, completedOn string) (*models.Maintenance, error) {
	args := m.Called(ctx, id, completedOn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(conflict.DateLayout, s)
	require.NoError(t, err)
	return d
}

// serve routes req through the same patterns the server registers.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestScheduleHandler_Create(t *testing.T) {
	in := scheduling.ScheduleInput{VehicleID: "v1", DriverID: "d1", StartDate: "2024-01-05", EndDate: "2024-01-20"}

	t.Run("created", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		created := &models.Schedule{ID: primitive.NewObjectID(), VehicleID: "v1", DriverID: "d1", Status: models.StatusPending}
		svc.On("CreateSchedule", mock.Anything, in).Return(created, nil)

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", jsonBody(t, in)))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), created.ID.Hex())
	})

	t.Run("conflict payload", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		conflictingID := primitive.NewObjectID().Hex()
		svc.On("CreateSchedule", mock.Anything, in).Return(nil, fmt.Errorf("check: %w", &conflict.ConflictError{
			ResourceType:  models.ResourceDriver,
			ResourceID:    "d1",
			ResourceName:  "Ada Lovelace",
			RecordType:    conflict.RecordSchedule,
			ConflictingID: conflictingID,
			StartDate:     day(t, "2024-01-01"),
			EndDate:       nil,
		}))

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", jsonBody(t, in)))
		require.Equal(t, http.StatusConflict, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "conflict", body["error"])
		assert.Equal(t, "driver", body["resource_type"])
		assert.Equal(t, "d1", body["resource_id"])
		assert.Equal(t, "Ada Lovelace", body["resource_name"])
		assert.Equal(t, conflictingID, body["conflicting_id"])
		assert.Equal(t, "2024-01-01", body["start_date"])
		assert.Nil(t, body["end_date"])
		assert.Equal(t, "Driver Ada Lovelace is already scheduled from 2024-01-01 (open-ended)", body["message"])
	})

	t.Run("resource busy", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		svc.On("CreateSchedule", mock.Anything, in).Return(nil, fmt.Errorf("%w: vehicle:v1", scheduling.ErrResourceBusy))

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", jsonBody(t, in)))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "resource busy")
	})

	t.Run("validation", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		svc.On("CreateSchedule", mock.Anything, mock.Anything).
			Return(nil, &scheduling.ValidationError{Fields: map[string]string{"end_date": "end date is before start date"}})

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", jsonBody(t, in)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "end_date")
	})

	t.Run("store failure", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		svc.On("CreateSchedule", mock.Anything, mock.Anything).Return(nil, errors.New("server selection timeout"))

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", jsonBody(t, in)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "server selection")
	})

	t.Run("invalid json", func(t *testing.T) {
		h := NewScheduleHandler(new(MockSchedulingService))
		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", bytes.NewBufferString("[")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		svc := new(MockSchedulingService)
		h := NewScheduleHandler(svc)
		body := `{"vehicle_id":"v1","start_date":"2024-01-01","notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`

		w := serve("POST /api/schedules", h.Create, httptest.NewRequest("POST", "/api/schedules", strings.NewReader(body)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		svc.AssertNotCalled(t, "CreateSchedule", mock.Anything, mock.Anything)
	})
}

func TestScheduleHandler_ListAndGet(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewScheduleHandler(svc)
	svc.On("ListSchedules", mock.Anything, scheduling.ScheduleQuery{DriverID: "d1", Status: models.StatusAssigned}).
		Return([]models.Schedule{{DriverID: "d1"}}, nil)
	svc.On("GetSchedule", mock.Anything, "missing").Return(nil, fmt.Errorf("schedule %w", db.ErrNotFound))
	svc.On("GetSchedule", mock.Anything, "bad").Return(nil, fmt.Errorf("schedule %q: %w", "bad", db.ErrInvalidID))

	w := serve("GET /api/schedules", h.List, httptest.NewRequest("GET", "/api/schedules?driver_id=d1&status=assigned", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var list []models.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = serve("GET /api/schedules/{id}", h.Get, httptest.NewRequest("GET", "/api/schedules/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve("GET /api/schedules/{id}", h.Get, httptest.NewRequest("GET", "/api/schedules/bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandler_Update(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewScheduleHandler(svc)
	id := primitive.NewObjectID().Hex()
	in := scheduling.ScheduleInput{VehicleID: "v1", StartDate: "2024-01-05"}
	svc.On("UpdateSchedule", mock.Anything, id, in).Return(nil, fmt.Errorf("schedule %s is completed: %w", id, scheduling.ErrInactiveRecord))

	w := serve("PUT /api/schedules/{id}", h.Update, httptest.NewRequest("PUT", "/api/schedules/"+id, jsonBody(t, in)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no longer active")
}

func TestScheduleHandler_Transition(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewScheduleHandler(svc)
	id := primitive.NewObjectID().Hex()
	svc.On("TransitionSchedule", mock.Anything, id, models.StatusAssigned).
		Return(&models.Schedule{Status: models.StatusAssigned}, nil)
	svc.On("TransitionSchedule", mock.Anything, id, models.StatusCompleted).
		Return(nil, fmt.Errorf("pending to completed: %w", scheduling.ErrInvalidTransition))

	w := serve("POST /api/schedules/{id}/status", h.Transition,
		httptest.NewRequest("POST", "/api/schedules/"+id+"/status", jsonBody(t, map[string]string{"status": "assigned"})))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"assigned"`)

	w = serve("POST /api/schedules/{id}/status", h.Transition,
		httptest.NewRequest("POST", "/api/schedules/"+id+"/status", jsonBody(t, map[string]string{"status": "completed"})))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestScheduleHandler_Check(t *testing.T) {
	svc := new(MockSchedulingService)
	h := NewScheduleHandler(svc)
	in := scheduling.ScheduleInput{VehicleID: "v1", StartDate: "2024-03-10"}
	exclude := primitive.NewObjectID().Hex()

	window := models.Maintenance{ID: primitive.NewObjectID(), VehicleID: "v1", MaintenanceDate: day(t, "2024-03-01")}
	svc.On("CheckSchedule", mock.Anything, in, exclude).Return(&scheduling.CheckResult{
		Schedules:   []models.Schedule{},
		Maintenance: []models.Maintenance{window},
		Conflict: &conflict.ConflictError{
			ResourceType:  models.ResourceVehicle,
			ResourceID:    "v1",
			ResourceName:  "v1",
			RecordType:    conflict.RecordMaintenance,
			ConflictingID: window.ID.Hex(),
			StartDate:     window.MaintenanceDate,
		},
	}, nil)

	body := jsonBody(t, map[string]string{"vehicle_id": "v1", "start_date": "2024-03-10", "exclude_id": exclude})
	w := serve("POST /api/schedules/check", h.Check, httptest.NewRequest("POST", "/api/schedules/check", body))
	require.Equal(t, http.StatusOK, w.Code)

	var resp checkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.HasConflict)
	require.NotNil(t, resp.Conflict)
	assert.Equal(t, "Vehicle v1 is in maintenance from 2024-03-01 (open-ended)", resp.Conflict.Message)
	assert.Len(t, resp.Maintenance, 1)
	svc.AssertExpectations(t)
}
