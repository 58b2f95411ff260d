// Package scheduling creates and changes schedules and maintenance windows,
// rejecting any change that would double-book a vehicle or driver.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/events"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInactiveRecord is returned when editing a completed or canceled record.
	ErrInactiveRecord = errors.New("record is no longer active")
	// ErrResourceBusy is returned when another request is booking the same resource.
	ErrResourceBusy = errors.New("resource busy")
)

// Locker serialises bookings of the same resource.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (db.ReleaseFunc, error)
}

// BusyRecorder counts bookings rejected because a resource was locked.
type BusyRecorder interface {
	LockBusy()
}

type nopBusy struct{}

func (nopBusy) LockBusy() {}

// ScheduleInput is the body of schedule create, update and check requests.
type ScheduleInput struct {
	VehicleID string                `json:"vehicle_id" validate:"required_without=DriverID"`
	DriverID  string                `json:"driver_id"`
	StartDate string                `json:"start_date" validate:"required"`
	EndDate   string                `json:"end_date"`
	Status    models.ScheduleStatus `json:"status" validate:"omitempty,oneof=pending assigned"`
	Purpose   string                `json:"purpose" validate:"max=256"`
	Notes     string                `json:"notes" validate:"max=1024"`
}

// MaintenanceInput is the body of maintenance create and update requests.
type MaintenanceInput struct {
	VehicleID       string  `json:"vehicle_id" validate:"required"`
	ServiceType     string  `json:"service_type" validate:"required"`
	Description     string  `json:"description"`
	MaintenanceDate string  `json:"maintenance_date" validate:"required"`
	CompletionDate  string  `json:"completion_date"`
	Mileage         float64 `json:"mileage" validate:"gte=0"`
	Cost            float64 `json:"cost" validate:"gte=0"`
	Technician      string  `json:"technician"`
	ServiceLocation string  `json:"service_location"`
	Priority        string  `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Notes           string  `json:"notes"`
}

// ScheduleQuery filters schedule listings. Empty fields match everything.
type ScheduleQuery struct {
	VehicleID string
	DriverID  string
	Status    models.ScheduleStatus
}

// MaintenanceQuery filters maintenance listings.
type MaintenanceQuery struct {
	VehicleID string
	Completed *bool
}

// CheckResult is the outcome of a dry-run conflict check.
type CheckResult struct {
	Conflict    *conflict.ConflictError `json:"conflict,omitempty"`
	Schedules   []models.Schedule       `json:"schedules"`
	Maintenance []models.Maintenance    `json:"maintenance"`
}

// HasConflict reports whether any record collides with the candidate.
func (r *CheckResult) HasConflict() bool {
	return len(r.Schedules) > 0 || len(r.Maintenance) > 0
}

// Service applies schedule and maintenance changes under booking locks.
type Service struct {
	schedules   db.ScheduleCollection
	maintenance db.MaintenanceCollection
	detector    *conflict.Detector
	locker      Locker
	publisher   events.Publisher
	busy        BusyRecorder
	validate    *validator.Validate
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithPublisher publishes lifecycle events through p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithBusyRecorder counts lock contention.
func WithBusyRecorder(r BusyRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.busy = r
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a scheduling service. Without WithLocker it locks in
// process only.
func NewService(schedules db.ScheduleCollection, maintenance db.MaintenanceCollection, detector *conflict.Detector, opts ...Option) *Service {
	s := &Service{
		schedules:   schedules,
		maintenance: maintenance,
		detector:    detector,
		publisher:   events.Nop{},
		busy:        nopBusy{},
		validate:    NewValidator(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = db.NewMemoryLocker(db.DefaultLockTTL, s.now)
	}
	return s
}

func scheduleKeys(schedules ...*models.Schedule) []string {
	var keys []string
	for _, sc := range schedules {
		if sc.VehicleID != "" {
			keys = append(keys, db.LockKey(string(models.ResourceVehicle), sc.VehicleID))
		}
		if sc.DriverID != "" {
			keys = append(keys, db.LockKey(string(models.ResourceDriver), sc.DriverID))
		}
	}
	return keys
}

func vehicleKeys(vehicleIDs ...string) []string {
	var keys []string
	for _, id := range vehicleIDs {
		if id != "" {
			keys = append(keys, db.LockKey(string(models.ResourceVehicle), id))
		}
	}
	return keys
}

// locked runs fn while holding keys. The locks are released before locked
// returns, so callers publish events after it.
func (s *Service) locked(ctx context.Context, keys []string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		if errors.Is(err, db.ErrLocked) {
			s.busy.LockBusy()
			log.WithField("keys", keys).Info("Booking rejected, resource locked")
			return fmt.Errorf("%w: %v", ErrResourceBusy, err)
		}
		return err
	}
	defer release(context.WithoutCancel(ctx))
	return fn()
}

// lockedSchedule locks the resources schedule id holds, plus those of next
// when set, and hands fn the schedule as re-read under the lock.
func (s *Service) lockedSchedule(ctx context.Context, id string, next *models.Schedule, fn func(current *models.Schedule) error) error {
	before, err := s.schedules.FindScheduleByID(ctx, id)
	if err != nil {
		return err
	}
	keys := scheduleKeys(before)
	if next != nil {
		keys = append(keys, scheduleKeys(next)...)
	}
	return s.locked(ctx, keys, func() error {
		current, err := s.schedules.FindScheduleByID(ctx, id)
		if err != nil {
			return err
		}
		return fn(current)
	})
}

// lockedMaintenance is lockedSchedule for maintenance records.
func (s *Service) lockedMaintenance(ctx context.Context, id, nextVehicleID string, fn func(current *models.Maintenance) error) error {
	before, err := s.maintenance.FindMaintenanceByID(ctx, id)
	if err != nil {
		return err
	}
	return s.locked(ctx, vehicleKeys(before.VehicleID, nextVehicleID), func() error {
		current, err := s.maintenance.FindMaintenanceByID(ctx, id)
		if err != nil {
			return err
		}
		return fn(current)
	})
}

func (s *Service) scheduleFromInput(in ScheduleInput) (models.Schedule, error) {
	if err := ValidateStruct(s.validate, in); err != nil {
		return models.Schedule{}, err
	}
	p, err := parsePeriod("start_date", in.StartDate, "end_date", in.EndDate)
	if err != nil {
		return models.Schedule{}, err
	}
	status := in.Status
	if status == "" {
		status = models.StatusPending
	}
	return models.Schedule{
		VehicleID: in.VehicleID,
		DriverID:  in.DriverID,
		StartDate: p.Start,
		EndDate:   p.End,
		Status:    status,
		Purpose:   in.Purpose,
		Notes:     in.Notes,
	}, nil
}

func (s *Service) scheduleEvent(kind string, sc *models.Schedule) events.Event {
	return events.Event{
		Type:      kind,
		ID:        sc.ID.Hex(),
		VehicleID: sc.VehicleID,
		DriverID:  sc.DriverID,
		Status:    string(sc.Status),
		At:        s.now().UTC(),
	}
}

// ListSchedules returns the schedules matching q.
func (s *Service) ListSchedules(ctx context.Context, q ScheduleQuery) ([]models.Schedule, error) {
	filter := bson.M{}
	if q.VehicleID != "" {
		filter["vehicle_id"] = q.VehicleID
	}
	if q.DriverID != "" {
		filter["driver_id"] = q.DriverID
	}
	if q.Status != "" {
		if !q.Status.IsValid() {
			return nil, invalidField("status", "unknown status")
		}
		filter["status"] = q.Status
	}
	return s.schedules.FindSchedules(ctx, filter)
}

// GetSchedule returns one schedule.
func (s *Service) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	return s.schedules.FindScheduleByID(ctx, id)
}

// CreateSchedule stores a new schedule unless its vehicle or driver is
// already booked for an overlapping range.
func (s *Service) CreateSchedule(ctx context.Context, in ScheduleInput) (*models.Schedule, error) {
	sc, err := s.scheduleFromInput(in)
	if err != nil {
		return nil, err
	}

	err = s.locked(ctx, scheduleKeys(&sc), func() error {
		sc.ID = primitive.NewObjectID()
		if err := s.detector.CheckSchedule(ctx, &sc); err != nil {
			return err
		}
		now := s.now()
		sc.CreatedAt = now
		sc.UpdatedAt = now
		if err := s.schedules.InsertSchedule(ctx, sc); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"schedule_id": sc.ID.Hex(),
		"vehicle_id":  sc.VehicleID,
		"driver_id":   sc.DriverID,
	}).Info("Schedule created")
	s.publisher.Publish(s.scheduleEvent(events.ScheduleCreated, &sc))
	return &sc, nil
}

// UpdateSchedule replaces the resources, dates and notes of an active
// schedule. The schedule itself is ignored when checking for conflicts.
func (s *Service) UpdateSchedule(ctx context.Context, id string, in ScheduleInput) (*models.Schedule, error) {
	// Status only changes through TransitionSchedule.
	in.Status = ""
	sc, err := s.scheduleFromInput(in)
	if err != nil {
		return nil, err
	}

	err = s.lockedSchedule(ctx, id, &sc, func(existing *models.Schedule) error {
		if !existing.Status.IsActive() {
			return fmt.Errorf("schedule %s is %s: %w", id, existing.Status, ErrInactiveRecord)
		}
		sc.ID = existing.ID
		sc.Status = existing.Status
		sc.CreatedAt = existing.CreatedAt

		if err := s.detector.CheckSchedule(ctx, &sc); err != nil {
			return err
		}
		sc.UpdatedAt = s.now()
		if err := s.schedules.UpdateSchedule(ctx, id, sc); err != nil {
			if errors.Is(err, db.ErrStateChanged) {
				return fmt.Errorf("schedule %s left %s during the update: %w", id, existing.Status, ErrInactiveRecord)
			}
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("schedule_id", id).Info("Schedule updated")
	s.publisher.Publish(s.scheduleEvent(events.ScheduleUpdated, &sc))
	return &sc, nil
}

// TransitionSchedule moves a schedule to next. Allowed moves are
// pending to assigned or canceled, and assigned to completed or canceled.
func (s *Service) TransitionSchedule(ctx context.Context, id string, next models.ScheduleStatus) (*models.Schedule, error) {
	if !next.IsValid() {
		return nil, invalidField("status", "unknown status")
	}

	var sc *models.Schedule
	var from models.ScheduleStatus
	err := s.lockedSchedule(ctx, id, nil, func(current *models.Schedule) error {
		sc, from = current, current.Status
		if !from.CanTransitionTo(next) {
			return fmt.Errorf("%s to %s: %w", from, next, ErrInvalidTransition)
		}
		if err := s.schedules.UpdateScheduleStatus(ctx, id, from, next); err != nil {
			if errors.Is(err, db.ErrStateChanged) {
				return fmt.Errorf("%s to %s: schedule changed meanwhile: %w", from, next, ErrInvalidTransition)
			}
			return fmt.Errorf("update schedule status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"schedule_id": id, "from": from, "to": next}).Info("Schedule status changed")
	sc.Status = next
	sc.UpdatedAt = s.now()
	s.publisher.Publish(s.scheduleEvent(events.ScheduleStatusChanged, sc))
	return sc, nil
}

// CheckSchedule reports every active record that would collide with in,
// without storing anything. excludeID, when set, is treated as the
// schedule being edited.
func (s *Service) CheckSchedule(ctx context.Context, in ScheduleInput, excludeID string) (*CheckResult, error) {
	sc, err := s.scheduleFromInput(in)
	if err != nil {
		return nil, err
	}
	if excludeID != "" {
		oid, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return nil, invalidField("exclude_id", "invalid id")
		}
		sc.ID = oid
	}
	candidate := conflict.SchedulePeriod(&sc)

	result := &CheckResult{Schedules: []models.Schedule{}, Maintenance: []models.Maintenance{}}
	for _, kind := range []models.ResourceKind{models.ResourceVehicle, models.ResourceDriver} {
		id := sc.ResourceID(kind)
		found, err := s.detector.ScheduleConflicts(ctx, kind, id, candidate, sc.ID)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 && result.Conflict == nil {
			result.Conflict = s.detector.ScheduleConflictError(ctx, kind, id, &found[0])
		}
		result.Schedules = append(result.Schedules, found...)
	}
	windows, err := s.detector.MaintenanceConflicts(ctx, sc.VehicleID, candidate, primitive.NilObjectID)
	if err != nil {
		return nil, err
	}
	if len(windows) > 0 && result.Conflict == nil {
		result.Conflict = s.detector.MaintenanceConflictError(ctx, sc.VehicleID, &windows[0])
	}
	result.Maintenance = windows
	return result, nil
}

func (s *Service) maintenanceFromInput(in MaintenanceInput) (models.Maintenance, error) {
	if err := ValidateStruct(s.validate, in); err != nil {
		return models.Maintenance{}, err
	}
	p, err := parsePeriod("maintenance_date", in.MaintenanceDate, "completion_date", in.CompletionDate)
	if err != nil {
		return models.Maintenance{}, err
	}
	return models.Maintenance{
		VehicleID:       in.VehicleID,
		ServiceType:     in.ServiceType,
		Description:     in.Description,
		MaintenanceDate: p.Start,
		CompletionDate:  p.End,
		Mileage:         in.Mileage,
		Cost:            in.Cost,
		Technician:      in.Technician,
		ServiceLocation: in.ServiceLocation,
		Priority:        in.Priority,
		Notes:           in.Notes,
	}, nil
}

func (s *Service) maintenanceEvent(kind string, m *models.Maintenance) events.Event {
	status := "open"
	if m.Completed {
		status = "completed"
	}
	return events.Event{
		Type:      kind,
		ID:        m.ID.Hex(),
		VehicleID: m.VehicleID,
		Status:    status,
		At:        s.now().UTC(),
	}
}

// ListMaintenance returns the maintenance records matching q.
func (s *Service) ListMaintenance(ctx context.Context, q MaintenanceQuery) ([]models.Maintenance, error) {
	filter := bson.M{}
	if q.VehicleID != "" {
		filter["vehicle_id"] = q.VehicleID
	}
	if q.Completed != nil {
		if *q.Completed {
			filter["completed"] = true
		} else {
			filter["completed"] = bson.M{"$ne": true}
		}
	}
	return s.maintenance.FindMaintenance(ctx, filter)
}

// GetMaintenance returns one maintenance record.
func (s *Service) GetMaintenance(ctx context.Context, id string) (*models.Maintenance, error) {
	return s.maintenance.FindMaintenanceByID(ctx, id)
}

// CreateMaintenance stores a maintenance window unless the vehicle already
// has an uncompleted window overlapping it.
func (s *Service) CreateMaintenance(ctx context.Context, in MaintenanceInput) (*models.Maintenance, error) {
	m, err := s.maintenanceFromInput(in)
	if err != nil {
		return nil, err
	}

	err = s.locked(ctx, vehicleKeys(m.VehicleID), func() error {
		m.ID = primitive.NewObjectID()
		if err := s.detector.CheckMaintenance(ctx, &m); err != nil {
			return err
		}
		now := s.now()
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := s.maintenance.InsertMaintenance(ctx, m); err != nil {
			return fmt.Errorf("insert maintenance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"maintenance_id": m.ID.Hex(), "vehicle_id": m.VehicleID}).Info("Maintenance scheduled")
	s.publisher.Publish(s.maintenanceEvent(events.MaintenanceCreated, &m))
	return &m, nil
}

// UpdateMaintenance replaces an uncompleted maintenance record.
func (s *Service) UpdateMaintenance(ctx context.Context, id string, in MaintenanceInput) (*models.Maintenance, error) {
	m, err := s.maintenanceFromInput(in)
	if err != nil {
		return nil, err
	}

	err = s.lockedMaintenance(ctx, id, m.VehicleID, func(existing *models.Maintenance) error {
		if existing.Completed {
			return fmt.Errorf("maintenance %s is completed: %w", id, ErrInactiveRecord)
		}
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt

		if err := s.detector.CheckMaintenance(ctx, &m); err != nil {
			return err
		}
		m.UpdatedAt = s.now()
		if err := s.maintenance.UpdateMaintenance(ctx, id, m); err != nil {
			if errors.Is(err, db.ErrStateChanged) {
				return fmt.Errorf("maintenance %s was completed during the update: %w", id, ErrInactiveRecord)
			}
			return fmt.Errorf("update maintenance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("maintenance_id", id).Info("Maintenance updated")
	s.publisher.Publish(s.maintenanceEvent(events.MaintenanceUpdated, &m))
	return &m, nil
}

// CompleteMaintenance closes a maintenance window. An empty completedOn
// means today unless the record already carries a completion date.
func (s *Service) CompleteMaintenance(ctx context.Context, id, completedOn string) (*models.Maintenance, error) {
	day := conflict.Day(s.now())
	if completedOn != "" {
		var err error
		if day, err = ParseDay(completedOn); err != nil {
			return nil, invalidField("completion_date", "invalid date")
		}
	}

	var m *models.Maintenance
	err := s.lockedMaintenance(ctx, id, "", func(current *models.Maintenance) error {
		m = current
		if m.Completed {
			return fmt.Errorf("maintenance %s is already completed: %w", id, ErrInactiveRecord)
		}
		if m.CompletionDate == nil && day.Before(conflict.Day(m.MaintenanceDate)) {
			return invalidField("completion_date", conflict.ErrEndBeforeStart.Error())
		}
		if err := s.maintenance.CompleteMaintenance(ctx, id, day); err != nil {
			if errors.Is(err, db.ErrStateChanged) {
				return fmt.Errorf("maintenance %s is already completed: %w", id, ErrInactiveRecord)
			}
			return fmt.Errorf("complete maintenance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.Completed = true
	if m.CompletionDate == nil {
		m.CompletionDate = &day
	}
	m.UpdatedAt = s.now()

	log.WithField("maintenance_id", id).Info("Maintenance completed")
	s.publisher.Publish(s.maintenanceEvent(events.MaintenanceCompleted, m))
	return m, nil
}
