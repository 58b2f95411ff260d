package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record types named in a ConflictError.
const (
	RecordSchedule    = "schedule"
	RecordMaintenance = "maintenance"
)

// ScheduleFinder runs schedule queries.
type ScheduleFinder interface {
	FindSchedules(ctx context.Context, filter bson.M) ([]models.Schedule, error)
}

// MaintenanceFinder runs maintenance queries.
type MaintenanceFinder interface {
	FindMaintenance(ctx context.Context, filter bson.M) ([]models.Maintenance, error)
}

// VehicleLookup resolves vehicle identities for conflict messages.
type VehicleLookup interface {
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
}

// DriverLookup resolves driver identities for conflict messages.
type DriverLookup interface {
	FindDriverByID(ctx context.Context, id string) (*models.Driver, error)
}

// Recorder observes conflict checks.
type Recorder interface {
	ObserveCheck(record string, conflicted bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(string, bool, time.Duration) {}

// ConflictError describes the first active record that collides with a
// candidate range. It is rendered as the body of a 409 response.
type ConflictError struct {
	ResourceType  models.ResourceKind `json:"resource_type"`
	ResourceID    string              `json:"resource_id"`
	ResourceName  string              `json:"resource_name"`
	RecordType    string              `json:"record_type"`
	ConflictingID string              `json:"conflicting_id"`
	StartDate     time.Time           `json:"start_date"`
	EndDate       *time.Time          `json:"end_date"`
}

func (e *ConflictError) Error() string {
	return e.Message()
}

// Message is the human-readable form shown to users.
func (e *ConflictError) Message() string {
	kind := string(e.ResourceType)
	if kind != "" {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	what := "is already scheduled"
	if e.RecordType == RecordMaintenance {
		what = "is in maintenance"
	}
	period := Period{Start: e.StartDate, End: e.EndDate}
	return fmt.Sprintf("%s %s %s %s", kind, e.ResourceName, what, period)
}

// Detector finds active records overlapping a candidate range.
type Detector struct {
	schedules   ScheduleFinder
	maintenance MaintenanceFinder
	vehicles    VehicleLookup
	drivers     DriverLookup
	recorder    Recorder
}

// Option configures a Detector.
type Option func(*Detector)

// WithRecorder reports every check to r.
func WithRecorder(r Recorder) Option {
	return func(d *Detector) {
		if r != nil {
			d.recorder = r
		}
	}
}

// NewDetector creates a detector. The lookups are only used to name the
// colliding resource and may be nil.
func NewDetector(schedules ScheduleFinder, maintenance MaintenanceFinder, vehicles VehicleLookup, drivers DriverLookup, opts ...Option) *Detector {
	d := &Detector{
		schedules:   schedules,
		maintenance: maintenance,
		vehicles:    vehicles,
		drivers:     drivers,
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScheduleConflicts returns the active schedules of the resource that
// overlap candidate, skipping exclude. An empty resource id has no
// conflicts.
func (d *Detector) ScheduleConflicts(ctx context.Context, kind models.ResourceKind, resourceID string, candidate Period, exclude primitive.ObjectID) ([]models.Schedule, error) {
	if resourceID == "" {
		return nil, nil
	}
	started := time.Now()
	records, err := d.schedules.FindSchedules(ctx, ScheduleFilter(kind, resourceID, candidate, exclude))
	if err != nil {
		return nil, fmt.Errorf("find %s schedules: %w", kind, err)
	}

	var conflicts []models.Schedule
	for i := range records {
		r := &records[i]
		if !r.Status.IsActive() || r.ID == exclude || r.ResourceID(kind) != resourceID {
			continue
		}
		if SchedulePeriod(r).Overlaps(candidate) {
			conflicts = append(conflicts, *r)
		}
	}
	d.recorder.ObserveCheck(RecordSchedule, len(conflicts) > 0, time.Since(started))
	return conflicts, nil
}

// MaintenanceConflicts returns the uncompleted maintenance windows of the
// vehicle that overlap candidate, skipping exclude.
func (d *Detector) MaintenanceConflicts(ctx context.Context, vehicleID string, candidate Period, exclude primitive.ObjectID) ([]models.Maintenance, error) {
	if vehicleID == "" {
		return nil, nil
	}
	started := time.Now()
	records, err := d.maintenance.FindMaintenance(ctx, MaintenanceFilter(vehicleID, candidate, exclude))
	if err != nil {
		return nil, fmt.Errorf("find maintenance: %w", err)
	}

	var conflicts []models.Maintenance
	for i := range records {
		r := &records[i]
		if r.Completed || r.ID == exclude || r.VehicleID != vehicleID {
			continue
		}
		if MaintenancePeriod(r).Overlaps(candidate) {
			conflicts = append(conflicts, *r)
		}
	}
	d.recorder.ObserveCheck(RecordMaintenance, len(conflicts) > 0, time.Since(started))
	return conflicts, nil
}

// CheckSchedule returns a *ConflictError when the schedule's vehicle or
// driver is already booked for an overlapping range, or when its vehicle
// has an open maintenance window in that range. Inactive schedules never
// conflict.
func (d *Detector) CheckSchedule(ctx context.Context, s *models.Schedule) error {
	if s.Status != "" && !s.Status.IsActive() {
		return nil
	}
	candidate := SchedulePeriod(s)

	for _, kind := range []models.ResourceKind{models.ResourceVehicle, models.ResourceDriver} {
		id := s.ResourceID(kind)
		conflicts, err := d.ScheduleConflicts(ctx, kind, id, candidate, s.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return d.ScheduleConflictError(ctx, kind, id, &conflicts[0])
		}
	}

	if d.maintenance != nil {
		windows, err := d.MaintenanceConflicts(ctx, s.VehicleID, candidate, primitive.NilObjectID)
		if err != nil {
			return err
		}
		if len(windows) > 0 {
			return d.MaintenanceConflictError(ctx, s.VehicleID, &windows[0])
		}
	}
	return nil
}

// CheckMaintenance returns a *ConflictError when the vehicle already has an
// uncompleted maintenance window overlapping m. Completed records never
// conflict.
func (d *Detector) CheckMaintenance(ctx context.Context, m *models.Maintenance) error {
	if m.Completed {
		return nil
	}
	windows, err := d.MaintenanceConflicts(ctx, m.VehicleID, MaintenancePeriod(m), m.ID)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}
	return d.MaintenanceConflictError(ctx, m.VehicleID, &windows[0])
}

// ScheduleConflictError describes c as the booking that already holds the
// resource of the given kind and id.
func (d *Detector) ScheduleConflictError(ctx context.Context, kind models.ResourceKind, id string, c *models.Schedule) *ConflictError {
	return d.conflictError(ctx, kind, id, RecordSchedule, c.ID, SchedulePeriod(c))
}

// MaintenanceConflictError describes w as the window that blocks vehicleID.
func (d *Detector) MaintenanceConflictError(ctx context.Context, vehicleID string, w *models.Maintenance) *ConflictError {
	return d.conflictError(ctx, models.ResourceVehicle, vehicleID, RecordMaintenance, w.ID, MaintenancePeriod(w))
}

func (d *Detector) conflictError(ctx context.Context, kind models.ResourceKind, id, record string, conflictingID primitive.ObjectID, p Period) *ConflictError {
	return &ConflictError{
		ResourceType:  kind,
		ResourceID:    id,
		ResourceName:  d.resourceName(ctx, kind, id),
		RecordType:    record,
		ConflictingID: conflictingID.Hex(),
		StartDate:     p.Start,
		EndDate:       p.End,
	}
}

// resourceName falls back to the id when the resource cannot be resolved.
func (d *Detector) resourceName(ctx context.Context, kind models.ResourceKind, id string) string {
	switch kind {
	case models.ResourceVehicle:
		if d.vehicles == nil {
			return id
		}
		v, err := d.vehicles.FindVehicleByID(ctx, id)
		if err != nil || v == nil {
			log.WithError(err).WithField("vehicle_id", id).Debug("Could not resolve vehicle name")
			return id
		}
		return v.DisplayName()
	case models.ResourceDriver:
		if d.drivers == nil {
			return id
		}
		dr, err := d.drivers.FindDriverByID(ctx, id)
		if err != nil || dr == nil {
			log.WithError(err).WithField("driver_id", id).Debug("Could not resolve driver name")
			return id
		}
		return dr.FullName()
	}
	return id
}
