package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduleStatus is the lifecycle state of a schedule.
type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "pending"
	StatusAssigned  ScheduleStatus = "assigned"
	StatusCompleted ScheduleStatus = "completed"
	StatusCanceled  ScheduleStatus = "canceled"
)

// InactiveStatuses lists the statuses excluded from conflict checks.
var InactiveStatuses = []ScheduleStatus{StatusCompleted, StatusCanceled}

// IsValid checks if a status is one of the known values.
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a schedule in this status still blocks its resources.
func (s ScheduleStatus) IsActive() bool {
	return s == StatusPending || s == StatusAssigned
}

// CanTransitionTo reports whether moving from s to next is allowed.
// completed and canceled are terminal.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusAssigned || next == StatusCanceled
	case StatusAssigned:
		return next == StatusCompleted || next == StatusCanceled
	default:
		return false
	}
}

// ResourceKind identifies what a schedule blocks.
type ResourceKind string

const (
	ResourceVehicle ResourceKind = "vehicle"
	ResourceDriver  ResourceKind = "driver"
)

// Field returns the schedule document field holding the resource reference.
func (k ResourceKind) Field() string {
	if k == ResourceDriver {
		return "driver_id"
	}
	return "vehicle_id"
}

// Schedule assigns a vehicle and/or a driver over a date range. A nil
// EndDate means the assignment is open-ended.
type Schedule struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleID string             `bson:"vehicle_id" json:"vehicle_id,omitempty"`
	DriverID  string             `bson:"driver_id" json:"driver_id,omitempty"`
	StartDate time.Time          `bson:"start_date" json:"start_date"`
	EndDate   *time.Time         `bson:"end_date" json:"end_date"`
	Status    ScheduleStatus     `bson:"status" json:"status"`
	Purpose   string             `bson:"purpose" json:"purpose,omitempty"`
	Notes     string             `bson:"notes" json:"notes,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// ResourceID returns the id the schedule holds for the given kind.
func (s *Schedule) ResourceID(kind ResourceKind) string {
	if kind == ResourceDriver {
		return s.DriverID
	}
	return s.VehicleID
}
