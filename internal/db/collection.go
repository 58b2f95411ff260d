package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
	FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error
	DeleteVehicle(ctx context.Context, id string) error
}

// DriverCollection defines the interface for driver data operations.
type DriverCollection interface {
	InsertDriver(ctx context.Context, driver models.Driver) error
	FindDrivers(ctx context.Context, filter bson.M) ([]models.Driver, error)
	FindDriverByID(ctx context.Context, id string) (*models.Driver, error)
	UpdateDriver(ctx context.Context, id string, driver models.Driver) error
	DeleteDriver(ctx context.Context, id string) error
}

// ScheduleCollection defines the interface for schedule data operations.
type ScheduleCollection interface {
	InsertSchedule(ctx context.Context, schedule models.Schedule) error
	FindSchedules(ctx context.Context, filter bson.M) ([]models.Schedule, error)
	FindScheduleByID(ctx context.Context, id string) (*models.Schedule, error)
	UpdateSchedule(ctx context.Context, id string, schedule models.Schedule) error
	UpdateScheduleStatus(ctx context.Context, id string, from, to models.ScheduleStatus) error
}

// MaintenanceCollection defines the interface for maintenance data operations.
type MaintenanceCollection interface {
	InsertMaintenance(ctx context.Context, maintenance models.Maintenance) error
	FindMaintenance(ctx context.Context, filter bson.M) ([]models.Maintenance, error)
	FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error)
	UpdateMaintenance(ctx context.Context, id string, maintenance models.Maintenance) error
	CompleteMaintenance(ctx context.Context, id string, completedOn time.Time) error
}
