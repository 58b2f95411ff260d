package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoScheduleCollection implements ScheduleCollection for MongoDB.
type MongoScheduleCollection struct {
	Collection *mongo.Collection
}

// InsertSchedule inserts a schedule into the collection.
func (c *MongoScheduleCollection) InsertSchedule(ctx context.Context, schedule models.Schedule) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if schedule.ID.IsZero() {
		schedule.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	_, err := c.Collection.InsertOne(ctx, schedule)
	return err
}

// FindSchedules queries schedules ordered by start date.
func (c *MongoScheduleCollection) FindSchedules(ctx context.Context, filter bson.M) ([]models.Schedule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}})
	return findAll[models.Schedule](ctx, c.Collection, filter, opts)
}

// FindScheduleByID finds a schedule by its ID.
func (c *MongoScheduleCollection) FindScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	return findByID[models.Schedule](ctx, c.Collection, "schedule", id)
}

// UpdateSchedule rewrites the resources, dates and notes of a schedule
// whose status is still schedule.Status. The status itself is never written.
func (c *MongoScheduleCollection) UpdateSchedule(ctx context.Context, id string, schedule models.Schedule) error {
	return updateWhere(ctx, c.Collection, "schedule", id,
		bson.M{"status": schedule.Status},
		bson.M{"$set": bson.M{
			"vehicle_id": schedule.VehicleID,
			"driver_id":  schedule.DriverID,
			"start_date": schedule.StartDate,
			"end_date":   schedule.EndDate,
			"purpose":    schedule.Purpose,
			"notes":      schedule.Notes,
			"updated_at": time.Now(),
		}},
	)
}

// UpdateScheduleStatus moves a schedule from one status to another. It
// fails with ErrStateChanged when the stored status is no longer from.
func (c *MongoScheduleCollection) UpdateScheduleStatus(ctx context.Context, id string, from, to models.ScheduleStatus) error {
	return updateWhere(ctx, c.Collection, "schedule", id,
		bson.M{"status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
}
