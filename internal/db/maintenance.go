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

// MongoMaintenanceCollection implements MaintenanceCollection for MongoDB.
type MongoMaintenanceCollection struct {
	Collection *mongo.Collection
}

// InsertMaintenance inserts a maintenance record into the collection.
func (c *MongoMaintenanceCollection) InsertMaintenance(ctx context.Context, maintenance models.Maintenance) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if maintenance.ID.IsZero() {
		maintenance.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if maintenance.CreatedAt.IsZero() {
		maintenance.CreatedAt = now
	}
	maintenance.UpdatedAt = now
	_, err := c.Collection.InsertOne(ctx, maintenance)
	return err
}

// FindMaintenance queries maintenance records ordered by maintenance date.
func (c *MongoMaintenanceCollection) FindMaintenance(ctx context.Context, filter bson.M) ([]models.Maintenance, error) {
	opts := options.Find().SetSort(bson.D{{Key: "maintenance_date", Value: 1}})
	return findAll[models.Maintenance](ctx, c.Collection, filter, opts)
}

// FindMaintenanceByID finds a maintenance record by its ID.
func (c *MongoMaintenanceCollection) FindMaintenanceByID(ctx context.Context, id string) (*models.Maintenance, error) {
	return findByID[models.Maintenance](ctx, c.Collection, "maintenance", id)
}

// UpdateMaintenance rewrites the fields of a maintenance record that has
// not been completed. The completed flag itself is never written here.
func (c *MongoMaintenanceCollection) UpdateMaintenance(ctx context.Context, id string, maintenance models.Maintenance) error {
	return updateWhere(ctx, c.Collection, "maintenance", id,
		bson.M{"completed": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"vehicle_id":       maintenance.VehicleID,
			"service_type":     maintenance.ServiceType,
			"description":      maintenance.Description,
			"maintenance_date": maintenance.MaintenanceDate,
			"completion_date":  maintenance.CompletionDate,
			"mileage":          maintenance.Mileage,
			"cost":             maintenance.Cost,
			"technician":       maintenance.Technician,
			"service_location": maintenance.ServiceLocation,
			"priority":         maintenance.Priority,
			"notes":            maintenance.Notes,
			"updated_at":       time.Now(),
		}},
	)
}

// CompleteMaintenance marks an open record completed. An existing completion
// date is kept; otherwise completedOn is stored. A record completed in the
// meantime fails with ErrStateChanged.
func (c *MongoMaintenanceCollection) CompleteMaintenance(ctx context.Context, id string, completedOn time.Time) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"completed":       true,
			"completion_date": bson.M{"$ifNull": bson.A{"$completion_date", completedOn}},
			"updated_at":      time.Now(),
		}}},
	}
	return updateWhere(ctx, c.Collection, "maintenance", id, bson.M{"completed": bson.M{"$ne": true}}, update)
}
