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

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = now
	}
	vehicle.UpdatedAt = now
	_, err := c.Collection.InsertOne(ctx, vehicle)
	return err
}

// FindVehicles queries vehicle records ordered by plate number.
func (c *MongoVehicleCollection) FindVehicles(ctx context.Context, filter bson.M) ([]models.Vehicle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "plate_number", Value: 1}})
	return findAll[models.Vehicle](ctx, c.Collection, filter, opts)
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	return findByID[models.Vehicle](ctx, c.Collection, "vehicle", id)
}

// UpdateVehicle replaces a vehicle by its ID.
func (c *MongoVehicleCollection) UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	vehicle.UpdatedAt = time.Now()
	if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
		vehicle.ID = objectID
	}
	return replaceByID(ctx, c.Collection, "vehicle", id, vehicle)
}

// DeleteVehicle deletes a vehicle by its ID.
func (c *MongoVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	return deleteByID(ctx, c.Collection, "vehicle", id)
}
