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

// MongoDriverCollection implements DriverCollection for MongoDB.
type MongoDriverCollection struct {
	Collection *mongo.Collection
}

// InsertDriver inserts a driver record into the collection.
func (c *MongoDriverCollection) InsertDriver(ctx context.Context, driver models.Driver) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	if driver.ID.IsZero() {
		driver.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = now
	}
	driver.UpdatedAt = now
	_, err := c.Collection.InsertOne(ctx, driver)
	return err
}

// FindDrivers queries driver records ordered by last name.
func (c *MongoDriverCollection) FindDrivers(ctx context.Context, filter bson.M) ([]models.Driver, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}})
	return findAll[models.Driver](ctx, c.Collection, filter, opts)
}

// FindDriverByID finds a driver by its ID.
func (c *MongoDriverCollection) FindDriverByID(ctx context.Context, id string) (*models.Driver, error) {
	return findByID[models.Driver](ctx, c.Collection, "driver", id)
}

// UpdateDriver replaces a driver by its ID.
func (c *MongoDriverCollection) UpdateDriver(ctx context.Context, id string, driver models.Driver) error {
	driver.UpdatedAt = time.Now()
	if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
		driver.ID = objectID
	}
	return replaceByID(ctx, c.Collection, "driver", id, driver)
}

// DeleteDriver deletes a driver by its ID.
func (c *MongoDriverCollection) DeleteDriver(ctx context.Context, id string) error {
	return deleteByID(ctx, c.Collection, "driver", id)
}
