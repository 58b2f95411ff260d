package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollVehicles    = "vehicles"
	CollDrivers     = "drivers"
	CollSchedules   = "schedules"
	CollMaintenance = "maintenance"
	CollUsers       = "users"
	CollLocks       = "booking_locks"
)

var (
	// ErrNotFound is wrapped by every lookup that matches no document.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is wrapped when an id is not a valid ObjectID hex string.
	ErrInvalidID = errors.New("invalid id")
	// ErrNilCollection is returned when a wrapper has no backing collection.
	ErrNilCollection = errors.New("mongo collection is nil")
	// ErrStateChanged is wrapped when a conditional write finds the document
	// but no longer in the state the caller read.
	ErrStateChanged = errors.New("state changed")
)

// ConnectMongo connects to MongoDB and pings it within timeout.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the conflict queries and lookups rely on.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		CollSchedules: {
			{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
		},
		CollMaintenance: {
			{Keys: bson.D{{Key: "vehicle_id", Value: 1}, {Key: "completed", Value: 1}, {Key: "maintenance_date", Value: 1}}},
		},
		CollUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollVehicles: {
			{Keys: bson.D{{Key: "plate_number", Value: 1}}},
		},
		CollLocks: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
	}
	for name, indexes := range specs {
		if _, err := database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
		log.WithField("collection", name).Debug("Ensured indexes")
	}
	return nil
}

// Store groups the collections used by the service.
type Store struct {
	Vehicles    *MongoVehicleCollection
	Drivers     *MongoDriverCollection
	Schedules   *MongoScheduleCollection
	Maintenance *MongoMaintenanceCollection
	Users       *MongoUserCollection
	Locks       *MongoLocker
}

// NewStore wires every collection of database.
func NewStore(database *mongo.Database, lockTTL time.Duration) *Store {
	return &Store{
		Vehicles:    &MongoVehicleCollection{Collection: database.Collection(CollVehicles)},
		Drivers:     &MongoDriverCollection{Collection: database.Collection(CollDrivers)},
		Schedules:   &MongoScheduleCollection{Collection: database.Collection(CollSchedules)},
		Maintenance: &MongoMaintenanceCollection{Collection: database.Collection(CollMaintenance)},
		Users:       &MongoUserCollection{Collection: database.Collection(CollUsers)},
		Locks:       NewMongoLocker(database.Collection(CollLocks), lockTTL),
	}
}

// parseID converts a hex id, wrapping ErrInvalidID on failure.
func parseID(what, id string) (primitive.ObjectID, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s %q: %w", what, id, ErrInvalidID)
	}
	return objectID, nil
}

// findAll decodes every document matching filter.
func findAll[T any](ctx context.Context, c *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	if c == nil {
		return nil, ErrNilCollection
	}
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// findByID decodes the document with the given hex id. what names the
// entity in errors.
func findByID[T any](ctx context.Context, c *mongo.Collection, what, id string) (*T, error) {
	if c == nil {
		return nil, ErrNilCollection
	}
	objectID, err := parseID(what, id)
	if err != nil {
		return nil, err
	}
	var out T
	err = c.FindOne(ctx, bson.M{"_id": objectID}).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s %w", what, ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

// replaceByID replaces the document with the given hex id.
func replaceByID(ctx context.Context, c *mongo.Collection, what, id string, doc interface{}) error {
	if c == nil {
		return ErrNilCollection
	}
	objectID, err := parseID(what, id)
	if err != nil {
		return err
	}
	result, err := c.ReplaceOne(ctx, bson.M{"_id": objectID}, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

// updateWhere applies update to the document with the given hex id when it
// also matches cond. A miss is reported as ErrNotFound or ErrStateChanged.
func updateWhere(ctx context.Context, c *mongo.Collection, what, id string, cond bson.M, update interface{}) error {
	if c == nil {
		return ErrNilCollection
	}
	objectID, err := parseID(what, id)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": objectID}
	for k, v := range cond {
		filter[k] = v
	}
	result, err := c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount > 0 {
		return nil
	}
	n, err := c.CountDocuments(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s %w", what, ErrStateChanged)
}

// deleteByID removes the document with the given hex id.
func deleteByID(ctx context.Context, c *mongo.Collection, what, id string) error {
	if c == nil {
		return ErrNilCollection
	}
	objectID, err := parseID(what, id)
	if err != nil {
		return err
	}
	result, err := c.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}
