package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, user models.User) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user models.User) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.IsActive = true

	_, err := c.Collection.InsertOne(ctx, user)
	return err
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return findByID[models.User](ctx, c.Collection, "user", id)
}

// FindUserByUsername finds a user by their username
func (c *MongoUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"username": username})
}

// FindUserByEmail finds a user by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.findOne(ctx, bson.M{"email": email})
}

func (c *MongoUserCollection) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	if c.Collection == nil {
		return nil, ErrNilCollection
	}
	var user models.User
	err := c.Collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %w", ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser updates a user in the database
func (c *MongoUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	objectID, err := parseID("user", id)
	if err != nil {
		return err
	}

	user.UpdatedAt = time.Now()
	user.ID = objectID
	return replaceByID(ctx, c.Collection, "user", id, user)
}

// UpdateLastLogin updates the last login time for a user
func (c *MongoUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	if c.Collection == nil {
		return ErrNilCollection
	}
	objectID, err := parseID("user", id)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"last_login": now, "updated_at": now}},
	)
	return err
}
