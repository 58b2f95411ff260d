package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Driver represents a person who can be scheduled on a vehicle.
type Driver struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	FirstName     string             `bson:"first_name" json:"first_name" validate:"required"`
	LastName      string             `bson:"last_name" json:"last_name" validate:"required"`
	LicenseNumber string             `bson:"license_number" json:"license_number" validate:"required"`
	Phone         string             `bson:"phone" json:"phone"`
	Email         string             `bson:"email" json:"email" validate:"omitempty,email"`
	Status        string             `bson:"status" json:"status" validate:"omitempty,oneof=active inactive"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// FullName returns the driver's name, or the id when no name is recorded.
func (d *Driver) FullName() string {
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	if name == "" {
		return d.ID.Hex()
	}
	return name
}
