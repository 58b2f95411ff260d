package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PlateNumber     string             `bson:"plate_number" json:"plate_number" validate:"required,max=20"`
	Type            string             `bson:"type" json:"type" validate:"omitempty,oneof=ICE EV"` // "ICE" or "EV"
	Make            string             `bson:"make" json:"make" validate:"required"`
	Model           string             `bson:"model" json:"model" validate:"required"`
	Year            int                `bson:"year" json:"year" validate:"omitempty,gte=1950,lte=2100"`
	CurrentLocation Location           `bson:"current_location" json:"current_location"`
	Status          string             `bson:"status" json:"status" validate:"omitempty,oneof=active inactive"` // "active" or "inactive"
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// DisplayName is the label used when a vehicle is named in messages.
func (v *Vehicle) DisplayName() string {
	name := strings.TrimSpace(v.Make + " " + v.Model)
	switch {
	case name == "" && v.PlateNumber == "":
		return v.ID.Hex()
	case name == "":
		return v.PlateNumber
	case v.PlateNumber == "":
		return name
	}
	return fmt.Sprintf("%s (%s)", name, v.PlateNumber)
}
