package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Maintenance represents a vehicle maintenance window. A nil CompletionDate
// on an uncompleted record means the vehicle stays out of service
// indefinitely.
type Maintenance struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID       string             `json:"vehicle_id" bson:"vehicle_id"`
	ServiceType     string             `json:"service_type" bson:"service_type"` // "oil_change", "tire_rotation", "brake_service", "battery_service", "inspection"
	Description     string             `json:"description" bson:"description"`
	MaintenanceDate time.Time          `json:"maintenance_date" bson:"maintenance_date"`
	CompletionDate  *time.Time         `json:"completion_date" bson:"completion_date"`
	Completed       bool               `json:"completed" bson:"completed"`
	Mileage         float64            `json:"mileage" bson:"mileage"` // in kilometers
	Cost            float64            `json:"cost" bson:"cost"`       // in USD
	Technician      string             `json:"technician" bson:"technician"`
	ServiceLocation string             `json:"service_location" bson:"service_location"`
	Priority        string             `json:"priority" bson:"priority"` // "low", "medium", "high", "critical"
	Notes           string             `json:"notes" bson:"notes"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}
