package conflict

import (
	"github.com/ukydev/fleet-scheduler/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScheduleFilter translates the overlap predicate into a schedules query:
// active records for the resource whose start is on or before the candidate
// end and whose end is missing or on or after the candidate start. A zero
// exclude matches every record.
func ScheduleFilter(kind models.ResourceKind, resourceID string, candidate Period, exclude primitive.ObjectID) bson.M {
	filter := bson.M{
		kind.Field(): resourceID,
		"status":     bson.M{"$nin": models.InactiveStatuses},
		"$or": bson.A{
			bson.M{"end_date": nil},
			bson.M{"end_date": bson.M{"$gte": candidate.Start}},
		},
	}
	if candidate.End != nil {
		filter["start_date"] = bson.M{"$lte": *candidate.End}
	}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	return filter
}

// MaintenanceFilter is the maintenance counterpart of ScheduleFilter.
// Completed windows never match. A window with no completion date matches
// any candidate ending on or after its maintenance date, which covers the
// still-open window that began before the candidate start.
func MaintenanceFilter(vehicleID string, candidate Period, exclude primitive.ObjectID) bson.M {
	filter := bson.M{
		"vehicle_id": vehicleID,
		"completed":  bson.M{"$ne": true},
		"$or": bson.A{
			bson.M{"completion_date": nil},
			bson.M{"completion_date": bson.M{"$gte": candidate.Start}},
		},
	}
	if candidate.End != nil {
		filter["maintenance_date"] = bson.M{"$lte": *candidate.End}
	}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	return filter
}
