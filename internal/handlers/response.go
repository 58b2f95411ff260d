package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/middleware"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
)

// conflictResponse is the 409 body for a double booking.
type conflictResponse struct {
	Error         string  `json:"error"`
	ResourceType  string  `json:"resource_type"`
	ResourceID    string  `json:"resource_id"`
	ResourceName  string  `json:"resource_name"`
	RecordType    string  `json:"record_type"`
	ConflictingID string  `json:"conflicting_id"`
	StartDate     string  `json:"start_date"`
	EndDate       *string `json:"end_date"`
	Message       string  `json:"message"`
}

func newConflictResponse(ce *conflict.ConflictError) conflictResponse {
	resp := conflictResponse{
		Error:         "conflict",
		ResourceType:  string(ce.ResourceType),
		ResourceID:    ce.ResourceID,
		ResourceName:  ce.ResourceName,
		RecordType:    ce.RecordType,
		ConflictingID: ce.ConflictingID,
		StartDate:     formatDay(ce.StartDate),
		Message:       ce.Message(),
	}
	if ce.EndDate != nil {
		end := formatDay(*ce.EndDate)
		resp.EndDate = &end
	}
	return resp
}

func formatDay(t time.Time) string {
	return t.UTC().Format(conflict.DateLayout)
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// readJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 && allowEmpty {
		return nil
	}
	return json.Unmarshal(body, v)
}

// writeBodyError answers a request whose body readJSON rejected.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "Invalid JSON", http.StatusBadRequest)
}

// writeError maps service and store errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *conflict.ConflictError
	var ve *scheduling.ValidationError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, newConflictResponse(ce))
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Fields: ve.Fields})
	case errors.Is(err, scheduling.ErrResourceBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "resource busy", Message: "Another booking for this resource is in progress, retry shortly"})
	case errors.Is(err, scheduling.ErrInvalidTransition), errors.Is(err, scheduling.ErrInactiveRecord):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "invalid state", Message: err.Error()})
	case errors.Is(err, db.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id", Message: err.Error()})
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Message: err.Error()})
	default:
		log.WithError(err).WithFields(log.Fields{
			"request_id": middleware.RequestID(r.Context()),
			"path":       r.URL.Path,
		}).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
