package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Vehicle is the payload accepted by POST /vehicles.
type Vehicle struct {
	PlateNumber     string   `json:"plate_number"`
	Type            string   `json:"type"`
	Make            string   `json:"make"`
	Model           string   `json:"model"`
	Year            int      `json:"year"`
	CurrentLocation Location `json:"current_location,omitempty"`
	Status          string   `json:"status"`
}

// Driver is the payload accepted by POST /drivers.
type Driver struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	LicenseNumber string `json:"license_number"`
	Status        string `json:"status"`
}

// Schedule is the payload accepted by POST /schedules.
type Schedule struct {
	VehicleID string  `json:"vehicle_id,omitempty"`
	DriverID  string  `json:"driver_id,omitempty"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
	Status    string  `json:"status,omitempty"`
	Purpose   string  `json:"purpose,omitempty"`
}

// Outcome classifies the API's answer to a booking attempt.
type Outcome int

const (
	Booked Outcome = iota
	Conflicted
	Busy
)

func (o Outcome) String() string {
	switch o {
	case Booked:
		return "booked"
	case Conflicted:
		return "conflict"
	case Busy:
		return "busy"
	}
	return "unknown"
}

// Depots used as home locations for seeded vehicles
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278},  // London
	{Lat: 40.4168, Lon: -3.7038},  // Madrid
	{Lat: 48.8566, Lon: 2.3522},   // Paris
	{Lat: 52.5200, Lon: 13.4050},  // Berlin
	{Lat: 41.0082, Lon: 28.9784},  // Istanbul
	{Lat: 51.4816, Lon: -3.1791},  // Cardiff
	{Lat: 43.6532, Lon: -79.3832}, // Toronto
}

var (
	firstNames = []string{"Ana", "Ben", "Chloe", "Deniz", "Elif", "Farid", "Grace", "Hugo", "Ines", "Jonas"}
	lastNames  = []string{"Silva", "Okafor", "Martin", "Yilmaz", "Novak", "Haddad", "Evans", "Moreau", "Costa", "Berg"}
	purposes   = []string{"delivery", "site visit", "airport transfer", "client meeting", "warehouse run"}
)

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func randomLocation() Location {
	base := cities[rand.Intn(len(cities))]
	return jitterLocation(base, 500)
}

var authToken string

func authorizedPost(url string, contentType string, body *bytes.Buffer) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

// postForID posts payload and returns the "id" of the created record.
func postForID(url string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := authorizedPost(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("creation failed with status: %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	id, ok := result["id"].(string)
	if !ok || id == "" {
		return "", errors.New("invalid ID in response")
	}
	return id, nil
}

func createVehicle(apiURL string, index int, vtype string) (string, error) {
	makes := map[string][]string{
		"ICE": {"Ford", "Chevrolet", "Toyota", "Honda", "BMW"},
		"EV":  {"Tesla", "Nissan", "Chevrolet", "Ford", "Audi"},
	}
	models := map[string][]string{
		"ICE": {"Transit", "Express", "Hiace", "Civic", "X5"},
		"EV":  {"Model 3", "Leaf", "Bolt", "Mach-E", "e-tron"},
	}

	vehicle := Vehicle{
		PlateNumber:     fmt.Sprintf("FLT-%04d", index),
		Type:            vtype,
		Make:            makes[vtype][rand.Intn(len(makes[vtype]))],
		Model:           models[vtype][rand.Intn(len(models[vtype]))],
		Year:            2020 + rand.Intn(5),
		CurrentLocation: randomLocation(),
		Status:          "active",
	}

	id, err := postForID(apiURL+"/vehicles", vehicle)
	if err != nil {
		return "", fmt.Errorf("failed to create vehicle: %w", err)
	}

	log.WithFields(log.Fields{
		"vehicle_id": id,
		"plate":      vehicle.PlateNumber,
		"make":       vehicle.Make,
		"model":      vehicle.Model,
	}).Info("Created vehicle")

	return id, nil
}

func createDriver(apiURL string, index int) (string, error) {
	driver := Driver{
		FirstName:     firstNames[rand.Intn(len(firstNames))],
		LastName:      lastNames[rand.Intn(len(lastNames))],
		LicenseNumber: fmt.Sprintf("DL-%06d", index),
		Status:        "active",
	}

	id, err := postForID(apiURL+"/drivers", driver)
	if err != nil {
		return "", fmt.Errorf("failed to create driver: %w", err)
	}

	log.WithFields(log.Fields{
		"driver_id": id,
		"license":   driver.LicenseNumber,
	}).Info("Created driver")

	return id, nil
}

// randomSchedule books a random vehicle and driver within horizonDays of from.
// Roughly one in ten bookings is open-ended.
func randomSchedule(vehicleIDs, driverIDs []string, from time.Time, horizonDays int) Schedule {
	start := from.AddDate(0, 0, rand.Intn(horizonDays))
	s := Schedule{
		StartDate: start.Format("2006-01-02"),
		Purpose:   purposes[rand.Intn(len(purposes))],
	}
	if len(vehicleIDs) > 0 {
		s.VehicleID = vehicleIDs[rand.Intn(len(vehicleIDs))]
	}
	if len(driverIDs) > 0 && rand.Intn(4) > 0 {
		s.DriverID = driverIDs[rand.Intn(len(driverIDs))]
	}
	if rand.Intn(10) > 0 {
		end := start.AddDate(0, 0, rand.Intn(5)).Format("2006-01-02")
		s.EndDate = &end
	}
	if rand.Intn(2) == 0 {
		s.Status = "assigned"
	}
	return s
}

// createSchedule posts a booking. A 409 is an expected answer and is
// reported through the Outcome rather than as an error.
func createSchedule(apiURL string, s Schedule) (Outcome, string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal schedule: %w", err)
	}

	resp, err := authorizedPost(apiURL+"/schedules", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create schedule: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		ID      string `json:"id"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		return Booked, body.ID, nil
	case http.StatusConflict:
		if body.Error == "conflict" {
			return Conflicted, body.Message, nil
		}
		return Busy, body.Message, nil
	default:
		return 0, "", fmt.Errorf("schedule creation failed with status %d: %s", resp.StatusCode, body.Message)
	}
}

type tally struct {
	mu     sync.Mutex
	counts map[Outcome]int
	failed int
}

func (t *tally) add(o Outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failed++
		return
	}
	if t.counts == nil {
		t.counts = make(map[Outcome]int)
	}
	t.counts[o]++
}

// seedSchedules fires count bookings from workers goroutines so that
// concurrent requests for the same resource reach the server together.
func seedSchedules(apiURL string, vehicleIDs, driverIDs []string, count, workers, horizonDays int) *tally {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan Schedule)
	result := &tally{}
	from := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				outcome, detail, err := createSchedule(apiURL, s)
				result.add(outcome, err)
				entry := log.WithFields(log.Fields{
					"vehicle_id": s.VehicleID,
					"driver_id":  s.DriverID,
					"start_date": s.StartDate,
				})
				switch {
				case err != nil:
					entry.WithError(err).Error("Booking failed")
				case outcome == Booked:
					entry.WithField("schedule_id", detail).Info("Booked schedule")
				default:
					entry.WithField("outcome", outcome.String()).Warn(detail)
				}
			}
		}()
	}

	for i := 0; i < count; i++ {
		jobs <- randomSchedule(vehicleIDs, driverIDs, from, horizonDays)
	}
	close(jobs)
	wg.Wait()
	return result
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func main() {
	// Seeding needs a manager token
	authToken = os.Getenv("SEED_AUTH_TOKEN")

	fleetSize := envInt("FLEET_SIZE", 10)
	driverCount := envInt("DRIVER_COUNT", fleetSize)
	scheduleCount := envInt("SCHEDULE_COUNT", 50)
	workers := envInt("SEED_WORKERS", 4)
	horizon := envInt("SEED_HORIZON_DAYS", 30)
	if horizon < 1 {
		horizon = 1
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"drivers":    driverCount,
		"schedules":  scheduleCount,
		"api_url":    apiURL,
	}).Info("Starting fleet seeding")

	vehicleIDs := make([]string, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		vtype := []string{"ICE", "EV"}[rand.Intn(2)]
		id, err := createVehicle(apiURL, i+1, vtype)
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		vehicleIDs = append(vehicleIDs, id)
	}

	driverIDs := make([]string, 0, driverCount)
	for i := 0; i < driverCount; i++ {
		id, err := createDriver(apiURL, i+1)
		if err != nil {
			log.WithError(err).Error("Failed to create driver")
			continue
		}
		driverIDs = append(driverIDs, id)
	}

	if len(vehicleIDs) == 0 {
		log.Error("No vehicles created. Ensure SEED_AUTH_TOKEN is valid and API is reachable. Exiting.")
		os.Exit(1)
	}

	result := seedSchedules(apiURL, vehicleIDs, driverIDs, scheduleCount, workers, horizon)
	log.WithFields(log.Fields{
		"booked":    result.counts[Booked],
		"conflicts": result.counts[Conflicted],
		"busy":      result.counts[Busy],
		"failed":    result.failed,
	}).Info("Seeding completed")
}
