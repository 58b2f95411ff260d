package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-scheduler/internal/auth"
	"github.com/ukydev/fleet-scheduler/internal/config"
	"github.com/ukydev/fleet-scheduler/internal/conflict"
	"github.com/ukydev/fleet-scheduler/internal/db"
	"github.com/ukydev/fleet-scheduler/internal/events"
	"github.com/ukydev/fleet-scheduler/internal/handlers"
	"github.com/ukydev/fleet-scheduler/internal/metrics"
	"github.com/ukydev/fleet-scheduler/internal/middleware"
	"github.com/ukydev/fleet-scheduler/internal/models"
	"github.com/ukydev/fleet-scheduler/internal/scheduling"
)

// routes bundles what the HTTP router dispatches to.
type routes struct {
	auth        *handlers.AuthHandler
	schedules   *handlers.ScheduleHandler
	maintenance *handlers.MaintenanceHandler
	vehicles    *handlers.VehicleHandler
	drivers     *handlers.DriverHandler
	authMW      *middleware.AuthMiddleware
	rateLimit   func(http.Handler) http.Handler
	metrics     *metrics.Recorder
	health      func(ctx context.Context) error
}

func newRouter(rt routes) http.Handler {
	mux := http.NewServeMux()

	driver := rt.authMW.RequireRole(models.RoleDriver)
	manager := rt.authMW.RequireRole(models.RoleManager)
	admin := rt.authMW.RequireRole(models.RoleAdmin)
	handle := func(pattern string, guard func(http.Handler) http.Handler, h http.HandlerFunc) {
		mux.Handle(pattern, guard(h))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.health(ctx); err != nil {
			log.WithError(err).Warn("Health check failed")
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", rt.metrics.Handler())

	mux.HandleFunc("POST /api/auth/login", rt.auth.Login)
	mux.HandleFunc("POST /api/auth/register", rt.auth.Register)
	handle("GET /api/auth/profile", driver, rt.auth.GetProfile)
	handle("PUT /api/auth/profile", driver, rt.auth.UpdateProfile)
	handle("POST /api/auth/change-password", driver, rt.auth.ChangePassword)

	handle("GET /api/vehicles", driver, rt.vehicles.List)
	handle("GET /api/vehicles/{id}", driver, rt.vehicles.Get)
	handle("POST /api/vehicles", manager, rt.vehicles.Create)
	handle("PUT /api/vehicles/{id}", manager, rt.vehicles.Update)
	handle("DELETE /api/vehicles/{id}", admin, rt.vehicles.Delete)

	handle("GET /api/drivers", driver, rt.drivers.List)
	handle("GET /api/drivers/{id}", driver, rt.drivers.Get)
	handle("POST /api/drivers", manager, rt.drivers.Create)
	handle("PUT /api/drivers/{id}", manager, rt.drivers.Update)
	handle("DELETE /api/drivers/{id}", admin, rt.drivers.Delete)

	handle("GET /api/schedules", driver, rt.schedules.List)
	handle("GET /api/schedules/{id}", driver, rt.schedules.Get)
	handle("POST /api/schedules", manager, rt.schedules.Create)
	handle("POST /api/schedules/check", manager, rt.schedules.Check)
	handle("PUT /api/schedules/{id}", manager, rt.schedules.Update)
	handle("POST /api/schedules/{id}/status", manager, rt.schedules.Transition)

	handle("GET /api/maintenance", driver, rt.maintenance.List)
	handle("GET /api/maintenance/{id}", driver, rt.maintenance.Get)
	handle("POST /api/maintenance", manager, rt.maintenance.Create)
	handle("PUT /api/maintenance/{id}", manager, rt.maintenance.Update)
	handle("POST /api/maintenance/{id}/complete", manager, rt.maintenance.Complete)

	return middleware.Chain(mux,
		middleware.RequestLogger(rt.metrics),
		rt.rateLimit,
		rt.authMW.Authenticate,
	)
}

func connectEvents(cfg *config.Config) (events.Publisher, func()) {
	if cfg.MQTTBroker == "" {
		log.Info("MQTT_BROKER not set, lifecycle events are disabled")
		return events.Nop{}, func() {}
	}
	pub, err := events.Connect(events.Config{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		QoS:         1,
	})
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, lifecycle events are disabled")
		return events.Nop{}, func() {}
	}
	log.WithField("broker", cfg.MQTTBroker).Info("Publishing lifecycle events")
	return pub, pub.Close
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoTimeout)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	store := db.NewStore(database, cfg.LockTTL)
	recorder, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		log.WithError(err).Fatal("Failed to register metrics")
	}
	publisher, closeEvents := connectEvents(cfg)
	defer closeEvents()

	detector := conflict.NewDetector(store.Schedules, store.Maintenance, store.Vehicles, store.Drivers,
		conflict.WithRecorder(recorder))
	service := scheduling.NewService(store.Schedules, store.Maintenance, detector,
		scheduling.WithLocker(store.Locks),
		scheduling.WithPublisher(publisher),
		scheduling.WithBusyRecorder(recorder),
	)

	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	authCache := auth.NewVerificationCache(cfg.AuthCacheTTL, nil)
	validate := scheduling.NewValidator()

	handler := newRouter(routes{
		auth:        handlers.NewAuthHandler(authService, store.Users, validate, authCache),
		schedules:   handlers.NewScheduleHandler(service),
		maintenance: handlers.NewMaintenanceHandler(service),
		vehicles:    handlers.NewVehicleHandler(store.Vehicles, store.Schedules, validate),
		drivers:     handlers.NewDriverHandler(store.Drivers, store.Schedules, validate),
		authMW:      middleware.NewAuthMiddleware(authService, store.Users, authCache),
		rateLimit:   middleware.NewRateLimitMiddleware(nil).RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
		metrics:     recorder,
		health: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
