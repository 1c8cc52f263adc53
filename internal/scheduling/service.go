package scheduling

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/carebridge/hms/pkg/config"
	"github.com/carebridge/hms/pkg/interfaces"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/monitoring"
	"github.com/carebridge/hms/pkg/rbac"
)

// Service wires the appointment store, the doctor calendars and the HTTP
// delivery layer together.
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	store     *Store
	directory interfaces.UserDirectory
	metrics   *monitoring.MetricsCollector
	server    *http.Server
	stop      chan struct{}
	stopOnce  sync.Once
}

// New creates a new scheduling service. A calendar is generated for every
// doctor in the directory over the configured date range, and the appointment
// store is loaded from its durable file.
func New(
	cfg *config.Config,
	directory interfaces.UserDirectory,
	inventory interfaces.Inventory,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) (*Service, error) {
	start, end, err := cfg.CalendarRange()
	if err != nil {
		return nil, err
	}

	calendars := make(map[string]*SlotCalendar)
	for _, doctor := range directory.ListByRole(rbac.RoleDoctor) {
		cal, err := NewSlotCalendar(doctor.ID, start, end, log)
		if err != nil {
			return nil, fmt.Errorf("failed to generate calendar for doctor %s: %w", doctor.ID, err)
		}
		calendars[doctor.ID] = cal
	}

	repo := NewFileRepository(cfg.Store.Path, log)
	store, err := NewStore(repo, directory, inventory, calendars, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open appointment store: %w", err)
	}

	return &Service{
		config:    cfg,
		logger:    log,
		store:     store,
		directory: directory,
		metrics:   metrics,
		stop:      make(chan struct{}),
	}, nil
}

// Store exposes the underlying appointment store for embedding callers
// (tests, local CLIs) that bypass HTTP.
func (s *Service) Store() *Store {
	return s.store
}

// Start starts the scheduling service HTTP server
func (s *Service) Start(addr string) error {
	router := mux.NewRouter()
	router.Use(monitoring.RequestIDMiddleware)
	if s.metrics != nil {
		router.Use(s.metrics.HTTPMiddleware)
	}
	if limit := s.config.Server.RateLimitPerMinute; limit > 0 {
		limiter := newClientLimiter(limit, time.Minute)
		limiter.startCleanup(10*time.Minute, time.Hour, s.stop)
		router.Use(limiter.middleware)
	}
	s.setupRoutes(router)

	if s.config.Monitoring.Enabled && s.metrics != nil {
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}
	router.HandleFunc(s.config.Monitoring.HealthPath, s.healthCheckHandler).Methods("GET")

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.Infof("Starting Scheduling Service on %s", addr)
	return s.server.ListenAndServe()
}

// Stop stops the scheduling service. Safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.server != nil {
		s.logger.Info("Stopping Scheduling Service")
		return s.server.Close()
	}
	return nil
}
