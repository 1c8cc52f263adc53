package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carebridge/hms/internal/directory"
	"github.com/carebridge/hms/internal/inventory"
	"github.com/carebridge/hms/internal/scheduling"
	"github.com/carebridge/hms/pkg/config"
	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Load external collaborators
	users, err := directory.Load(cfg.Directory.StaffFile, cfg.Directory.PatientFile, logger)
	if err != nil {
		logger.Fatalf("Failed to load user directory: %v", err)
	}

	medicines, err := inventory.Load(cfg.Inventory.File, logger)
	if err != nil {
		logger.Fatalf("Failed to load medicine inventory: %v", err)
	}

	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector("scheduling")
	}

	// Initialize Scheduling Service
	service, err := scheduling.New(cfg, users, medicines, logger, metrics)
	if err != nil {
		logger.Fatalf("Failed to initialize Scheduling Service: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start service in a goroutine
	go func() {
		logger.Infof("Starting Scheduling Service on %s", addr)
		if err := service.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start Scheduling Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Scheduling Service...")
	if err := service.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Scheduling Service stopped")
}
