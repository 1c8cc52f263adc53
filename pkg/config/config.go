package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the scheduling service
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Appointment store configuration
	Store StoreConfig `mapstructure:"store"`

	// Slot calendar configuration
	Calendar CalendarConfig `mapstructure:"calendar"`

	// User directory configuration
	Directory DirectoryConfig `mapstructure:"directory"`

	// Medicine inventory configuration
	Inventory InventoryConfig `mapstructure:"inventory"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`

	// Per-user request budget per minute; 0 disables rate limiting.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// StoreConfig holds appointment store configuration
type StoreConfig struct {
	// Path of the durable appointment file, rewritten in full on
	// every successful mutation.
	Path string `mapstructure:"path"`
}

// CalendarConfig holds the bookable date range for doctor calendars
type CalendarConfig struct {
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// DirectoryConfig holds the master-list locations of the user directory
type DirectoryConfig struct {
	StaffFile   string `mapstructure:"staff_file"`
	PatientFile string `mapstructure:"patient_file"`
}

// InventoryConfig holds the medicine inventory location
type InventoryConfig struct {
	File string `mapstructure:"file"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/carebridge")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// CalendarRange parses the configured calendar date range.
func (c *Config) CalendarRange() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", c.Calendar.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid calendar start date: %w", err)
	}
	end, err = time.Parse("2006-01-02", c.Calendar.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid calendar end date: %w", err)
	}
	return start, end, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8083)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.rate_limit_per_minute", 300)

	// Store defaults
	viper.SetDefault("store.path", "data/appointments.csv")

	// Calendar defaults: current calendar year
	year := time.Now().Year()
	viper.SetDefault("calendar.start_date", fmt.Sprintf("%d-01-01", year))
	viper.SetDefault("calendar.end_date", fmt.Sprintf("%d-12-31", year))

	// Directory defaults
	viper.SetDefault("directory.staff_file", "data/staff.csv")
	viper.SetDefault("directory.patient_file", "data/patients.csv")

	// Inventory defaults
	viper.SetDefault("inventory.file", "data/medicines.csv")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if path := os.Getenv("STORE_PATH"); path != "" {
		config.Store.Path = path
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	start, err := time.Parse("2006-01-02", config.Calendar.StartDate)
	if err != nil {
		return fmt.Errorf("invalid calendar start date %q: %w", config.Calendar.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", config.Calendar.EndDate)
	if err != nil {
		return fmt.Errorf("invalid calendar end date %q: %w", config.Calendar.EndDate, err)
	}
	if end.Before(start) {
		return fmt.Errorf("calendar end date %s precedes start date %s", config.Calendar.EndDate, config.Calendar.StartDate)
	}

	return nil
}
