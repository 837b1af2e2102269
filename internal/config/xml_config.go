// Package config provides file-based configuration management. The format is
// XML by default; files ending in .yaml or .yml are read and written as YAML.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PDFIntake" yaml:"-"`

	// Server configuration
	Server ServerConfig `xml:"Server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage" yaml:"storage"`

	// Ingestion endpoint configuration
	Ingestion IngestionConfig `xml:"Ingestion" yaml:"ingestion"`

	// Session lifecycle configuration
	Sessions SessionsConfig `xml:"Sessions" yaml:"sessions"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// StorageConfig contains spool and journal settings. Empty directories are
// placed under DataDirectory.
type StorageConfig struct {
	DataDirectory  string `xml:"DataDirectory" yaml:"dataDirectory"`
	SpoolDirectory string `xml:"SpoolDirectory" yaml:"spoolDirectory"`
	JournalPath    string `xml:"JournalPath" yaml:"journalPath"`
	MaxUploadSize  string `xml:"MaxUploadSize" yaml:"maxUploadSize"`
}

// IngestionConfig describes the backend that receives documents.
type IngestionConfig struct {
	Endpoint              string `xml:"Endpoint" yaml:"endpoint"`
	FieldName             string `xml:"FieldName" yaml:"fieldName"`
	DefaultClientID       string `xml:"DefaultClientID" yaml:"defaultClientId"`
	AcceptedType          string `xml:"AcceptedType" yaml:"acceptedType"`
	StaggerMillis         int    `xml:"StaggerMillis" yaml:"staggerMillis"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

// SessionsConfig contains session limits and cleanup settings
type SessionsConfig struct {
	MaxSessions            int     `xml:"MaxSessions" yaml:"maxSessions"`
	SessionTimeoutMinutes  int     `xml:"SessionTimeoutMinutes" yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int     `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	SubmitRatePerSecond    float64 `xml:"SubmitRatePerSecond" yaml:"submitRatePerSecond"`
	SubmitBurst            int     `xml:"SubmitBurst" yaml:"submitBurst"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"logLevel"`
	ConsoleLogs             bool   `xml:"ConsoleLogs" yaml:"consoleLogs"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	EnableJournal           bool   `xml:"EnableJournal" yaml:"enableJournal"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"webSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "512M",
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			MaxUploadSize: "256MB",
		},
		Ingestion: IngestionConfig{
			Endpoint:        "http://localhost:5000/upload",
			FieldName:       "pdf",
			DefaultClientID: "2",
			AcceptedType:    "application/pdf",
			StaggerMillis:   100,
		},
		Sessions: SessionsConfig{
			MaxSessions:            64,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			SubmitRatePerSecond:    5,
			SubmitBurst:            10,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			EnableJournal:           true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from an XML or YAML file. A missing file is
// created with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDefaults returns the defaults with environment overrides applied and
// relative paths resolved against baseDir. No file is read or written.
func LoadDefaults(baseDir string) (*AppConfig, error) {
	config := DefaultConfig()
	config.applyEnvironmentOverrides()
	config.resolvePaths(baseDir)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to configPath in the format its extension names.
func (c *AppConfig) Save(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# PDF intake configuration\n# This file is auto-generated on first run\n\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- PDF intake configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if endpoint := os.Getenv("INGEST_URL"); endpoint != "" {
		c.Ingestion.Endpoint = endpoint
	}
	if clientID := os.Getenv("INGEST_CLIENT_ID"); clientID != "" {
		c.Ingestion.DefaultClientID = clientID
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}

	if c.Storage.SpoolDirectory == "" {
		c.Storage.SpoolDirectory = filepath.Join(c.Storage.DataDirectory, "spool")
	} else if !filepath.IsAbs(c.Storage.SpoolDirectory) {
		c.Storage.SpoolDirectory = filepath.Join(configDir, c.Storage.SpoolDirectory)
	}

	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = filepath.Join(c.Storage.DataDirectory, "journal.duckdb")
	} else if !filepath.IsAbs(c.Storage.JournalPath) {
		c.Storage.JournalPath = filepath.Join(configDir, c.Storage.JournalPath)
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}

	u, err := url.Parse(c.Ingestion.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("ingestion endpoint %q is not an http(s) URL", c.Ingestion.Endpoint))
	}
	if c.Ingestion.StaggerMillis < 0 {
		errs = append(errs, fmt.Errorf("stagger %dms is negative", c.Ingestion.StaggerMillis))
	}
	if c.Ingestion.RequestTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("request timeout %ds is negative", c.Ingestion.RequestTimeoutSeconds))
	}

	if c.Storage.MaxUploadSize != "" {
		if _, err := humanize.ParseBytes(c.Storage.MaxUploadSize); err != nil {
			errs = append(errs, fmt.Errorf("max upload size %q: %w", c.Storage.MaxUploadSize, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetSpoolDir returns the absolute spool directory path
func (c *AppConfig) GetSpoolDir() string {
	return c.Storage.SpoolDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// MaxUploadBytes returns the per-file size limit, or 0 for none.
func (c *AppConfig) MaxUploadBytes() int64 {
	if c.Storage.MaxUploadSize == "" {
		return 0
	}
	n, err := humanize.ParseBytes(c.Storage.MaxUploadSize)
	if err != nil {
		return 0
	}
	return int64(n)
}

// StaggerDelay returns the configured stagger. Zero disables staggering.
func (c *AppConfig) StaggerDelay() time.Duration {
	return time.Duration(c.Ingestion.StaggerMillis) * time.Millisecond
}

// RequestTimeout returns the per-upload timeout, or 0 for none.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Ingestion.RequestTimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.SpoolDirectory,
		filepath.Dir(c.Storage.JournalPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
