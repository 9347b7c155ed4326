// Package config loads the pipeline engine's configuration from a TOML file,
// overlaying environment-variable overrides, in the same load/save/validate
// shape as the teacher's internal/config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the top-level engine configuration.
type Config struct {
	API        APIConfig       `toml:"api"`
	Database   DatabaseConfig  `toml:"database"`
	Redis      RedisConfig     `toml:"redis"`
	Storage    StorageConfig   `toml:"storage"`
	Binaries   BinariesConfig  `toml:"binaries"`
	Clients    ClientsConfig   `toml:"clients"`
	Sync       SyncConfig      `toml:"sync"`
	Semaphores SemaphoreConfig `toml:"semaphores"`
	Logging    LoggingConfig   `toml:"logging"`
}

// APIConfig describes the engine's own health-check HTTP surface (§6). The
// job-submission facade proper lives outside this repository.
type APIConfig struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// DatabaseConfig points at the job repository's backing store.
type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConnections int    `toml:"max_connections"`
}

// RedisConfig points at the ephemeral progress store.
type RedisConfig struct {
	URL string `toml:"url"`
	DB  int    `toml:"db"`
}

// StorageConfig lists filesystem roots used while a job moves through the
// pipeline.
type StorageConfig struct {
	Working   string `toml:"working"`
	Processed string `toml:"processed"`
	Samples   string `toml:"samples"`
}

// BinariesConfig is the set of external-binary paths engine-relevant per §6.
type BinariesConfig struct {
	DirectDownload string `toml:"direct_download"`
	Probe          string `toml:"probe"`
	Mux            string `toml:"mux"`
	CloudCopyPath  string `toml:"cloud_copy_config"`
}

// ClientsConfig configures each of the four external download clients (C2).
type ClientsConfig struct {
	TorrentDataDir string   `toml:"torrent_data_dir"`
	TorrentTracker []string `toml:"torrent_trackers"`
	GDriveCreds    string   `toml:"gdrive_credentials_path"`
	UsenetServer   string   `toml:"usenet_server"`
	UploadTarget   string   `toml:"upload_target"`
	UploadFallback string   `toml:"upload_fallback"`
}

// SyncConfig is the set of thresholds the Sync Decision Engine (C7) applies.
// Defaults match §4.5.
type SyncConfig struct {
	InSyncThresholdMs    float64 `toml:"in_sync_threshold_ms"`
	MinorThresholdMs     float64 `toml:"minor_threshold_ms"`
	ModerateThresholdMs  float64 `toml:"moderate_threshold_ms"`
	SevereThresholdMs    float64 `toml:"severe_threshold_ms"`
	DriftSignificantMsPs float64 `toml:"drift_significant_ms_per_sec"`
	ConfidenceFloor      float64 `toml:"confidence_floor"`
	StretchClampLow      float64 `toml:"stretch_clamp_low"`
	StretchClampHigh     float64 `toml:"stretch_clamp_high"`
}

// SemaphoreConfig bounds concurrent external-binary usage per stage type (§5).
type SemaphoreConfig struct {
	Download int64 `toml:"download"`
	Process  int64 `toml:"process"`
	Upload   int64 `toml:"upload"`
}

// LoggingConfig controls the shared logrus logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a configuration populated with sensible defaults,
// the same role as the teacher's DefaultConfig.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{Host: "0.0.0.0", Port: "8090"},
		Database: DatabaseConfig{
			URL:            "./mediaengine.db",
			MaxConnections: 5,
		},
		Redis: RedisConfig{URL: "localhost:6379", DB: 0},
		Storage: StorageConfig{
			Working:   "./work",
			Processed: "./processed",
			Samples:   "./samples",
		},
		Binaries: BinariesConfig{
			DirectDownload: "aria2c",
			Probe:          "ffprobe",
			Mux:            "ffmpeg",
		},
		Clients: ClientsConfig{
			TorrentDataDir: "./work/torrents",
			UploadTarget:   "cloud-copy",
		},
		Sync: SyncConfig{
			InSyncThresholdMs:    40,
			MinorThresholdMs:     100,
			ModerateThresholdMs:  300,
			SevereThresholdMs:    1000,
			DriftSignificantMsPs: 2,
			ConfidenceFloor:      0.70,
			StretchClampLow:      0.97,
			StretchClampHigh:     1.03,
		},
		Semaphores: SemaphoreConfig{Download: 4, Process: 2, Upload: 4},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from a TOML file, creating one populated
// with defaults if it does not yet exist, then overlays any matching
// environment variables (§6's engine-relevant subset) before validating.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	_ = godotenv.Load() // optional local .env overlay; absence is not an error

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays the environment variables named in §6 on top of
// whatever the TOML file set, so deployments can inject secrets without
// writing them to disk.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("STORAGE_WORKING"); v != "" {
		c.Storage.Working = v
	}
	if v := os.Getenv("STORAGE_PROCESSED"); v != "" {
		c.Storage.Processed = v
	}
	if v := os.Getenv("STORAGE_SAMPLES"); v != "" {
		c.Storage.Samples = v
	}
	if v := os.Getenv("API_URL"); v != "" {
		c.API.Host = v
	}
}

// SaveToFile writes the configuration to a TOML file, overwriting whatever
// is already there.
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := "# Media pipeline engine configuration\n\n"
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}
	if c.Storage.Working == "" || c.Storage.Processed == "" || c.Storage.Samples == "" {
		return fmt.Errorf("storage roots must all be set")
	}
	if c.Sync.ConfidenceFloor < 0 || c.Sync.ConfidenceFloor > 1 {
		return fmt.Errorf("sync confidence floor must be between 0 and 1")
	}
	if c.Sync.StretchClampLow >= c.Sync.StretchClampHigh {
		return fmt.Errorf("stretch clamp low must be less than stretch clamp high")
	}
	if c.Semaphores.Download < 1 || c.Semaphores.Process < 1 || c.Semaphores.Upload < 1 {
		return fmt.Errorf("semaphore capacities must be at least 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return nil
}

// GetAddress returns the host:port string the health server listens on.
func (c *Config) GetAddress() string {
	return c.API.Host + ":" + c.API.Port
}
