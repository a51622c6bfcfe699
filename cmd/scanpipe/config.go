package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tillworks/scanpipe/scan"
)

// Config is the scanpipe service configuration file.
type Config struct {
	Listen      string `yaml:"listen"`
	DBPath      string `yaml:"db_path"`
	StatsDBPath string `yaml:"stats_db_path"`
	LogLevel    string `yaml:"log_level"`

	TaxRate float64 `yaml:"tax_rate"`

	// Pipeline timings, in milliseconds. Zero keeps the built-in default.
	DedupWindowMS        int `yaml:"dedup_window_ms"`
	IdleAfterMS          int `yaml:"idle_after_ms"`
	PersistAfterMS       int `yaml:"persist_after_ms"`
	VisionGuardMS        int `yaml:"vision_guard_ms"`
	CameraStageTimeoutMS int `yaml:"camera_stage_timeout_ms"`
	WedgeRefocusMS       int `yaml:"wedge_refocus_ms"`
	HIDPollMS            int `yaml:"hid_poll_ms"`

	PersistMinLines int `yaml:"persist_min_lines"`
	EnhanceWorkers  int `yaml:"enhance_workers"`
	MaxFrameWidth   int `yaml:"max_frame_width"`
	WedgeMaxLen     int `yaml:"wedge_max_len"`

	IdlePrompts []string `yaml:"idle_prompts"`

	// CameraDir, when set, replays still images from that directory as the
	// camera source. Bench use only; leave empty in production.
	CameraDir       string `yaml:"camera_dir"`
	FrameIntervalMS int    `yaml:"frame_interval_ms"`

	// SeedProducts are loaded into the catalog at startup.
	SeedProducts []SeedProduct `yaml:"seed_products"`

	// StatsRetentionDays bounds the scan events table. Zero disables cleanup.
	StatsRetentionDays int `yaml:"stats_retention_days"`
}

// SeedProduct is one catalog row from the config file. Prices are minor
// currency units.
type SeedProduct struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Barcode   string `yaml:"barcode"`
	SKU       string `yaml:"sku"`
	UnitPrice int64  `yaml:"unit_price"`
}

// DefaultConfig returns sane defaults for a single-lane till.
func DefaultConfig() *Config {
	return &Config{
		Listen:             ":8090",
		DBPath:             "scanpipe.db",
		LogLevel:           "info",
		TaxRate:            0.18,
		StatsRetentionDays: 30,
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required fields and value sanity.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("tax_rate must be in [0, 1)")
	}
	for i, p := range c.SeedProducts {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("seed_products[%d]: id and name are required", i)
		}
		if p.UnitPrice < 0 {
			return fmt.Errorf("seed_products[%d]: negative unit_price", i)
		}
	}
	return nil
}

// ScanConfig maps the file settings onto the pipeline config.
func (c *Config) ScanConfig() scan.Config {
	return scan.Config{
		DedupWindow:          time.Duration(c.DedupWindowMS) * time.Millisecond,
		IdleAfter:            time.Duration(c.IdleAfterMS) * time.Millisecond,
		PersistAfter:         time.Duration(c.PersistAfterMS) * time.Millisecond,
		VisionGuard:          time.Duration(c.VisionGuardMS) * time.Millisecond,
		CameraStageTimeout:   time.Duration(c.CameraStageTimeoutMS) * time.Millisecond,
		WedgeRefocusInterval: time.Duration(c.WedgeRefocusMS) * time.Millisecond,
		HIDPollInterval:      time.Duration(c.HIDPollMS) * time.Millisecond,
		PersistMinLines:      c.PersistMinLines,
		TaxRate:              c.TaxRate,
		EnhanceWorkers:       c.EnhanceWorkers,
		MaxFrameWidth:        c.MaxFrameWidth,
		WedgeMaxLen:          c.WedgeMaxLen,
		IdlePrompts:          c.IdlePrompts,
	}
}
