package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/bedside/internal/fsutil"
	"github.com/banshee-data/bedside/internal/posture"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the thresholds used to classify a patient and the
// device start-up parameters. Fields are pointers so a partial file leaves
// the remaining values at their defaults.
type TuningConfig struct {
	// Classifier params (millimetres)
	LayingTolerance *float64 `json:"laying_tolerance,omitempty"`
	TurnedTolerance *float64 `json:"turned_tolerance,omitempty"`

	// Bed calibration params (millimetres)
	BedTolerance *float64 `json:"bed_tolerance,omitempty"`

	// Joints reported below this confidence are treated as unknown
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// Device params
	DefaultTilt      *int    `json:"default_tilt,omitempty"`      // degrees
	HandshakeTimeout *string `json:"handshake_timeout,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		LayingTolerance:  ptrFloat64(200),
		TurnedTolerance:  ptrFloat64(150),
		BedTolerance:     ptrFloat64(400),
		MinConfidence:    ptrFloat64(0.5),
		DefaultTilt:      ptrInt(-30),
		HandshakeTimeout: ptrString("5s"),
	}
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to the Get* defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	return LoadTuningConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTuningConfigFS is LoadTuningConfig reading through fsys.
func LoadTuningConfigFS(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching parent directories. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"laying_tolerance": c.LayingTolerance,
		"turned_tolerance": c.TurnedTolerance,
		"bed_tolerance":    c.BedTolerance,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}

	if c.DefaultTilt != nil {
		if *c.DefaultTilt < -31 || *c.DefaultTilt > 31 {
			return fmt.Errorf("default_tilt must be between -31 and 31 degrees, got %d", *c.DefaultTilt)
		}
	}

	if c.HandshakeTimeout != nil && *c.HandshakeTimeout != "" {
		d, err := time.ParseDuration(*c.HandshakeTimeout)
		if err != nil {
			return fmt.Errorf("invalid handshake_timeout '%s': %w", *c.HandshakeTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("handshake_timeout must be positive, got %s", d)
		}
	}

	return nil
}

// GetLayingTolerance returns the laying_tolerance value or the default.
func (c *TuningConfig) GetLayingTolerance() float64 {
	if c.LayingTolerance == nil {
		return 200
	}
	return *c.LayingTolerance
}

// GetTurnedTolerance returns the turned_tolerance value or the default.
func (c *TuningConfig) GetTurnedTolerance() float64 {
	if c.TurnedTolerance == nil {
		return 150
	}
	return *c.TurnedTolerance
}

// GetBedTolerance returns the bed_tolerance value or the default.
func (c *TuningConfig) GetBedTolerance() float64 {
	if c.BedTolerance == nil {
		return 400
	}
	return *c.BedTolerance
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetDefaultTilt returns the default_tilt value or the default.
func (c *TuningConfig) GetDefaultTilt() int {
	if c.DefaultTilt == nil {
		return -30 // good for a sensor mounted about 6ft off the floor
	}
	return *c.DefaultTilt
}

// GetHandshakeTimeout parses and returns the HandshakeTimeout as a
// time.Duration.
func (c *TuningConfig) GetHandshakeTimeout() time.Duration {
	if c.HandshakeTimeout == nil || *c.HandshakeTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.HandshakeTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// PostureTolerances returns the classifier thresholds.
func (c *TuningConfig) PostureTolerances() posture.Tolerances {
	return posture.Tolerances{
		Laying: c.GetLayingTolerance(),
		Turned: c.GetTurnedTolerance(),
	}
}
