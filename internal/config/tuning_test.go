package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/bedside/internal/fsutil"
	"github.com/banshee-data/bedside/internal/posture"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.LayingTolerance == nil || *cfg.LayingTolerance != 200 {
		t.Errorf("Expected LayingTolerance 200, got %v", cfg.LayingTolerance)
	}
	if cfg.TurnedTolerance == nil || *cfg.TurnedTolerance != 150 {
		t.Errorf("Expected TurnedTolerance 150, got %v", cfg.TurnedTolerance)
	}
	if cfg.BedTolerance == nil || *cfg.BedTolerance != 400 {
		t.Errorf("Expected BedTolerance 400, got %v", cfg.BedTolerance)
	}
	if cfg.HandshakeTimeout == nil || *cfg.HandshakeTimeout != "5s" {
		t.Errorf("Expected HandshakeTimeout '5s', got %v", cfg.HandshakeTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEmptyTuningConfig_GettersReturnDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetLayingTolerance(); got != 200 {
		t.Errorf("GetLayingTolerance() = %f, want 200", got)
	}
	if got := cfg.GetTurnedTolerance(); got != 150 {
		t.Errorf("GetTurnedTolerance() = %f, want 150", got)
	}
	if got := cfg.GetBedTolerance(); got != 400 {
		t.Errorf("GetBedTolerance() = %f, want 400", got)
	}
	if got := cfg.GetMinConfidence(); got != 0.5 {
		t.Errorf("GetMinConfidence() = %f, want 0.5", got)
	}
	if got := cfg.GetDefaultTilt(); got != -30 {
		t.Errorf("GetDefaultTilt() = %d, want -30", got)
	}
	if got := cfg.GetHandshakeTimeout(); got != 5*time.Second {
		t.Errorf("GetHandshakeTimeout() = %v, want 5s", got)
	}
	if got := cfg.PostureTolerances(); got != posture.DefaultTolerances {
		t.Errorf("PostureTolerances() = %+v, want %+v", got, posture.DefaultTolerances)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "laying_tolerance": 120,
  "turned_tolerance": 90,
  "bed_tolerance": 350,
  "min_confidence": 0.7,
  "default_tilt": -10,
  "handshake_timeout": "2s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetLayingTolerance(); got != 120 {
		t.Errorf("GetLayingTolerance() = %f, want 120", got)
	}
	if got := cfg.GetTurnedTolerance(); got != 90 {
		t.Errorf("GetTurnedTolerance() = %f, want 90", got)
	}
	if got := cfg.GetBedTolerance(); got != 350 {
		t.Errorf("GetBedTolerance() = %f, want 350", got)
	}
	if got := cfg.GetMinConfidence(); got != 0.7 {
		t.Errorf("GetMinConfidence() = %f, want 0.7", got)
	}
	if got := cfg.GetDefaultTilt(); got != -10 {
		t.Errorf("GetDefaultTilt() = %d, want -10", got)
	}
	if got := cfg.GetHandshakeTimeout(); got != 2*time.Second {
		t.Errorf("GetHandshakeTimeout() = %v, want 2s", got)
	}
}

func TestLoadTuningConfig_PartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(configPath, []byte(`{"bed_tolerance": 250}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LayingTolerance != nil {
		t.Errorf("LayingTolerance should be unset, got %v", *cfg.LayingTolerance)
	}
	if got := cfg.GetBedTolerance(); got != 250 {
		t.Errorf("GetBedTolerance() = %f, want 250", got)
	}
	if got := cfg.GetLayingTolerance(); got != 200 {
		t.Errorf("GetLayingTolerance() = %f, want 200", got)
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("tuning.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"negative tolerance", write("neg.json", `{"turned_tolerance": -1}`), "turned_tolerance must be positive"},
		{"confidence out of range", write("conf.json", `{"min_confidence": 1.5}`), "min_confidence"},
		{"tilt out of range", write("tilt.json", `{"default_tilt": 45}`), "default_tilt"},
		{"bad duration", write("dur.json", `{"handshake_timeout": "soon"}`), "invalid handshake_timeout"},
		{"zero duration", write("zero.json", `{"handshake_timeout": "0s"}`), "handshake_timeout must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "huge.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(configPath, big, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadTuningConfig(configPath); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig_MatchesDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	def := DefaultTuningConfig()

	if cfg.GetLayingTolerance() != def.GetLayingTolerance() ||
		cfg.GetTurnedTolerance() != def.GetTurnedTolerance() ||
		cfg.GetBedTolerance() != def.GetBedTolerance() ||
		cfg.GetMinConfidence() != def.GetMinConfidence() ||
		cfg.GetDefaultTilt() != def.GetDefaultTilt() ||
		cfg.GetHandshakeTimeout() != def.GetHandshakeTimeout() {
		t.Errorf("%s drifted from DefaultTuningConfig()", DefaultConfigPath)
	}
}

func TestLoadTuningConfigFS(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := mfs.WriteFile("/etc/bedside/ward-3.json", []byte(`{"min_confidence": 0.8}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadTuningConfigFS(mfs, "/etc/bedside/ward-3.json")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetMinConfidence(); got != 0.8 {
		t.Errorf("GetMinConfidence() = %f, want 0.8", got)
	}

	if _, err := LoadTuningConfigFS(mfs, "/etc/bedside/ward-4.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
