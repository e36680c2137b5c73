package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODELS_DIR", "")
	t.Setenv("DETECTOR_CONF_THRESHOLD", "")
	t.Setenv("DETECTOR_CONF_THRESHOLD_FALLBACK", "")
	t.Setenv("FR_MIN_VALID_BYTES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantDir, _ := filepath.Abs(defaultModelsDir)
	if cfg.ModelsDir != wantDir {
		t.Fatalf("ModelsDir = %q, want %q", cfg.ModelsDir, wantDir)
	}
	if cfg.DetectorConfThreshold != defaultDetectorConfThreshold {
		t.Fatalf("DetectorConfThreshold = %v, want %v", cfg.DetectorConfThreshold, defaultDetectorConfThreshold)
	}
	if cfg.FRMinValidBytes != defaultFRMinValidBytes {
		t.Fatalf("FRMinValidBytes = %d, want %d", cfg.FRMinValidBytes, defaultFRMinValidBytes)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("MODELS_DIR", "testmodels")
	t.Setenv("DETECTOR_CONF_THRESHOLD", "0.7")
	t.Setenv("FR_MIN_VALID_BYTES", "2000000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantDir, _ := filepath.Abs("testmodels")
	if cfg.ModelsDir != wantDir {
		t.Fatalf("ModelsDir = %q, want %q", cfg.ModelsDir, wantDir)
	}
	if cfg.DetectorConfThreshold != 0.7 {
		t.Fatalf("DetectorConfThreshold = %v, want 0.7", cfg.DetectorConfThreshold)
	}
	if cfg.FRMinValidBytes != 2000000 {
		t.Fatalf("FRMinValidBytes = %d, want 2000000", cfg.FRMinValidBytes)
	}
}

func TestLoadIgnoresInvalidOverride(t *testing.T) {
	t.Setenv("DETECTOR_CONF_THRESHOLD", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DetectorConfThreshold != defaultDetectorConfThreshold {
		t.Fatalf("invalid override should fall back to default, got %v", cfg.DetectorConfThreshold)
	}
}
