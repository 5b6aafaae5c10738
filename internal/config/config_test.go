package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.EARThreshold != 0.25 {
		t.Errorf("EARThreshold = %v, want 0.25", cfg.EARThreshold)
	}
	if cfg.FrameCheckCount != 20 {
		t.Errorf("FrameCheckCount = %d, want 20", cfg.FrameCheckCount)
	}
	if cfg.AutoStopSeconds != 0 {
		t.Errorf("AutoStopSeconds = %d, want 0", cfg.AutoStopSeconds)
	}
	if cfg.SessionLogFile == "" || cfg.LiveStatusFile == "" {
		t.Errorf("File paths should have defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EAR_THRESHOLD", "0.3")
	t.Setenv("FRAME_CHECK_COUNT", "5")
	t.Setenv("AUTO_STOP_SECONDS", "120")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.EARThreshold != 0.3 {
		t.Errorf("EARThreshold = %v, want 0.3", cfg.EARThreshold)
	}
	if cfg.FrameCheckCount != 5 {
		t.Errorf("FrameCheckCount = %d, want 5", cfg.FrameCheckCount)
	}
	if cfg.AutoStopSeconds != 120 {
		t.Errorf("AutoStopSeconds = %d, want 120", cfg.AutoStopSeconds)
	}
}

func TestInvalidThresholdFailsFast(t *testing.T) {
	t.Setenv("EAR_THRESHOLD", "-0.1")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("Expected error for negative threshold")
	}
}

func TestInvalidFrameCheckFailsFast(t *testing.T) {
	t.Setenv("FRAME_CHECK_COUNT", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("Expected error for zero frame check")
	}
}

func TestMalformedNumberFallsBackToDefault(t *testing.T) {
	t.Setenv("FRAME_CHECK_COUNT", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.FrameCheckCount != 20 {
		t.Errorf("FrameCheckCount = %d, want default 20", cfg.FrameCheckCount)
	}
}
