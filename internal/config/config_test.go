package config

import (
	"testing"
	"time"
)

func TestParseOrigins(t *testing.T) {
	if got := parseOrigins(""); got != nil {
		t.Errorf("empty input = %v, want nil", got)
	}
	got := parseOrigins(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("parseOrigins = %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "")
	t.Setenv("HEARTBEAT_MISSES", "")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "-3")

	cfg := Load()
	if cfg.LivenessWindow() != 45*time.Second {
		t.Errorf("LivenessWindow = %v, want 45s", cfg.LivenessWindow())
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Errorf("SweepInterval = %v, want fallback 5s", cfg.SweepInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL_SECONDS", "10")
	t.Setenv("HEARTBEAT_MISSES", "2")
	t.Setenv("SESSION_TOKEN_TTL_HOURS", "1")

	cfg := Load()
	if cfg.LivenessWindow() != 20*time.Second {
		t.Errorf("LivenessWindow = %v, want 20s", cfg.LivenessWindow())
	}
	if cfg.SessionTokenTTL != time.Hour {
		t.Errorf("SessionTokenTTL = %v", cfg.SessionTokenTTL)
	}
}
