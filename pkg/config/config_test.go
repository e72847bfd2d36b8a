package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 11300 {
		t.Errorf("want default port 11300, got %d", cfg.Server.Port)
	}
	if cfg.Server.URGENTThreshold != 1024 {
		t.Errorf("want default urgent threshold 1024, got %d", cfg.Server.URGENTThreshold)
	}
	if cfg.Events.Brokers != nil {
		t.Errorf("want events disabled by default, got brokers %v", cfg.Events.Brokers)
	}
}

func TestGetEnvAsIntFallsBackOnBadValue(t *testing.T) {
	t.Setenv("WORKQ_TEST_INT", "not-a-number")
	if got := getEnvAsInt("WORKQ_TEST_INT", 42); got != 42 {
		t.Errorf("want fallback 42, got %d", got)
	}
}

func TestSplitNonEmpty(t *testing.T) {
	if got := splitNonEmpty(""); got != nil {
		t.Errorf("want nil for empty string, got %v", got)
	}
	got := splitNonEmpty("a,b,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
