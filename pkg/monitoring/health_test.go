package monitoring

import (
	"testing"
)

func TestHealthCheckerAggregation(t *testing.T) {
	hc := NewHealthChecker("promtii", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	if got := hc.CheckHealth().Status; got != StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	hc.AddCheck("slow", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{
		"PORT":     "18032",
		"API_KEYS": "",
	})

	result := check()
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for missing config, got %s", result.Status)
	}

	check = ConfigurationHealthCheck(map[string]string{"PORT": "18032"})
	if result := check(); result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", result.Status)
	}
}

func TestCredentialPoolHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		usable int
		total  int
		want   string
	}{
		{"no keys", 0, 0, StatusUnhealthy},
		{"all exhausted", 0, 3, StatusDegraded},
		{"some usable", 2, 3, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CredentialPoolHealthCheck(func() (int, int) { return tt.usable, tt.total })
			if result := check(); result.Status != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, result.Status, result.Message)
			}
		})
	}

	if result := CredentialPoolHealthCheck(nil)(); result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil source, got %s", result.Status)
	}
}
