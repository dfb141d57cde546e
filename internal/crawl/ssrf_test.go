package crawl

import (
	"net"
	"strings"
	"testing"
)

func TestValidateCrawlURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		allowed []string
		wantErr string
	}{
		{"public ip https", "https://93.184.216.34/page", nil, ""},
		{"public ip http", "http://8.8.8.8", nil, ""},
		{"ftp scheme", "ftp://example.com", nil, "unsupported scheme"},
		{"file scheme", "file:///etc/passwd", nil, "unsupported scheme"},
		{"missing host", "https://", nil, "missing hostname"},
		{"loopback ip", "http://127.0.0.1:8080/admin", nil, "private/reserved"},
		{"private ip", "http://10.0.0.5/", nil, "private/reserved"},
		{"link local", "http://169.254.169.254/latest/meta-data", nil, "private/reserved"},
		{"allowlisted loopback", "http://127.0.0.1:8080/", []string{"127.0.0.1"}, ""},
		{"allowlist is case insensitive", "http://LocalHost/", []string{"localhost"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateCrawlURL(tt.url, tt.allowed)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{
		"127.0.0.1",
		"10.1.2.3",
		"172.16.0.1",
		"192.168.1.1",
		"100.64.0.1",
		"169.254.169.254",
		"0.0.0.0",
		"fc00::1",
		"::1",
	}
	for _, ip := range private {
		if !isPrivateIP(net.ParseIP(ip)) {
			t.Errorf("expected %s to be private", ip)
		}
	}

	public := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34", "2606:4700::1111"}
	for _, ip := range public {
		if isPrivateIP(net.ParseIP(ip)) {
			t.Errorf("expected %s to be public", ip)
		}
	}
}
