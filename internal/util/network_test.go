// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"net"
	"strings"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		private bool
	}{
		// Private IPv4 ranges
		{"loopback", "127.0.0.1", true},
		{"loopback high", "127.255.255.255", true},
		{"10.x.x.x", "10.0.0.1", true},
		{"10.x.x.x high", "10.255.255.255", true},
		{"172.16.x.x", "172.16.0.1", true},
		{"172.31.x.x", "172.31.255.255", true},
		{"192.168.x.x", "192.168.1.1", true},
		{"link-local", "169.254.1.1", true},
		{"this network", "0.0.0.0", true},
		{"CGNAT", "100.64.0.1", true},
		{"documentation 192", "192.0.2.1", true},
		{"documentation 198", "198.51.100.1", true},
		{"documentation 203", "203.0.113.1", true},
		{"benchmarking", "198.18.0.1", true},
		{"multicast", "224.0.0.1", true},
		{"reserved", "240.0.0.1", true},

		// Public IPv4
		{"public cloudflare", "1.1.1.1", false},
		{"public google", "8.8.8.8", false},
		{"public random", "203.0.114.1", false},
		{"172.15.x.x public", "172.15.255.255", false},
		{"172.32.x.x public", "172.32.0.1", false},

		// IPv6
		{"ipv6 loopback", "::1", true},
		{"ipv6 link-local", "fe80::1", true},
		{"ipv6 unique-local", "fd00::1", true},
		{"ipv6 public", "2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP %q", tt.ip)
			}
			got := IsPrivateIP(ip)
			if got != tt.private {
				t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}

func TestIsPrivateIP_Nil(t *testing.T) {
	if !IsPrivateIP(nil) {
		t.Error("IsPrivateIP(nil) = false, want true")
	}
}

func TestValidateRemoteURL(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{"github api", "https://api.github.com", false, false},
		{"plain http", "http://git.example.com/api/v3", false, false},
		{"ftp scheme", "ftp://example.com", false, true},
		{"no host", "https://", false, true},
		{"localhost", "http://localhost:3000", false, true},
		{"loopback ip", "http://127.0.0.1:8080", false, true},
		{"private ip", "http://10.1.2.3", false, true},
		{"loopback allowed", "http://127.0.0.1:8080", true, false},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxRemoteURLLength), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRemoteURL(tt.url, tt.allowPrivate)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateRemoteURL(%q) = nil, want error", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateRemoteURL(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func TestSSRFSafeDialContext(t *testing.T) {
	dialer := &net.Dialer{}
	dialFn := SSRFSafeDialContext(dialer)

	// Attempting to connect to a private IP should be blocked
	t.Run("blocks loopback", func(t *testing.T) {
		_, err := dialFn(t.Context(), "tcp", "127.0.0.1:80")
		if err == nil {
			t.Error("expected error connecting to 127.0.0.1, got nil")
		}
		if err != nil && !strings.Contains(err.Error(), "private IP") {
			t.Errorf("expected 'private IP' error, got: %v", err)
		}
	})

	t.Run("blocks private range", func(t *testing.T) {
		_, err := dialFn(t.Context(), "tcp", "10.0.0.1:80")
		if err == nil {
			t.Error("expected error connecting to 10.0.0.1, got nil")
		}
	})
}
