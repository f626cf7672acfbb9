// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"strings"
	"testing"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
		errMsg  string
	}{
		{"every minute", "* * * * *", false, ""},
		{"every five minutes", "*/5 * * * *", false, ""},
		{"descriptor", "@hourly", false, ""},
		{"every", "@every 30s", false, ""},
		{"padded", "  0 3 * * *  ", false, ""},

		{"empty", "", true, "required"},
		{"blank", "   ", true, "required"},
		{"six fields", "0 * * * * *", true, "invalid schedule"},
		{"garbage", "sometimes", true, "invalid schedule"},
		{"out of range", "61 * * * *", true, "invalid schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateSchedule(%q) = nil, want error", tt.expr)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateSchedule(%q) error = %q, want containing %q", tt.expr, err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateSchedule(%q) unexpected error: %v", tt.expr, err)
			}
		})
	}
}
