package syncx

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCamelAndSnakeKeys(t *testing.T) {
	tests := []struct {
		snake string
		camel string
	}{
		{"qr_code", "qrCode"},
		{"updated_at", "updatedAt"},
		{"container_id", "containerId"},
		{"source_location_id", "sourceLocationId"},
		{"name", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.snake, func(t *testing.T) {
			if got := CamelKey(tt.snake); got != tt.camel {
				t.Errorf("CamelKey(%q) = %q, want %q", tt.snake, got, tt.camel)
			}
			if got := SnakeKey(tt.camel); got != tt.snake {
				t.Errorf("SnakeKey(%q) = %q, want %q", tt.camel, got, tt.snake)
			}
			// idempotent in both directions
			if got := CamelKey(tt.camel); got != tt.camel {
				t.Errorf("CamelKey(%q) should be unchanged, got %q", tt.camel, got)
			}
			if got := SnakeKey(tt.snake); got != tt.snake {
				t.Errorf("SnakeKey(%q) should be unchanged, got %q", tt.snake, got)
			}
		})
	}
}

func TestCanonicalizeTopLevelOnly(t *testing.T) {
	in := map[string]any{
		"qr_code":  "ABC",
		"metadata": map[string]any{"inner_key": 1},
	}
	out := Canonicalize(in)

	if out["qrCode"] != "ABC" {
		t.Errorf("qrCode = %v", out["qrCode"])
	}
	inner, ok := out["metadata"].(map[string]any)
	if !ok || inner["inner_key"] != 1 {
		t.Errorf("nested keys should be preserved, got %v", out["metadata"])
	}
	if _, ok := in["qrCode"]; ok {
		t.Error("Canonicalize must not mutate its input")
	}

	back := ToRemote(out)
	if back["qr_code"] != "ABC" {
		t.Errorf("ToRemote lost qr_code: %v", back)
	}
}

func TestExtractMeta(t *testing.T) {
	tests := []struct {
		name        string
		row         map[string]any
		wantID      string
		wantUpdated bool
		wantDeleted bool
	}{
		{
			name:        "rfc3339 updatedAt",
			row:         map[string]any{"id": float64(42), "updatedAt": "2025-11-03T10:00:00Z"},
			wantID:      "42",
			wantUpdated: true,
		},
		{
			name:        "postgres timestamptz text",
			row:         map[string]any{"id": "abc", "updatedAt": "2025-11-03T10:00:00.123456"},
			wantID:      "abc",
			wantUpdated: true,
		},
		{
			name:        "updatedTs millis",
			row:         map[string]any{"id": "abc", "updatedTs": "1730631600000"},
			wantID:      "abc",
			wantUpdated: true,
		},
		{
			name:        "soft deleted flag",
			row:         map[string]any{"id": "x", "deleted": true},
			wantID:      "x",
			wantDeleted: true,
		},
		{
			name:        "deletedAt tombstone",
			row:         map[string]any{"id": "x", "deletedAt": "2025-11-03T10:00:00Z"},
			wantID:      "x",
			wantDeleted: true,
		},
		{
			name:   "no timestamp",
			row:    map[string]any{"id": json.Number("7")},
			wantID: "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ExtractMeta(tt.row)
			if m.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", m.ID, tt.wantID)
			}
			if m.HasUpdatedAt != tt.wantUpdated {
				t.Errorf("HasUpdatedAt = %v, want %v", m.HasUpdatedAt, tt.wantUpdated)
			}
			if m.Deleted != tt.wantDeleted {
				t.Errorf("Deleted = %v, want %v", m.Deleted, tt.wantDeleted)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs float", 10, float64(10), true},
		{"json number vs int", json.Number("12"), int64(12), true},
		{"different numbers", 12, 15, false},
		{"nil vs nil", nil, nil, true},
		{"nil vs zero", nil, 0, false},
		{"strings", "a", "a", true},
		{"typed slice", []string{"a", "b"}, []any{"a", "b"}, true},
		{"nested map", map[string]any{"n": 1}, map[string]any{"n": float64(1)}, true},
		{"time vs string", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-01-01T00:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestParseTimeToMs(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{"RFC3339", "2025-11-03T10:00:00Z", true},
		{"RFC3339 with nanoseconds", "2025-11-03T10:00:00.123456789Z", true},
		{"numeric milliseconds", "1730631600000", true},
		{"empty string", "", false},
		{"invalid format", "not-a-timestamp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := ParseTimeToMs(tt.input)
			if valid != tt.wantValid {
				t.Errorf("ParseTimeToMs() valid = %v, want %v", valid, tt.wantValid)
			}
			if valid && got == 0 {
				t.Error("ParseTimeToMs() should return non-zero timestamp")
			}
		})
	}
}
