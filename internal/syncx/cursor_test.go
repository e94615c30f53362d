package syncx

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEncodeCursor(t *testing.T) {
	tests := []struct {
		name     string
		cursor   Cursor
		expected string
	}{
		{
			name: "normal cursor",
			cursor: Cursor{
				Seq: 42,
				UID: uuid.MustParse("c1d9b7dc-a1b2-4c3d-9e8f-7a6b5c4d3e2f"),
			},
			expected: "NDJ8YzFkOWI3ZGMtYTFiMi00YzNkLTllOGYtN2E2YjVjNGQzZTJm",
		},
		{
			name:     "zero value cursor",
			cursor:   Cursor{Seq: 0, UID: uuid.Nil},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeCursor(tt.cursor)
			if got != tt.expected {
				t.Errorf("EncodeCursor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDecodeCursor(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		wantSeq   int64
		wantUID   uuid.UUID
		wantValid bool
	}{
		{
			name:      "valid cursor",
			encoded:   "NDJ8YzFkOWI3ZGMtYTFiMi00YzNkLTllOGYtN2E2YjVjNGQzZTJm",
			wantSeq:   42,
			wantUID:   uuid.MustParse("c1d9b7dc-a1b2-4c3d-9e8f-7a6b5c4d3e2f"),
			wantValid: true,
		},
		{
			name:      "empty string",
			encoded:   "",
			wantValid: false,
		},
		{
			name:      "invalid base64",
			encoded:   "not-base64!!!",
			wantValid: false,
		},
		{
			name:      "invalid format (no pipe)",
			encoded:   "MTIzNDU2Nzg5MA", // "1234567890" base64
			wantValid: false,
		},
		{
			name:      "invalid uuid",
			encoded:   "MTIzNDU2fG5vdC1hLXV1aWQ", // "123456|not-a-uuid"
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := DecodeCursor(tt.encoded)
			if valid != tt.wantValid {
				t.Errorf("DecodeCursor() valid = %v, want %v", valid, tt.wantValid)
			}
			if valid {
				if got.Seq != tt.wantSeq {
					t.Errorf("DecodeCursor() Seq = %v, want %v", got.Seq, tt.wantSeq)
				}
				if got.UID != tt.wantUID {
					t.Errorf("DecodeCursor() UID = %v, want %v", got.UID, tt.wantUID)
				}
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		Seq: 1730635200000,
		UID: uuid.MustParse("c1d9b7dc-a1b2-4c3d-9e8f-7a6b5c4d3e2f"),
	}

	decoded, valid := DecodeCursor(EncodeCursor(original))
	if !valid {
		t.Fatal("DecodeCursor() failed for valid cursor")
	}
	if decoded != original {
		t.Errorf("Round trip = %+v, want %+v", decoded, original)
	}
}

func TestRFC3339(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{name: "normal timestamp", ms: 1730635200000, want: "2024-11-03T12:00:00Z"},
		{name: "epoch", ms: 0, want: "1970-01-01T00:00:00Z"},
		{name: "with milliseconds", ms: 1730635200123, want: "2024-11-03T12:00:00.123Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RFC3339(tt.ms); got != tt.want {
				t.Errorf("RFC3339() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMsRoundTrip(t *testing.T) {
	ts := time.Date(2025, 11, 3, 10, 0, 0, 123_000_000, time.UTC)
	if got := FromMs(Ms(ts)); !got.Equal(ts) {
		t.Errorf("FromMs(Ms()) = %v, want %v", got, ts)
	}
	if Ms(time.Time{}) != 0 || !FromMs(0).IsZero() {
		t.Error("zero time should map to 0 and back")
	}
}

func TestNowMs(t *testing.T) {
	before := NowMs()
	after := NowMs()

	if after < before {
		t.Error("NowMs() went backwards in time")
	}
	if after-before > 1000 {
		t.Errorf("NowMs() took more than 1 second between calls: %d ms", after-before)
	}
}
