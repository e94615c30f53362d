package syncx

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Canonical form: top-level keys are camelCase. Remote rows arrive snake_case
// and are mapped exactly once, when they enter the engine. Nested values
// (jsonb columns) are opaque and keep their keys.

// Canonicalize returns a copy of m with every top-level key in camelCase
func Canonicalize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[CamelKey(k)] = v
	}
	return out
}

// ToRemote returns a copy of m with every top-level key in snake_case
func ToRemote(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[SnakeKey(k)] = v
	}
	return out
}

// CamelKey converts "qr_code" to "qrCode"; camelCase input is returned unchanged
func CamelKey(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	var b strings.Builder
	b.Grow(len(k))
	upper := false
	for i, r := range k {
		if r == '_' {
			// keep a leading underscore, collapse the rest
			if i == 0 {
				b.WriteRune(r)
				continue
			}
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SnakeKey converts "qrCode" to "qr_code"; snake_case input is returned unchanged
func SnakeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k) + 4)
	for i, r := range k {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// bookkeeping fields are maintained by the stores, never compared for conflicts
var bookkeeping = map[string]bool{
	"id":         true,
	"createdAt":  true,
	"updatedAt":  true,
	"updatedTs":  true,
	"updateTime": true,
}

// IsBookkeeping reports whether a canonical field is store-maintained metadata
func IsBookkeeping(field string) bool {
	return bookkeeping[field]
}

// Meta contains the sync-relevant fields of a canonical row
type Meta struct {
	ID           string
	UpdatedAt    time.Time
	HasUpdatedAt bool
	Deleted      bool
}

// ExtractMeta reads id, last-modification time and soft-delete state from a
// canonical row. Tolerant of various field naming conventions (updatedAt,
// updatedTs, updateTime) and of RFC3339 or epoch-millisecond values.
func ExtractMeta(row map[string]any) Meta {
	var out Meta
	out.ID = IDString(row["id"])

	for _, k := range []string{"updatedAt", "updatedTs", "updateTime"} {
		if ms, ok := parseAnyTime(row[k]); ok {
			out.UpdatedAt = FromMs(ms)
			out.HasUpdatedAt = true
			break
		}
	}

	if del, ok := row["deleted"].(bool); ok && del {
		out.Deleted = true
	}
	if _, ok := parseAnyTime(row["deletedAt"]); ok {
		out.Deleted = true
	}
	return out
}

// IDString renders an id value (string or JSON number) as a string
func IDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func parseAnyTime(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		return ParseTimeToMs(t)
	case float64:
		return int64(t), t > 0
	case int64:
		return t, t > 0
	case time.Time:
		return Ms(t), !t.IsZero()
	}
	return 0, false
}

// GetString safely extracts a string value from a map
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// ParseTimeToMs converts various time formats to Unix milliseconds
// Accepts: RFC3339, Postgres timestamptz text, numeric milliseconds (as string)
func ParseTimeToMs(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), true
		}
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, true
	}

	return 0, false
}

// NormalizeValue maps a decoded JSON-ish value onto a comparable shape:
// every numeric kind becomes float64, typed slices and maps become []any and
// map[string]any, times become RFC3339 strings.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, float64:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = NormalizeValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = NormalizeValue(vv)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[toString(iter.Key().Interface())] = NormalizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	}
	return v
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// Equal compares two field values after normalization
func Equal(a, b any) bool {
	return reflect.DeepEqual(NormalizeValue(a), NormalizeValue(b))
}
