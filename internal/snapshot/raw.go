// Package snapshot implements the offline-first reconciliation engine:
// Normalize upgrades any JSON-shaped value into a canonical core.Snapshot,
// Merge reconciles a local and a remote snapshot, and Derive recomputes the
// advisory wealth metrics and insights.
package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"budgetsync/internal/core"
)

// Raw is a decoded JSON value of unknown shape: map[string]any, []any,
// float64, string, bool or nil. Every field may be missing or mistyped.
type Raw = any

// ParseRaw decodes a JSON document. It is the only fallible step between
// bytes on disk (or from a remote peer) and a canonical snapshot.
func ParseRaw(data []byte) (Raw, error) {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot json: %w", err)
	}
	return raw, nil
}

// ToRaw converts a canonical snapshot back into the raw domain.
func ToRaw(s core.Snapshot) Raw {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	raw, err := ParseRaw(data)
	if err != nil {
		return nil
	}
	return raw
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func array(v any) []any {
	a, _ := v.([]any)
	return a
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// number returns a finite JSON number. Strings, NaN and infinities count as absent.
func number(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(m map[string]any, key string, def float64) float64 {
	if f, ok := number(m, key); ok {
		return f
	}
	return def
}

func optionalNumber(m map[string]any, key string) *float64 {
	f, ok := number(m, key)
	if !ok {
		return nil
	}
	return &f
}

func boolean(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func stringList(m map[string]any, key string) []string {
	out := []string{}
	for _, v := range array(m[key]) {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func stamps(m map[string]any, now string) core.Timestamps {
	ts := core.Timestamps{CreatedAt: str(m, "createdAt"), UpdatedAt: str(m, "updatedAt")}
	if ts.CreatedAt == "" {
		ts.CreatedAt = now
	}
	if ts.UpdatedAt == "" {
		ts.UpdatedAt = now
	}
	return ts
}
