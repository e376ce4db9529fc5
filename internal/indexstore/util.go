package indexstore

import "encoding/json"

// encodeMetadata/decodeMetadata serialize a span's free-form metadata map
// to the TEXT column storage used throughout this schema (metadata,
// inputs, outputs, side_effects, pitfalls, evidence). Empty/nil maps
// encode as "{}" rather than "null" so queries can treat the column as
// always-valid JSON.
func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func encodeStringSlice(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStringSlice(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
