package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Section is an untyped configuration subtree handed to collaborators.
type Section map[string]any

func (s Section) Clone() Section {
	if s == nil {
		return nil
	}
	return Section(cloneMap(s))
}

func (s Section) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s Section) String(key, fallback string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return fallback
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

func (s Section) Int(key string, fallback int) int {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s Section) Float(key string, fallback float64) float64 {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func (s Section) Bool(key string, fallback bool) bool {
	v, ok := s[key]
	if !ok {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return fallback
}

// Sub returns a nested section, or nil when the key is missing or not a map.
func (s Section) Sub(key string) Section {
	if m, ok := s[key].(map[string]any); ok {
		return Section(m)
	}
	if m, ok := s[key].(Section); ok {
		return m
	}
	return nil
}

func cloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case Section:
		return Section(cloneMap(typed))
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []float64:
		return append([]float64(nil), typed...)
	default:
		return v
	}
}
