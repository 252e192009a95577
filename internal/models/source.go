package models

import (
	"fmt"
)

// SourceType identifies which extraction pipeline a job runs.
// The set is closed; registering a new source means adding a tag here,
// default options below, and a Fetcher implementation.
type SourceType string

const (
	SourceClassicValuer SourceType = "classic_valuer"
	SourceClassicCom    SourceType = "classic_com"
)

// ValidSource returns true if the tag names a registered source
func ValidSource(s SourceType) bool {
	switch s {
	case SourceClassicValuer, SourceClassicCom:
		return true
	}
	return false
}

// DefaultOptions returns the default option map for a source.
// Caller overrides are merged on top at job creation; the merged map is
// snapshot into the job and immutable once the job starts.
func DefaultOptions(source SourceType) (map[string]interface{}, error) {
	switch source {
	case SourceClassicValuer:
		return map[string]interface{}{
			"max_pages": 3,
			"headless":  true,
			"delay_ms":  3000,
		}, nil
	case SourceClassicCom:
		return map[string]interface{}{
			"page":            1,
			"max_listings":    50,
			"conversion_rate": 0.76, // USD to GBP
			"headless":        true,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidSource, source)
}

// MergeOptions resolves a job's option map: source defaults overlaid with
// caller overrides. The result is a fresh map, never aliasing either input.
func MergeOptions(source SourceType, overrides map[string]interface{}) (map[string]interface{}, error) {
	defaults, err := DefaultOptions(source)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, nil
}

// OptionInt retrieves an int option, handling float64 from JSON decoding
func OptionInt(opts map[string]interface{}, key string, fallback int) int {
	val, ok := opts[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// OptionFloat retrieves a float option, handling int from TOML decoding
func OptionFloat(opts map[string]interface{}, key string, fallback float64) float64 {
	val, ok := opts[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// OptionBool retrieves a bool option
func OptionBool(opts map[string]interface{}, key string, fallback bool) bool {
	if val, ok := opts[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return fallback
}
