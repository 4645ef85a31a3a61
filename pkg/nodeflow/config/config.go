package config

import (
	"maps"
	"slices"
	"time"
)

// Config is an immutable view over a node's parameter map.
// Accessors fall back to the supplied default when a key is missing
// or holds a value of the wrong shape. Mutation goes through With and
// Merge, which return a new Config and leave the receiver untouched.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch val := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
// A float64 converts only when it has no fractional part.
func (c Config) Int(key string, defaultVal int) int {
	switch val := c.data[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not numeric.
func (c Config) Float(key string, defaultVal float64) float64 {
	if f, ok := toFloat(c.data[key]); ok {
		return f
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal if missing or
// if any element is not a string.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch val := c.data[key].(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, s)
		}
		return result
	}
	return defaultVal
}

// FloatSlice returns the numeric sequence for key, or defaultVal if missing
// or if any element is not numeric. YAML and JSON decode sequences as []any,
// so mixed int/float lists are accepted.
func (c Config) FloatSlice(key string, defaultVal []float64) []float64 {
	switch val := c.data[key].(type) {
	case []float64:
		return val
	case []any:
		result := make([]float64, 0, len(val))
		for _, item := range val {
			f, ok := toFloat(item)
			if !ok {
				return defaultVal
			}
			result = append(result, f)
		}
		return result
	}
	return defaultVal
}

// Any returns the raw value for key, or defaultVal if missing.
func (c Config) Any(key string, defaultVal any) any {
	v, ok := c.data[key]
	if !ok {
		return defaultVal
	}
	return v
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Sub returns the nested map stored under key as its own Config.
// Returns an empty Config when the key is missing or not a map.
func (c Config) Sub(key string) Config {
	switch val := c.data[key].(type) {
	case map[string]any:
		return New(val)
	case Config:
		return val
	}
	return New(nil)
}

// Keys returns the parameter names in sorted order.
func (c Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.data))
}

// Len returns the number of parameters.
func (c Config) Len() int {
	return len(c.data)
}

// With returns a copy of the config with key set to value.
func (c Config) With(key string, value any) Config {
	next := maps.Clone(c.data)
	if next == nil {
		next = make(map[string]any, 1)
	}
	next[key] = value
	return Config{data: next}
}

// Merge returns a copy of the config overlaid with every entry of other.
func (c Config) Merge(other map[string]any) Config {
	next := make(map[string]any, len(c.data)+len(other))
	maps.Copy(next, c.data)
	maps.Copy(next, other)
	return Config{data: next}
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
