// Package numutil coerces loosely-typed provider values into finite numbers.
// Anything that does not parse to a finite value becomes nil, never 0 or NaN.
package numutil

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Float coerces numbers, numeric strings and json.Number into a finite float.
func Float(v any) *float64 {
	var out float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		out = x
	case float32:
		out = float64(x)
	case int:
		out = float64(x)
	case int64:
		out = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		out = f
	case string:
		raw := strings.TrimSpace(x)
		if raw == "" {
			return nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		out = f
	case *float64:
		if x == nil {
			return nil
		}
		out = *x
	default:
		return nil
	}
	if !finite(out) {
		return nil
	}
	return &out
}

// Int coerces to an integer, truncating fractional values.
func Int(v any) *int64 {
	f := Float(v)
	if f == nil {
		return nil
	}
	out := int64(*f)
	return &out
}

// Positive keeps v only when it is finite and strictly positive.
func Positive(v *float64) *float64 {
	if v == nil || *v <= 0 || !finite(*v) {
		return nil
	}
	return v
}

// First returns the first value that coerces to a finite float.
func First(values ...any) *float64 {
	for _, v := range values {
		if f := Float(v); f != nil {
			return f
		}
	}
	return nil
}

// FirstString returns the first non-empty string among values, accepting
// numbers as their decimal text.
func FirstString(values ...any) string {
	for _, v := range values {
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
		case json.Number:
			if s := x.String(); s != "" {
				return s
			}
		case float64:
			if finite(x) {
				return strconv.FormatFloat(x, 'f', -1, 64)
			}
		}
	}
	return ""
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
