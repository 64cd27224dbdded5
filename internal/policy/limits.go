// internal/policy/limits.go
package policy

import (
	"encoding/json"
	"math"
	"time"
)

// Defaults and hard ceilings for per-call limits.
const (
	DefaultTimeoutMs  = 30000
	MaxTimeoutMs      = 120000
	DefaultMaxRows    = 1000
	MaxRowsCeiling    = 10000
	DefaultMaxCostUSD = 1.00
	MaxCostCeilingUSD = 100.00
)

// LimitSource carries loosely typed limit values as they arrive from a call
// or from skill configuration. Nil, non-numeric or non-positive values are
// ignored.
type LimitSource struct {
	TimeoutMs  interface{}
	MaxRows    interface{}
	MaxCostUSD interface{}
}

// EffectiveLimits are the resolved, clamped limits for one call.
type EffectiveLimits struct {
	TimeoutMs  int     `json:"timeoutMs"`
	MaxRows    int     `json:"maxRows"`
	MaxCostUSD float64 `json:"maxCostUsd"`
}

// Timeout returns TimeoutMs as a duration.
func (l EffectiveLimits) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() EffectiveLimits {
	return EffectiveLimits{
		TimeoutMs:  DefaultTimeoutMs,
		MaxRows:    DefaultMaxRows,
		MaxCostUSD: DefaultMaxCostUSD,
	}
}

// ResolveLimits merges call overrides, then skill configuration, then the
// defaults. Each result is clamped to its ceiling.
func ResolveLimits(overrides, configured LimitSource) EffectiveLimits {
	return EffectiveLimits{
		TimeoutMs:  resolveInt(overrides.TimeoutMs, configured.TimeoutMs, DefaultTimeoutMs, MaxTimeoutMs),
		MaxRows:    resolveInt(overrides.MaxRows, configured.MaxRows, DefaultMaxRows, MaxRowsCeiling),
		MaxCostUSD: resolveFloat(overrides.MaxCostUSD, configured.MaxCostUSD, DefaultMaxCostUSD, MaxCostCeilingUSD),
	}
}

func resolveFloat(override, configured interface{}, def, ceiling float64) float64 {
	v := def
	if n, ok := positiveNumber(override); ok {
		v = n
	} else if n, ok := positiveNumber(configured); ok {
		v = n
	}
	return math.Min(v, ceiling)
}

func resolveInt(override, configured interface{}, def, ceiling int) int {
	for _, candidate := range []interface{}{override, configured} {
		n, ok := positiveNumber(candidate)
		if !ok {
			continue
		}
		// Fractions below one would truncate to zero.
		if n < 1 {
			continue
		}
		if n >= float64(ceiling) {
			return ceiling
		}
		return int(n)
	}
	return def
}

// positiveNumber accepts Go numeric types and json.Number.
func positiveNumber(v interface{}) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}
