// Package voice holds the generation knobs handed to TTS backends and the
// helpers used to merge them from job, character and dialogue settings.
package voice

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strconv"
)

// Recognized parameter keys.
const (
	KeyVoiceID             = "voice_id"
	KeySpeed               = "speed"
	KeyTemperature         = "temperature"
	KeyStability           = "stability"
	KeySimilarityBoost     = "similarity_boost"
	KeyCFGWeight           = "cfg_weight"
	KeyEmotionExaggeration = "emotion_exaggeration"
)

// Neutral defaults applied before a value is scaled by the perturber.
var defaults = map[string]float64{
	KeySpeed:               1.0,
	KeyTemperature:         1.0,
	KeyStability:           0.5,
	KeySimilarityBoost:     0.5,
	KeyCFGWeight:           0.5,
	KeyEmotionExaggeration: 0.5,
}

// NumericKeys lists the float parameters in a stable order.
var NumericKeys = []string{
	KeySpeed,
	KeyTemperature,
	KeyStability,
	KeySimilarityBoost,
	KeyCFGWeight,
	KeyEmotionExaggeration,
}

// Params is the set of generation knobs consumed by a TTS backend. A nil
// numeric field means "let the backend decide".
type Params struct {
	VoiceID             string   `json:"voice_id,omitempty"`
	Speed               *float64 `json:"speed,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	Stability           *float64 `json:"stability,omitempty"`
	SimilarityBoost     *float64 `json:"similarity_boost,omitempty"`
	CFGWeight           *float64 `json:"cfg_weight,omitempty"`
	EmotionExaggeration *float64 `json:"emotion_exaggeration,omitempty"`

	// Extra carries unrecognized keys. Backends only forward them when
	// configured to.
	Extra map[string]any `json:"extra,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Default returns the neutral default for a numeric key.
func Default(key string) float64 {
	return defaults[key]
}

func (p *Params) slot(key string) **float64 {
	switch key {
	case KeySpeed:
		return &p.Speed
	case KeyTemperature:
		return &p.Temperature
	case KeyStability:
		return &p.Stability
	case KeySimilarityBoost:
		return &p.SimilarityBoost
	case KeyCFGWeight:
		return &p.CFGWeight
	case KeyEmotionExaggeration:
		return &p.EmotionExaggeration
	default:
		return nil
	}
}

// Value returns the numeric value stored under key and whether it was set.
func (p Params) Value(key string) (float64, bool) {
	s := p.slot(key)
	if s == nil || *s == nil {
		return 0, false
	}
	return **s, true
}

// ValueOrDefault returns the value under key, or its neutral default.
func (p Params) ValueOrDefault(key string) float64 {
	if v, ok := p.Value(key); ok {
		return v
	}
	return defaults[key]
}

// Set stores a numeric value. Unknown keys go to Extra.
func (p *Params) Set(key string, v float64) {
	if s := p.slot(key); s != nil {
		*s = Float(v)
		return
	}
	if p.Extra == nil {
		p.Extra = make(map[string]any)
	}
	p.Extra[key] = v
}

// Clone returns a copy that shares no pointers with p.
func (p Params) Clone() Params {
	out := Params{VoiceID: p.VoiceID}
	for _, k := range NumericKeys {
		if v, ok := p.Value(k); ok {
			out.Set(k, v)
		}
	}
	if p.Extra != nil {
		out.Extra = maps.Clone(p.Extra)
	}
	return out
}

// Equal reports whether both parameter sets would produce the same request.
func (p Params) Equal(o Params) bool {
	if p.VoiceID != o.VoiceID {
		return false
	}
	for _, k := range NumericKeys {
		a, aok := p.Value(k)
		b, bok := o.Value(k)
		if aok != bok || a != b {
			return false
		}
	}
	if len(p.Extra) == 0 && len(o.Extra) == 0 {
		return true
	}
	return reflect.DeepEqual(p.Extra, o.Extra)
}

// Merge returns p overlaid with every field set in over.
func (p Params) Merge(over Params) Params {
	out := p.Clone()
	if over.VoiceID != "" {
		out.VoiceID = over.VoiceID
	}
	for _, k := range NumericKeys {
		if v, ok := over.Value(k); ok {
			out.Set(k, v)
		}
	}
	for k, v := range over.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}
	return out
}

// FromMap builds Params from a loosely typed settings map, as found in
// script files and configuration.
func FromMap(m map[string]any) (Params, error) {
	var p Params
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		if k == KeyVoiceID {
			s, ok := v.(string)
			if !ok {
				return Params{}, fmt.Errorf("%s must be a string, got %T", k, v)
			}
			p.VoiceID = s
			continue
		}
		if p.slot(k) == nil {
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[k] = v
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return Params{}, fmt.Errorf("%s: %w", k, err)
		}
		p.Set(k, f)
	}
	return p, nil
}

// ToMap flattens the parameters into the request shape backends expect.
// Extras are only included when includeExtra is set.
func (p Params) ToMap(includeExtra bool) map[string]any {
	out := make(map[string]any)
	if p.VoiceID != "" {
		out[KeyVoiceID] = p.VoiceID
	}
	for _, k := range NumericKeys {
		if v, ok := p.Value(k); ok {
			out[k] = v
		}
	}
	if includeExtra {
		for k, v := range p.Extra {
			if _, taken := out[k]; !taken {
				out[k] = v
			}
		}
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
