package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]any
		want    Params
		wantErr bool
	}{
		{
			name: "known keys",
			in:   map[string]any{"voice_id": "narrator", "speed": 1.1, "temperature": 0.7},
			want: Params{VoiceID: "narrator", Speed: Float(1.1), Temperature: Float(0.7)},
		},
		{
			name: "ints and strings convert",
			in:   map[string]any{"stability": 1, "cfg_weight": "0.25"},
			want: Params{Stability: Float(1), CFGWeight: Float(0.25)},
		},
		{
			name: "unknown keys kept as extra",
			in:   map[string]any{"pitch": 2, "style": "calm"},
			want: Params{Extra: map[string]any{"pitch": 2, "style": "calm"}},
		},
		{
			name:    "bad number",
			in:      map[string]any{"speed": "fast"},
			wantErr: true,
		},
		{
			name:    "voice id must be a string",
			in:      map[string]any{"voice_id": 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMap(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %+v, want %+v", got.ToMap(true), tt.want.ToMap(true))
		})
	}
}

func TestValueOrDefault(t *testing.T) {
	var p Params
	assert.Equal(t, 1.0, p.ValueOrDefault(KeySpeed))
	assert.Equal(t, 0.5, p.ValueOrDefault(KeyStability))

	p.Set(KeySpeed, 1.3)
	v, ok := p.Value(KeySpeed)
	assert.True(t, ok)
	assert.Equal(t, 1.3, v)
	assert.Equal(t, 1.3, p.ValueOrDefault(KeySpeed))
}

func TestCloneIsIndependent(t *testing.T) {
	p := Params{VoiceID: "a", Speed: Float(1), Extra: map[string]any{"x": 1}}
	c := p.Clone()
	c.Set(KeySpeed, 2)
	c.Extra["x"] = 5

	assert.Equal(t, 1.0, *p.Speed)
	assert.Equal(t, 1, p.Extra["x"])
	assert.False(t, p.Equal(c))
}

func TestMerge(t *testing.T) {
	base := Params{VoiceID: "base", Speed: Float(1), Stability: Float(0.5)}
	over := Params{Speed: Float(0.9), Extra: map[string]any{"pitch": 1.0}}

	got := base.Merge(over)
	assert.Equal(t, "base", got.VoiceID)
	assert.Equal(t, 0.9, *got.Speed)
	assert.Equal(t, 0.5, *got.Stability)
	assert.Equal(t, 1.0, got.Extra["pitch"])

	// base untouched
	assert.Equal(t, 1.0, *base.Speed)
	assert.Nil(t, base.Extra)
}

func TestToMap(t *testing.T) {
	p := Params{VoiceID: "v", Temperature: Float(0.8), Extra: map[string]any{"pitch": 2, "speed": 9}}

	assert.Equal(t, map[string]any{"voice_id": "v", "temperature": 0.8}, p.ToMap(false))

	// extras never shadow recognized keys
	p.Set(KeySpeed, 1.2)
	assert.Equal(t, map[string]any{"voice_id": "v", "temperature": 0.8, "speed": 1.2, "pitch": 2}, p.ToMap(true))
}

func TestEqual(t *testing.T) {
	a := Params{Speed: Float(1)}
	b := Params{Speed: Float(1)}
	assert.True(t, a.Equal(b))

	b.Set(KeyTemperature, 1)
	assert.False(t, a.Equal(b), "set vs unset differs even at the default")

	assert.True(t, Params{Extra: map[string]any{}}.Equal(Params{}))
}
