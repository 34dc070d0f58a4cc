package quality

import (
	"math"

	"github.com/dgnsrekt/voicestudio/internal/voice"
)

type step struct {
	key         string
	factor      float64
	switchVoice bool
}

var initialSchedule = []step{
	{}, // baseline
	{key: voice.KeyTemperature, factor: 1.05},
	{key: voice.KeySpeed, factor: 0.98},
	{key: voice.KeyStability, factor: 0.95},
	{key: voice.KeySimilarityBoost, factor: 1.10},
}

var retrySchedule = []step{
	{key: voice.KeyTemperature, factor: 0.8},
	{key: voice.KeyTemperature, factor: 1.2},
	{key: voice.KeySpeed, factor: 0.9},
	{key: voice.KeyStability, factor: 1.1},
	{switchVoice: true},
}

// Perturber produces the deterministic parameter variations tried for each
// candidate. Indexes past the end of a schedule keep its last entry and
// compound the last numeric step once more per index, so every index yields
// distinct params.
type Perturber struct {
	// AlternativeVoice replaces voice_id on the final retry step. Empty
	// leaves the voice unchanged.
	AlternativeVoice string
}

// Initial returns the params for candidate i of the first pass.
func (p Perturber) Initial(base voice.Params, i int) voice.Params {
	return p.apply(base, initialSchedule, i)
}

// Retry returns the params for retry candidate j.
func (p Perturber) Retry(base voice.Params, j int) voice.Params {
	return p.apply(base, retrySchedule, j)
}

func (p Perturber) apply(base voice.Params, schedule []step, i int) voice.Params {
	out := base.Clone()
	if i < 0 {
		i = 0
	}
	if i < len(schedule) {
		p.step(&out, base, schedule[i], 1)
		return out
	}

	p.step(&out, base, schedule[len(schedule)-1], 1)
	for k := len(schedule) - 1; k >= 0; k-- {
		if schedule[k].key != "" {
			p.step(&out, base, schedule[k], i-len(schedule)+2)
			break
		}
	}
	return out
}

func (p Perturber) step(out *voice.Params, base voice.Params, s step, power int) {
	switch {
	case s.switchVoice:
		if p.AlternativeVoice != "" {
			out.VoiceID = p.AlternativeVoice
		}
	case s.key != "":
		out.Set(s.key, base.ValueOrDefault(s.key)*math.Pow(s.factor, float64(power)))
	}
}
