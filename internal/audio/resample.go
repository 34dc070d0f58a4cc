package audio

import "math"

// Resample converts clip to rate using linear interpolation. The input is
// returned unchanged when the rates already match.
func Resample(clip *Clip, rate int) *Clip {
	if clip.SampleRate == rate || len(clip.Samples) == 0 || clip.SampleRate == 0 {
		return &Clip{Samples: clip.Samples, SampleRate: rate}
	}

	in := clip.Samples
	n := int(math.Round(float64(len(in)) * float64(rate) / float64(clip.SampleRate)))
	out := make([]float64, n)
	step := float64(clip.SampleRate) / float64(rate)

	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j+1 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return &Clip{Samples: out, SampleRate: rate}
}
