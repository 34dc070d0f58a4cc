package backend

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// secondsPerWord paces tone output at roughly 150 words per minute.
const secondsPerWord = 0.4

// Tone writes a pitched, syllable-modulated tone instead of speech. It is
// used for dry runs and tests, where a real engine is unavailable.
type Tone struct {
	outDir     string
	sampleRate int
}

// NewTone returns a tone backend writing into outDir.
func NewTone(outDir string) *Tone {
	return &Tone{outDir: outDir, sampleRate: audio.SampleRate}
}

// Name implements Backend.
func (t *Tone) Name() string {
	return KindTone
}

// Duration is the clip length produced for text at params' speed.
func (t *Tone) Duration(text string, params voice.Params) time.Duration {
	speed := params.ValueOrDefault(voice.KeySpeed)
	if speed <= 0 {
		speed = 1
	}
	secs := math.Max(0.5, float64(len(strings.Fields(text)))*secondsPerWord/speed)
	return time.Duration(secs * float64(time.Second))
}

// Synthesize implements Backend.
func (t *Tone) Synthesize(ctx context.Context, text string, params voice.Params) (path string, err error) {
	start := time.Now()
	defer func() { metrics.RecordTTSRequest(KindTone, err == nil, time.Since(start).Seconds()) }()

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	n := int(t.Duration(text, params).Seconds() * float64(t.sampleRate))
	pitch := basePitch(params.VoiceID) * (0.9 + 0.2*params.ValueOrDefault(voice.KeyStability))
	rate := float64(t.sampleRate)

	samples := make([]float64, n)
	for i := range samples {
		x := float64(i) / rate
		// 4 Hz envelope approximates syllables
		env := 0.55 + 0.45*math.Sin(2*math.Pi*4*x)
		samples[i] = 0.3 * env * (math.Sin(2*math.Pi*pitch*x) + 0.3*math.Sin(2*math.Pi*2*pitch*x))
	}

	out := outputPath(t.outDir, ".wav")
	if err := audio.WriteWAV(out, &audio.Clip{Samples: samples, SampleRate: t.sampleRate}); err != nil {
		return "", err
	}
	return out, nil
}

// basePitch maps a voice id to a stable fundamental between 110 and 260 Hz.
func basePitch(voiceID string) float64 {
	h := fnv.New32a()
	h.Write([]byte(voiceID))
	return 110 + float64(h.Sum32()%150)
}
