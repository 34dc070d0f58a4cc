package audio

import (
	"errors"
	"math"
	"time"
)

// Canonical output format.
const (
	// SampleRate is the target rate in Hz
	SampleRate = 22050
	// Channels is the number of audio channels (1 = mono)
	Channels = 1
	// BitDepth is the bit depth per sample (16-bit)
	BitDepth = 16

	// DefaultGap is the silence inserted between concatenated clips.
	DefaultGap = 300 * time.Millisecond
)

var (
	// ErrNoInput is returned when there is nothing to concatenate.
	ErrNoInput = errors.New("no input clips")

	// ErrUnsupportedFormat is returned for files that cannot be decoded
	// without an external decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Clip is mono audio as floats in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds returns the duration in seconds.
func (c *Clip) Seconds() float64 {
	return c.Duration().Seconds()
}

// Silence returns d worth of zero samples at rate.
func Silence(d time.Duration, rate int) []float64 {
	n := int(math.Round(d.Seconds() * float64(rate)))
	if n < 0 {
		n = 0
	}
	return make([]float64, n)
}
