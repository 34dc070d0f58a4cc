// Package analysis scores generated speech from its signal alone: spectral
// clarity, dynamic range and clipping, and MFCC variability as a proxy for
// natural prosody.
package analysis

import (
	"context"
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/quality"
)

// Analysis defaults.
const (
	DefaultFrameSize = 2048
	DefaultHopSize   = 512
	DefaultNumMFCC   = 13
	DefaultNumMels   = 128

	clipLevel = 0.95
	topDB     = 80.0
)

var errEmpty = errors.New("audio contains no samples")

// Features are the raw measurements the scores are derived from.
type Features struct {
	Frames        int     `json:"frames"`
	MeanCentroid  float64 `json:"mean_centroid_hz"`
	MeanBandwidth float64 `json:"mean_bandwidth_hz"`
	Peak          float64 `json:"peak"`
	RMS           float64 `json:"rms"`
	MFCCVariance  float64 `json:"mfcc_variance"`
}

// Analyzer computes signal-level quality scores.
type Analyzer struct {
	loader *audio.Loader

	frameSize int
	hopSize   int
	numMFCC   int
	numMels   int
}

// New returns an analyzer that decodes audio with loader.
func New(loader *audio.Loader) *Analyzer {
	return &Analyzer{
		loader:    loader,
		frameSize: DefaultFrameSize,
		hopSize:   DefaultHopSize,
		numMFCC:   DefaultNumMFCC,
		numMels:   DefaultNumMels,
	}
}

// Analyze returns clarity, technical quality and naturalness scores. When
// the file cannot be decoded every score is neutral with the error attached.
func (a *Analyzer) Analyze(ctx context.Context, path string) []quality.Score {
	clip, err := a.loader.Load(ctx, path)
	if err == nil && len(clip.Samples) == 0 {
		err = errEmpty
	}
	if err != nil {
		return []quality.Score{
			quality.FailedScore(quality.MetricClarity, quality.NeutralScore, err),
			quality.FailedScore(quality.MetricTechnical, quality.NeutralScore, err),
			quality.FailedScore(quality.MetricNaturalness, quality.NeutralScore, err),
		}
	}
	return a.Score(clip)
}

// Score derives the three scores from an already decoded clip.
func (a *Analyzer) Score(clip *audio.Clip) []quality.Score {
	f := a.Measure(clip)
	clipping, dynamic := technicalParts(f)

	return []quality.Score{
		quality.NewScore(quality.MetricClarity, Clarity(f), map[string]any{
			"spectral_centroid":  f.MeanCentroid,
			"spectral_bandwidth": f.MeanBandwidth,
		}),
		quality.NewScore(quality.MetricTechnical, (clipping+dynamic)/2, map[string]any{
			"peak":          f.Peak,
			"rms":           f.RMS,
			"clipping":      clipping,
			"dynamic_range": dynamic,
		}),
		quality.NewScore(quality.MetricNaturalness, Naturalness(f), map[string]any{
			"mfcc_variance": f.MFCCVariance,
		}),
	}
}

// Clarity rewards a focused spectrum: mean centroid over mean bandwidth,
// scaled down by 10.
func Clarity(f Features) float64 {
	return quality.Clamp(f.MeanCentroid / (f.MeanBandwidth + 1) / 10)
}

// Technical averages the clipping penalty with the dynamic range score.
func Technical(f Features) float64 {
	c, d := technicalParts(f)
	return (c + d) / 2
}

func technicalParts(f Features) (clipping, dynamic float64) {
	clipping = 1.0
	if f.Peak >= clipLevel {
		clipping = 0.7
	}
	dr := f.Peak / (f.RMS + 1e-10)
	return clipping, quality.Clamp((dr - 3) / 7)
}

// Naturalness is the mean per-coefficient MFCC variance over 100.
func Naturalness(f Features) float64 {
	return quality.Clamp(f.MFCCVariance / 100)
}

// Measure computes the raw features of clip.
func (a *Analyzer) Measure(clip *audio.Clip) Features {
	y := clip.Samples
	f := Features{}

	var sumSq float64
	for _, s := range y {
		f.Peak = math.Max(f.Peak, math.Abs(s))
		sumSq += s * s
	}
	if len(y) > 0 {
		f.RMS = math.Sqrt(sumSq / float64(len(y)))
	}

	frames := a.stft(y)
	f.Frames = len(frames)
	if len(frames) == 0 {
		return f
	}

	nBins := a.frameSize/2 + 1
	freqs := make([]float64, nBins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(clip.SampleRate) / float64(a.frameSize)
	}

	centroids := make([]float64, len(frames))
	bandwidths := make([]float64, len(frames))
	for i, mag := range frames {
		centroids[i], bandwidths[i] = centroidBandwidth(mag, freqs)
	}
	f.MeanCentroid = stat.Mean(centroids, nil)
	f.MeanBandwidth = stat.Mean(bandwidths, nil)

	mfcc := a.mfcc(frames, clip.SampleRate)
	variances := make([]float64, len(mfcc))
	for c, series := range mfcc {
		variances[c] = stat.PopVariance(series, nil)
	}
	f.MFCCVariance = stat.Mean(variances, nil)

	return f
}

// stft returns the magnitude spectrum of each centered, Hann-windowed frame.
func (a *Analyzer) stft(y []float64) [][]float64 {
	if len(y) == 0 {
		return nil
	}
	n := a.frameSize
	pad := n / 2
	padded := make([]float64, len(y)+2*pad)
	copy(padded[pad:], y)

	win := make([]float64, n)
	floats.AddConst(1, win)
	win = window.Hann(win)

	fft := fourier.NewFFT(n)
	frame := make([]float64, n)
	coeffs := make([]complex128, n/2+1)

	var out [][]float64
	for start := 0; start+n <= len(padded); start += a.hopSize {
		floats.MulTo(frame, padded[start:start+n], win)
		coeffs = fft.Coefficients(coeffs, frame)
		mag := make([]float64, len(coeffs))
		for k, c := range coeffs {
			mag[k] = cmplx.Abs(c)
		}
		out = append(out, mag)
	}
	return out
}

func centroidBandwidth(mag, freqs []float64) (centroid, bandwidth float64) {
	total := floats.Sum(mag)
	if total == 0 {
		return 0, 0
	}
	for k, m := range mag {
		centroid += freqs[k] * m
	}
	centroid /= total

	for k, m := range mag {
		d := freqs[k] - centroid
		bandwidth += m / total * d * d
	}
	return centroid, math.Sqrt(bandwidth)
}

// mfcc returns numMFCC coefficient series, one value per frame.
func (a *Analyzer) mfcc(frames [][]float64, sampleRate int) [][]float64 {
	bank := melFilterBank(a.numMels, a.frameSize, sampleRate)

	// log-mel power spectrogram
	logMel := make([][]float64, len(frames))
	maxDB := math.Inf(-1)
	for i, mag := range frames {
		row := make([]float64, len(bank))
		for m, filter := range bank {
			var e float64
			for k, w := range filter {
				if w != 0 {
					e += w * mag[k] * mag[k]
				}
			}
			row[m] = 10 * math.Log10(math.Max(e, 1e-10))
			maxDB = math.Max(maxDB, row[m])
		}
		logMel[i] = row
	}
	floor := maxDB - topDB
	for _, row := range logMel {
		for m := range row {
			row[m] = math.Max(row[m], floor)
		}
	}

	out := make([][]float64, a.numMFCC)
	for c := range out {
		out[c] = make([]float64, len(frames))
	}
	for i, row := range logMel {
		coeffs := dctII(row, a.numMFCC)
		for c, v := range coeffs {
			out[c][i] = v
		}
	}
	return out
}

func hzToMel(f float64) float64 {
	return 2595 * math.Log10(1+f/700)
}

func melToHz(m float64) float64 {
	return 700 * (math.Pow(10, m/2595) - 1)
}

// melFilterBank builds area-normalized triangular filters spanning 0 Hz to
// Nyquist.
func melFilterBank(numMels, frameSize, sampleRate int) [][]float64 {
	nBins := frameSize/2 + 1
	lo, hi := hzToMel(0), hzToMel(float64(sampleRate)/2)

	edges := make([]float64, numMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(numMels+1))
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		norm := 2 / (right - left)
		filter := make([]float64, nBins)
		for k := range filter {
			f := float64(k) * float64(sampleRate) / float64(frameSize)
			switch {
			case f > left && f <= center:
				filter[k] = norm * (f - left) / (center - left)
			case f > center && f < right:
				filter[k] = norm * (right - f) / (right - center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// dctII computes the first n orthonormal DCT-II coefficients of x.
func dctII(x []float64, n int) []float64 {
	size := float64(len(x))
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i, v := range x {
			sum += v * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*size))
		}
		scale := math.Sqrt(2 / size)
		if k == 0 {
			scale = math.Sqrt(1 / size)
		}
		out[k] = scale * sum
	}
	return out
}
