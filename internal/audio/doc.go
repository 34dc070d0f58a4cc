// Package audio decodes, resamples and writes the canonical mono 16-bit PCM
// WAV format used throughout the pipeline, and joins clips with fixed
// silence gaps into segment and final tracks.
package audio
