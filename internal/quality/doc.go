// Package quality implements multi-candidate generation: every utterance is
// rendered several times with perturbed parameters, each attempt is scored
// by a transcription validator and a signal analyzer, and the best one is
// kept. Attempts that do not clear the threshold trigger a retry pass with
// more aggressive variations.
package quality
