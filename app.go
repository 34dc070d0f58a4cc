package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicestudio/internal/analysis"
	"github.com/dgnsrekt/voicestudio/internal/archive"
	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/backend"
	"github.com/dgnsrekt/voicestudio/internal/config"
	"github.com/dgnsrekt/voicestudio/internal/effects"
	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/subprocess"
	"github.com/dgnsrekt/voicestudio/internal/validator"
)

// pipeline wires the configured components for one command run.
type pipeline struct {
	backend    backend.Backend
	controller *quality.Controller
	effects    *effects.Processor
	concat     *audio.Concatenator
	archive    *archive.Archive
}

func workDir(c *config.Config) string {
	if c.Quality.WorkDir != "" {
		return c.Quality.WorkDir
	}
	return filepath.Join(cacheDir(), "work")
}

func newLoader(c *config.Config) *audio.Loader {
	loader := audio.NewLoader(subprocess.NewRunner(c.Effects.Timeout, false))
	loader.SampleRate = c.Audio.SampleRate
	if c.Audio.Decoder != "" {
		loader.Decoder = c.Audio.Decoder
	}
	return loader
}

func newConcatenator(c *config.Config) *audio.Concatenator {
	concat := audio.NewConcatenator(newLoader(c))
	concat.Gap = c.Audio.Gap
	return concat
}

func newEffects(c *config.Config) (*effects.Processor, error) {
	fx := effects.NewProcessor(c.Effects.Tool, subprocess.NewRunner(c.Effects.Timeout, false), c.Effects.Timeout, log.Default())
	if c.Effects.PresetsFile != "" {
		if err := fx.LoadPresets(c.Effects.PresetsFile); err != nil {
			return nil, fmt.Errorf("unable to load inner voice presets: %w", err)
		}
	}
	return fx, nil
}

// newPipeline builds the backend, scorer and controller. A dry run swaps
// in the tone backend and skips speech-to-text so nothing external is
// needed.
func newPipeline(c *config.Config, dryRun bool) (*pipeline, error) {
	work := workDir(c)
	loader := newLoader(c)

	ttsCfg := backend.Config{
		Kind:              c.TTS.Backend,
		Command:           c.TTS.Command,
		Args:              c.TTS.Args,
		URL:               c.TTS.URL,
		RequestsPerMinute: c.TTS.RequestsPerMinute,
		Timeout:           c.TTS.Timeout,
		Serialize:         c.TTS.Serialize,
		ForwardExtra:      c.TTS.ForwardExtra,
		OutputDir:         filepath.Join(work, "tts"),
	}
	if dryRun {
		ttsCfg = backend.Config{Kind: backend.KindTone, OutputDir: ttsCfg.OutputDir}
	}
	b, err := backend.New(ttsCfg)
	if err != nil {
		return nil, err
	}
	if c.TTS.CacheMB > 0 {
		b = backend.NewCached(b, int64(c.TTS.CacheMB)<<20, ttsCfg.OutputDir)
	}

	scorer := quality.Pipeline{Analyzer: analysis.New(loader)}
	if !dryRun {
		load, err := validator.NewLoader(validator.LoaderConfig{
			Backend:  c.Validator.Backend,
			Program:  c.Validator.Program,
			URL:      c.Validator.URL,
			Language: c.Validator.Language,
			Timeout:  c.Validator.Timeout,
		})
		if err != nil {
			return nil, err
		}
		cache := validator.Init(load)
		scorer.Validator = validator.New(cache, c.Validator.Model, c.Validator.Timeout, log.Default())
	}

	p := &pipeline{backend: b, concat: newConcatenator(c)}

	opts := []quality.Option{quality.WithLogger(log.Default())}
	if c.Quality.KeepCandidates {
		dir := c.Archive.Dir
		if dir == "" {
			dir = filepath.Join(cacheDir(), "candidates")
		}
		a, err := archive.New(dir, c.ArchiveCapacity(), c.Archive.CompressionLevel)
		if err != nil {
			return nil, err
		}
		p.archive = a
		opts = append(opts, quality.WithArchive(a))
	}

	p.controller = quality.NewController(quality.Config{
		NumCandidates:    c.Quality.NumCandidates,
		Threshold:        c.Quality.Threshold,
		MaxRetries:       c.Quality.MaxRetries,
		AlternativeVoice: c.Quality.AlternativeVoice,
		WorkDir:          filepath.Join(work, "candidates"),
	}, quality.NewEvaluator(scorer, c.QualityWeights()), opts...)

	if p.effects, err = newEffects(c); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the archive and any loaded speech-to-text model.
func (p *pipeline) Close() error {
	var errs []error
	if p.archive != nil {
		errs = append(errs, p.archive.Close())
	}
	errs = append(errs, validator.Shutdown())
	return errors.Join(errs...)
}

// serveMetrics exposes prometheus metrics on addr until the returned
// function is called. An empty addr does nothing.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Warn("Could not start metrics endpoint", "addr", addr, "err", err)
		return func() {}
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics endpoint stopped", "err", err)
		}
	}()
	log.Info("Serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func fileSize(path string) uint64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(fi.Size()) //nolint:gosec
}
