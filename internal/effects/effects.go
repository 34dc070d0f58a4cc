// Package effects applies "inner voice" post effects (echo, reverb and
// lowpass) to dialogue clips through an external audio filter tool.
package effects

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/subprocess"
)

// Preset names.
const (
	Light  = "light"
	Deep   = "deep"
	Dreamy = "dreamy"
)

// DefaultTool is the filter tool invoked for every effect.
const DefaultTool = "ffmpeg"

var (
	// ErrUnknownPreset is returned for preset names with no configuration.
	ErrUnknownPreset = errors.New("unknown inner voice preset")

	// ErrEffectFailed is returned when the tool fails or writes nothing.
	ErrEffectFailed = errors.New("inner voice effect failed")
)

// Preset is the configuration of one effect.
type Preset struct {
	Delay  float64 `yaml:"delay" json:"delay"`
	Decay  float64 `yaml:"decay" json:"decay"`
	Gain   float64 `yaml:"gain" json:"gain"`
	Filter string  `yaml:"filter" json:"filter"`
}

// Custom overrides the echo parameters for a single call. Zero fields
// fall back to 400 ms delay, 0.3 decay and 0.5 gain.
type Custom struct {
	Delay float64 `yaml:"delay" json:"delay"`
	Decay float64 `yaml:"decay" json:"decay"`
	Gain  float64 `yaml:"gain" json:"gain"`
}

// DefaultPresets returns the built-in presets.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		Light: {
			Delay: 80, Decay: 0.4, Gain: 0.6,
			Filter: "aecho=0.6:0.4:80:0.35",
		},
		Deep: {
			Delay: 120, Decay: 0.7, Gain: 0.7,
			Filter: "aecho=0.7:0.7:120:0.7, lowpass=f=3000",
		},
		Dreamy: {
			Delay: 200, Decay: 0.8, Gain: 0.7,
			Filter: "volume=0.8, aecho=0.7:0.8:200:0.8, lowpass=f=3000",
		},
	}
}

// Processor runs effects. It is safe for concurrent use.
type Processor struct {
	tool    string
	runner  *subprocess.Runner
	timeout time.Duration
	logger  *log.Logger

	mu      sync.RWMutex
	presets map[string]Preset
}

// NewProcessor creates a processor using the built-in presets.
func NewProcessor(tool string, runner *subprocess.Runner, timeout time.Duration, logger *log.Logger) *Processor {
	if tool == "" {
		tool = DefaultTool
	}
	if runner == nil {
		runner = subprocess.NewRunner(timeout, false)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		tool:    tool,
		runner:  runner,
		timeout: timeout,
		logger:  logger,
		presets: DefaultPresets(),
	}
}

// Presets returns the configured preset names in sorted order.
func (p *Processor) Presets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.presets))
	for name := range p.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the configuration for name.
func (p *Processor) Preset(name string) (Preset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pr, ok := p.presets[name]
	return pr, ok
}

type presetFile struct {
	InnerVoice struct {
		Presets map[string]Preset `yaml:"presets"`
	} `yaml:"inner_voice"`
	InnerVoiceConfig struct {
		Presets map[string]Preset `yaml:"presets"`
	} `yaml:"inner_voice_config"`
}

// LoadPresets merges presets from a YAML or JSON file with an
// inner_voice.presets or inner_voice_config.presets section. Fields left
// out of the file keep their current values.
func (p *Processor) LoadPresets(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read presets: %w", err)
	}

	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse presets %s: %w", path, err)
	}
	loaded := f.InnerVoice.Presets
	if len(loaded) == 0 {
		loaded = f.InnerVoiceConfig.Presets
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no inner voice presets in %s", path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pr := range loaded {
		cur := p.presets[name]
		if pr.Delay != 0 {
			cur.Delay = pr.Delay
		}
		if pr.Decay != 0 {
			cur.Decay = pr.Decay
		}
		if pr.Gain != 0 {
			cur.Gain = pr.Gain
		}
		if pr.Filter != "" {
			cur.Filter = pr.Filter
		}
		if cur.Filter == "" {
			cur.Filter = buildFilter(name, Custom{Delay: cur.Delay, Decay: cur.Decay, Gain: cur.Gain})
		}
		p.presets[name] = cur
	}
	p.logger.Debug("Loaded inner voice presets", "path", path, "count", len(loaded))
	return nil
}

// Filter returns the filter expression for preset, built from custom when
// it is given.
func (p *Processor) Filter(preset string, custom *Custom) (string, error) {
	pr, ok := p.Preset(preset)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	if custom != nil {
		return buildFilter(preset, *custom), nil
	}
	return pr.Filter, nil
}

func buildFilter(preset string, c Custom) string {
	if c.Delay == 0 {
		c.Delay = 400
	}
	if c.Decay == 0 {
		c.Decay = 0.3
	}
	if c.Gain == 0 {
		c.Gain = 0.5
	}
	g, d, ms := num(c.Gain), num(c.Decay), num(c.Delay)

	switch preset {
	case Deep:
		return fmt.Sprintf("aecho=%s:%s:%s:%s,lowpass=f=3000", g, d, ms, d)
	case Dreamy:
		return fmt.Sprintf("volume=0.8,aecho=%s:%s:%s:%s,lowpass=f=3000", g, d, ms, d)
	default:
		return fmt.Sprintf("aecho=%s:%s:%s:0.3", g, d, ms)
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Apply filters input into output. On any error output is left absent and
// the caller should keep using input.
func (p *Processor) Apply(ctx context.Context, input, output, preset string, custom *Custom) (err error) {
	defer func() { metrics.RecordEffect(preset, err == nil) }()

	filter, err := p.Filter(preset, custom)
	if err != nil {
		return err
	}
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("%w: input: %v", ErrEffectFailed, err)
	}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrEffectFailed, err)
		}
	}

	start := time.Now()
	_, runErr := p.runner.Run(ctx, subprocess.Options{
		Command: p.tool,
		Args:    []string{"-y", "-i", input, "-af", filter, output},
		Timeout: p.timeout,
	})
	metrics.RecordDuration("effect", time.Since(start).Seconds())
	if runErr != nil {
		os.Remove(output)
		p.logger.Warn("Inner voice effect failed", "preset", preset, "input", input, "err", runErr)
		return fmt.Errorf("%w: %v", ErrEffectFailed, runErr)
	}

	fi, statErr := os.Stat(output)
	if statErr != nil || fi.Size() == 0 {
		os.Remove(output)
		return fmt.Errorf("%w: %s produced no output", ErrEffectFailed, p.tool)
	}

	p.logger.Debug("Applied inner voice effect", "preset", preset, "filter", filter, "output", output)
	return nil
}
