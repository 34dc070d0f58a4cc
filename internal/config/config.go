// Package config loads the voicestudio settings from viper into typed,
// validated structs.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/utils"
)

// Quality configures the generate and retry loop.
type Quality struct {
	NumCandidates    int                `mapstructure:"num_candidates" validate:"min=1,max=20"`
	Threshold        float64            `mapstructure:"threshold" validate:"gte=0,lte=1"`
	MaxRetries       int                `mapstructure:"max_retries" validate:"min=0,max=50"`
	KeepCandidates   bool               `mapstructure:"keep_candidates"`
	AlternativeVoice string             `mapstructure:"alternative_voice"`
	Weights          map[string]float64 `mapstructure:"weights" validate:"dive,gte=0"`
	WorkDir          string             `mapstructure:"work_dir"`
}

// Validator configures speech-to-text scoring.
type Validator struct {
	Backend  string        `mapstructure:"backend" validate:"oneof=cli http none"`
	Model    string        `mapstructure:"model" validate:"required"`
	Program  string        `mapstructure:"program"`
	URL      string        `mapstructure:"url" validate:"required_if=Backend http"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Language string        `mapstructure:"language"`
}

// TTS configures the synthesis backend.
type TTS struct {
	Backend           string        `mapstructure:"backend" validate:"oneof=command http tone"`
	Command           string        `mapstructure:"command" validate:"required_if=Backend command"`
	Args              []string      `mapstructure:"args"`
	URL               string        `mapstructure:"url" validate:"required_if=Backend http"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"min=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Serialize         bool          `mapstructure:"serialize"`
	ForwardExtra      bool          `mapstructure:"forward_extra"`

	// CacheMB bounds the in-memory synthesis cache. Zero disables it.
	CacheMB int `mapstructure:"cache_mb" validate:"min=0,max=4096"`
}

// Effects configures the inner voice stage.
type Effects struct {
	Tool        string        `mapstructure:"tool" validate:"required"`
	PresetsFile string        `mapstructure:"presets_file"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Batch configures the orchestrator.
type Batch struct {
	Workers           int     `mapstructure:"workers" validate:"min=0,max=64"`
	SaveReports       bool    `mapstructure:"save_reports"`
	Concatenate       bool    `mapstructure:"concatenate"`
	MatchPolicy       string  `mapstructure:"match_policy" validate:"oneof=distinct similarity"`
	MatchThreshold    float64 `mapstructure:"match_threshold" validate:"gte=0,lte=1"`
	DefaultInnerVoice string  `mapstructure:"default_inner_voice" validate:"omitempty,oneof=light deep dreamy"`
}

// Audio configures decoding and concatenation.
type Audio struct {
	SampleRate int           `mapstructure:"sample_rate" validate:"min=8000,max=192000"`
	Gap        time.Duration `mapstructure:"gap" validate:"gte=0"`
	Decoder    string        `mapstructure:"decoder"`
}

// Archive configures where kept candidates go.
type Archive struct {
	Dir              string `mapstructure:"dir"`
	CapacityMB       int    `mapstructure:"capacity_mb" validate:"min=1,max=100000"`
	CompressionLevel int    `mapstructure:"compression_level" validate:"min=0,max=22"`
}

// Metrics configures the optional prometheus endpoint.
type Metrics struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// Config is the full application configuration.
type Config struct {
	Quality   Quality   `mapstructure:"quality"`
	Validator Validator `mapstructure:"validator"`
	TTS       TTS       `mapstructure:"tts"`
	Effects   Effects   `mapstructure:"effects"`
	Batch     Batch     `mapstructure:"batch"`
	Audio     Audio     `mapstructure:"audio"`
	Archive   Archive   `mapstructure:"archive"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

var validate = validator.New()

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("quality.num_candidates", quality.DefaultNumCandidates)
	v.SetDefault("quality.threshold", quality.DefaultThreshold)
	v.SetDefault("quality.max_retries", quality.DefaultMaxRetries)
	v.SetDefault("quality.keep_candidates", false)
	v.SetDefault("quality.alternative_voice", "")
	v.SetDefault("quality.work_dir", "")

	v.SetDefault("validator.backend", "cli")
	v.SetDefault("validator.model", "base")
	v.SetDefault("validator.program", "whisper")
	v.SetDefault("validator.url", "")
	v.SetDefault("validator.timeout", "30s")
	v.SetDefault("validator.language", "en")

	v.SetDefault("tts.backend", "tone")
	v.SetDefault("tts.command", "")
	v.SetDefault("tts.args", []string{})
	v.SetDefault("tts.url", "")
	v.SetDefault("tts.requests_per_minute", 0)
	v.SetDefault("tts.timeout", "2m")
	v.SetDefault("tts.serialize", false)
	v.SetDefault("tts.forward_extra", false)
	v.SetDefault("tts.cache_mb", 64)

	v.SetDefault("effects.tool", "ffmpeg")
	v.SetDefault("effects.presets_file", "")
	v.SetDefault("effects.timeout", "1m")

	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.save_reports", true)
	v.SetDefault("batch.concatenate", true)
	v.SetDefault("batch.match_policy", "distinct")
	v.SetDefault("batch.match_threshold", 0.7)
	v.SetDefault("batch.default_inner_voice", "light")

	v.SetDefault("audio.sample_rate", 22050)
	v.SetDefault("audio.gap", "300ms")
	v.SetDefault("audio.decoder", "ffmpeg")

	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.capacity_mb", 500)
	v.SetDefault("archive.compression_level", 2)

	v.SetDefault("metrics.addr", "")
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	cfg.Quality.WorkDir = expand(cfg.Quality.WorkDir)
	cfg.Effects.PresetsFile = expand(cfg.Effects.PresetsFile)
	cfg.Archive.Dir = expand(cfg.Archive.Dir)
	if cfg.TTS.Backend == "command" {
		cfg.TTS.Command = expand(cfg.TTS.Command)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for name := range cfg.Quality.Weights {
		if !knownMetric(name) {
			return nil, fmt.Errorf("invalid configuration: unknown quality weight %q", name)
		}
	}
	return &cfg, nil
}

// QualityWeights returns the configured weight table, falling back to the
// defaults for metrics the file leaves out.
func (c *Config) QualityWeights() quality.Weights {
	w := quality.DefaultWeights()
	for name, v := range c.Quality.Weights {
		w[quality.Metric(name)] = v
	}
	return w
}

// ArchiveCapacity is the archive limit in bytes.
func (c *Config) ArchiveCapacity() int64 {
	return int64(c.Archive.CapacityMB) << 20
}

func knownMetric(name string) bool {
	for _, m := range quality.Metrics {
		if string(m) == name {
			return true
		}
	}
	return false
}

func expand(path string) string {
	if path == "" {
		return ""
	}
	return utils.ExpandPath(path)
}
