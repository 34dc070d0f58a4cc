package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/voicestudio/internal/utils"
)

// logEnv is read from the environment before flags are parsed, so logging
// is configured for config loading too.
type logEnv struct {
	File       string `env:"VOICESTUDIO_LOG_FILE"`
	Debug      bool   `env:"VOICESTUDIO_DEBUG"`
	MaxSizeMB  int    `env:"VOICESTUDIO_LOG_MAX_SIZE" envDefault:"10"`
	MaxBackups int    `env:"VOICESTUDIO_LOG_MAX_BACKUPS" envDefault:"3"`
}

func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(true)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if cfg.File == "" {
		return func() error { return nil }, nil
	}

	path := utils.ExpandPath(cfg.File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     30,
		Compress:   true,
	}
	log.SetOutput(w)
	log.SetFormatter(log.LogfmtFormatter)
	return w.Close, nil
}
