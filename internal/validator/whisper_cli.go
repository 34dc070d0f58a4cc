package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/voicestudio/internal/subprocess"
)

// DefaultProgram is the whisper command-line tool.
const DefaultProgram = "whisper"

// CLIModel transcribes by invoking the whisper command-line tool, which
// loads the model on each call and writes a JSON transcript.
type CLIModel struct {
	program  string
	model    string
	language string
	runner   *subprocess.Runner
}

// NewCLIModel resolves program on PATH. A missing program yields
// ErrBackendUnavailable.
func NewCLIModel(program, model, language string) (*CLIModel, error) {
	if program == "" {
		program = DefaultProgram
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if model == "" {
		model = "base"
	}
	return &CLIModel{
		program:  path,
		model:    model,
		language: language,
		runner:   subprocess.NewRunner(0, false),
	}, nil
}

// Transcribe runs the tool on audioPath and parses its JSON output.
func (m *CLIModel) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	outDir, err := os.MkdirTemp("", "voicestudio-stt-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", m.model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
		"--fp16", "False",
	}
	if m.language != "" {
		args = append(args, "--language", m.language)
	}

	if _, err := m.runner.Execute(ctx, m.program, args...); err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("transcript not written: %w", err)
	}

	var t Transcription
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	t.Text = strings.TrimSpace(t.Text)
	return &t, nil
}

// Name returns the model identifier.
func (m *CLIModel) Name() string {
	return "whisper-cli:" + m.model
}

// Close is a no-op; the tool holds no state between calls.
func (m *CLIModel) Close() error {
	return nil
}
