package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/subprocess"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

func TestToneSynthesize(t *testing.T) {
	b := NewTone(t.TempDir())
	params := voice.Params{VoiceID: "hero", Speed: voice.Float(2)}

	path, err := b.Synthesize(context.Background(), "one two three four five", params)
	require.NoError(t, err)

	clip, err := audio.ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, clip.SampleRate)
	// five words at 0.4s each, doubled speed
	assert.InDelta(t, 1.0, clip.Seconds(), 0.01)

	_, err = b.Synthesize(context.Background(), "   ", params)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestToneDistinctFiles(t *testing.T) {
	b := NewTone(t.TempDir())
	p1, err := b.Synthesize(context.Background(), "hi", voice.Params{})
	require.NoError(t, err)
	p2, err := b.Synthesize(context.Background(), "hi", voice.Params{})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestBasePitchStable(t *testing.T) {
	assert.Equal(t, basePitch("narrator"), basePitch("narrator"))
	p := basePitch("anything")
	assert.True(t, p >= 110 && p < 260, "pitch %v out of range", p)
}

func TestExpandArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		params voice.Params
		want   []string
	}{
		{
			name:   "piper",
			args:   PiperArgs,
			params: voice.Params{Speed: voice.Float(0.5)},
			want:   []string{"--output_file", "/out.wav", "--length_scale", "2.00"},
		},
		{
			name:   "voice flag kept",
			args:   []string{"--speaker", "{voice}", "--rate", "{speed}", "{output}"},
			params: voice.Params{VoiceID: "v2"},
			want:   []string{"--speaker", "v2", "--rate", "1.00", "/out.wav"},
		},
		{
			name:   "voice flag dropped without voice",
			args:   []string{"--speaker", "{voice}", "{output}"},
			params: voice.Params{},
			want:   []string{"/out.wav"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandArgs(tt.args, "/out.wav", tt.params))
		})
	}
}

func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engines need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-tts")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCommandSynthesize(t *testing.T) {
	// writes stdin and the exported params into the output file
	engine := fakeEngine(t, `{ cat; echo; echo "$VOICESTUDIO_VOICE_PARAMS"; } > "$1"`)
	c, err := NewCommand(engine, []string{"{output}"}, t.TempDir(), subprocess.NewRunner(5*time.Second, true), false)
	require.NoError(t, err)

	params := voice.Params{VoiceID: "hero", Temperature: voice.Float(0.8), Extra: map[string]any{"pitch": 2}}
	path, err := c.Synthesize(context.Background(), "Hello there.", params)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Hello there.", lines[0])

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &sent))
	assert.Equal(t, "hero", sent["voice_id"])
	assert.NotContains(t, sent, "pitch", "extras are not forwarded by default")
}

func TestCommandFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"exit status", `echo boom >&2; exit 3`, nil},
		{"no output", `exit 0`, ErrNoOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCommand(fakeEngine(t, tt.body), nil, t.TempDir(), subprocess.NewRunner(time.Second, false), false)
			require.NoError(t, err)
			_, err = c.Synthesize(context.Background(), "text", voice.Params{})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	_, err := NewCommand("", nil, t.TempDir(), nil, false)
	assert.Error(t, err)
}

func TestHTTPSynthesizeAudio(t *testing.T) {
	var got synthRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, "ID3fake-mp3")
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, t.TempDir(), 0, time.Second, true)
	require.NoError(t, err)

	path, err := h.Synthesize(context.Background(), "Hi.", voice.Params{Speed: voice.Float(1.1), Extra: map[string]any{"pitch": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, ".mp3", filepath.Ext(path))
	assert.Equal(t, "Hi.", got.Text)
	assert.Equal(t, 1.1, got.Params["speed"])
	assert.Equal(t, 2.0, got.Params["pitch"])
}

func TestHTTPSynthesizeJSON(t *testing.T) {
	written := filepath.Join(t.TempDir(), "server.wav")
	require.NoError(t, os.WriteFile(written, []byte("RIFF"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(synthResponse{AudioPath: written})
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, t.TempDir(), 0, time.Second, false)
	require.NoError(t, err)
	path, err := h.Synthesize(context.Background(), "Hi.", voice.Params{})
	require.NoError(t, err)
	assert.Equal(t, written, path)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, t.TempDir(), 0, time.Second, false)
	require.NoError(t, err)
	_, err = h.Synthesize(context.Background(), "Hi.", voice.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "audio/wav")
		io.WriteString(w, "RIFF")
	}))
	defer srv.Close()

	// one request per minute: the second call must wait past the deadline
	h, err := NewHTTP(srv.URL, t.TempDir(), 1, time.Second, false)
	require.NoError(t, err)

	_, err = h.Synthesize(context.Background(), "one", voice.Params{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.Synthesize(ctx, "two", voice.Params{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew(t *testing.T) {
	b, err := New(Config{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, KindTone, b.Name())

	_, err = New(Config{Kind: "carrier-pigeon", OutputDir: t.TempDir()})
	assert.Error(t, err)

	_, err = New(Config{Kind: KindCommand, Command: "definitely-not-a-tts-binary", OutputDir: t.TempDir()})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoOutput))
}

func TestToneDurationFloor(t *testing.T) {
	d := NewTone(t.TempDir()).Duration("hi", voice.Params{})
	assert.Equal(t, 500*time.Millisecond, d)
	assert.False(t, math.IsNaN(d.Seconds()))
}

// countingBackend wraps Tone and counts engine calls.
type countingBackend struct {
	*Tone
	calls atomic.Int32
}

func (b *countingBackend) Synthesize(ctx context.Context, text string, params voice.Params) (string, error) {
	b.calls.Add(1)
	return b.Tone.Synthesize(ctx, text, params)
}

func TestCachedSynthesize(t *testing.T) {
	dir := t.TempDir()
	engine := &countingBackend{Tone: NewTone(dir)}
	c := NewCached(engine, 10<<20, dir)
	assert.Equal(t, KindTone, c.Name())

	params := voice.Params{Speed: voice.Float(1)}
	first, err := c.Synthesize(context.Background(), "Yes.", params)
	require.NoError(t, err)
	second, err := c.Synthesize(context.Background(), "Yes.", params)
	require.NoError(t, err)

	assert.Equal(t, int32(1), engine.calls.Load(), "repeat served from cache")
	assert.NotEqual(t, first, second, "each call gets its own file")
	assert.Equal(t, ".wav", filepath.Ext(second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// the controller deletes rejected candidates; the cache must not care
	require.NoError(t, os.Remove(first))
	_, err = c.Synthesize(context.Background(), "Yes.", params)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "Yes.", voice.Params{Speed: voice.Float(1.1)})
	require.NoError(t, err)
	assert.Equal(t, int32(2), engine.calls.Load(), "different params miss")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(2), s.Misses)
}

func TestSniffExt(t *testing.T) {
	tests := map[string][]byte{
		".wav":  []byte("RIFF....WAVE"),
		".ogg":  []byte("OggS\x00"),
		".flac": []byte("fLaC"),
		".mp3":  []byte("ID3\x03"),
	}
	for want, data := range tests {
		assert.Equal(t, want, sniffExt(data))
	}
	assert.Equal(t, ".mp3", sniffExt([]byte{0xFF, 0xFB, 0x90}))
}
