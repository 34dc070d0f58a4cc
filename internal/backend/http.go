package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// HTTP posts utterances to a synthesis service. The service either answers
// with audio bytes or with JSON naming a file it wrote.
type HTTP struct {
	url          string
	outDir       string
	client       *http.Client
	limiter      *rate.Limiter
	forwardExtra bool
}

type synthRequest struct {
	Text   string         `json:"text"`
	Params map[string]any `json:"params"`
}

type synthResponse struct {
	AudioPath string `json:"audio_path"`
	Error     string `json:"error"`
}

// NewHTTP returns a client for url. requestsPerMinute <= 0 disables rate
// limiting.
func NewHTTP(url, outDir string, requestsPerMinute int, timeout time.Duration, forwardExtra bool) (*HTTP, error) {
	if url == "" {
		return nil, errors.New("no tts service url configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &HTTP{
		url:          url,
		outDir:       outDir,
		client:       &http.Client{Timeout: timeout},
		limiter:      limiter,
		forwardExtra: forwardExtra,
	}, nil
}

// Name implements Backend.
func (h *HTTP) Name() string {
	return KindHTTP + ":" + h.url
}

// Synthesize implements Backend.
func (h *HTTP) Synthesize(ctx context.Context, text string, params voice.Params) (path string, err error) {
	start := time.Now()
	defer func() { metrics.RecordTTSRequest(KindHTTP, err == nil, time.Since(start).Seconds()) }()

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(synthRequest{Text: text, Params: params.ToMap(h.forwardExtra)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("tts service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var r synthResponse
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return "", fmt.Errorf("failed to parse JSON response: %w", err)
		}
		if r.Error != "" {
			return "", fmt.Errorf("tts service: %s", r.Error)
		}
		if err := checkOutput(r.AudioPath); err != nil {
			return "", err
		}
		return r.AudioPath, nil
	}

	out := outputPath(h.outDir, extension(mediaType))
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("failed to read audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}
	return out, nil
}

func extension(mediaType string) string {
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ".wav"
	}
}
