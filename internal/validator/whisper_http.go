package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTPModel transcribes through a whisper HTTP service.
type HTTPModel struct {
	apiURL     string
	model      string
	language   string
	httpClient *http.Client
}

// NewHTTPModel checks the service is reachable before returning. An
// unreachable service yields ErrBackendUnavailable.
func NewHTTPModel(ctx context.Context, apiURL, model, language string, timeout time.Duration) (*HTTPModel, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("%w: no service url configured", ErrBackendUnavailable)
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	m := &HTTPModel{
		apiURL:     strings.TrimRight(apiURL, "/"),
		model:      model,
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
	}

	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.HealthCheck(hctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return m, nil
}

// Transcribe uploads audioPath as multipart form data.
func (m *HTTPModel) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	fields := map[string]string{
		"model":           m.model,
		"response_format": "verbose_json",
		"temperature":     "0.0",
	}
	if m.language != "" {
		fields["language"] = m.language
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/api/whisper/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var t Transcription
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	t.Text = strings.TrimSpace(t.Text)
	return &t, nil
}

// HealthCheck verifies the service answers.
func (m *HTTPModel) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiURL+"/api/whisper/model", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// Name returns the model identifier.
func (m *HTTPModel) Name() string {
	return "whisper-http:" + m.model
}

// Close releases idle connections.
func (m *HTTPModel) Close() error {
	m.httpClient.CloseIdleConnections()
	return nil
}
