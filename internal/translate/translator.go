// Package translate wraps the external machine-translation capability.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Translator converts cleaned text to English. Failure is non-fatal to
// the pipeline; the orchestrator degrades to the original text.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, error)
	Close() error
}

// PassThrough returns the input unchanged. Used when no translator is
// configured; English hints skip the translator in the orchestrator itself.
type PassThrough struct{}

// Translate returns text as-is.
func (PassThrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// Close is a no-op.
func (PassThrough) Close() error { return nil }

// Remote calls a translation service over HTTP.
type Remote struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemote creates an HTTP-backed translator.
func NewRemote(url string, timeout time.Duration, logger *slog.Logger) *Remote {
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("service", "translator"),
	}
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Text string `json:"text"`
}

// Translate posts text to the translation service.
func (r *Remote) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, SourceLang: sourceLang, TargetLang: "en"})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("translator returned %d: %s", resp.StatusCode, payload)
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translation: %w", err)
	}
	return out.Text, nil
}

// Close releases idle connections held by the translator client.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
