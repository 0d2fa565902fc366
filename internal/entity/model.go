package entity

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

// RemoteModel calls a trained NER service over HTTP. The service receives
// the cleaned text and returns candidate spans with confidences.
type RemoteModel struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemoteModel creates an HTTP-backed entity model.
func NewRemoteModel(url string, timeout time.Duration, logger *slog.Logger) *RemoteModel {
	return &RemoteModel{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("service", "ner-model"),
	}
}

type nerRequest struct {
	Text string `json:"text"`
}

type nerResponse struct {
	Spans []Span `json:"spans"`
}

// Extract requests spans from the remote model.
func (m *RemoteModel) Extract(ctx context.Context, text string) ([]Span, error) {
	body, err := json.Marshal(nerRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal ner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ner service returned %d: %s", resp.StatusCode, payload)
	}

	var out nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ner response: %w", err)
	}

	m.logger.Debug("ner spans received", "count", len(out.Spans))
	return out.Spans, nil
}

// Close releases idle connections held by the model client.
func (m *RemoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
