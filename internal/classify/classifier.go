// Package classify wraps the external document-classifier capability.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/proptrust/backend/internal/domain"
)

// Classifier labels cleaned document text.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
	Close() error
}

// allowedLabels is the fixed label set; anything else collapses to UNKNOWN.
var allowedLabels = map[string]bool{
	domain.ClassClearTitle:       true,
	domain.ClassLoanDetected:     true,
	domain.ClassCourtCase:        true,
	domain.ClassMutationPending:  true,
	domain.ClassForgerySuspected: true,
	domain.ClassUnknown:          true,
}

// ApplyFloor collapses low-confidence or out-of-set labels to UNKNOWN.
// Labels below the floor must never influence the fingerprint, so the
// collapse happens before classification reaches the canonicalizer.
func ApplyFloor(c domain.Classification, floor float64) domain.Classification {
	if !allowedLabels[c.Label] || c.Confidence < floor {
		return domain.Classification{Label: domain.ClassUnknown, Confidence: c.Confidence}
	}
	return c
}

// RemoteClassifier calls a classifier model service over HTTP.
type RemoteClassifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemoteClassifier creates an HTTP-backed classifier.
func NewRemoteClassifier(url string, timeout time.Duration, logger *slog.Logger) *RemoteClassifier {
	return &RemoteClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("service", "classifier"),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify requests a label for the cleaned text.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Classification{}, fmt.Errorf("classifier returned %d: %s", resp.StatusCode, payload)
	}

	var out domain.Classification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	c.logger.Debug("document classified", "label", out.Label, "confidence", out.Confidence)
	return out, nil
}

// Close releases idle connections held by the classifier client.
func (c *RemoteClassifier) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
