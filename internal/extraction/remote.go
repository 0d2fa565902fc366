package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/proptrust/backend/internal/engine"
)

// RemoteExtractor calls a hosted OCR service over HTTP.
type RemoteExtractor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewRemoteExtractor creates an HTTP-backed OCR adapter.
func NewRemoteExtractor(url string, timeout time.Duration, logger *slog.Logger) *RemoteExtractor {
	return &RemoteExtractor{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("service", "ocr"),
	}
}

type ocrRequest struct {
	Document string `json:"document"` // base64
	Format   string `json:"format"`
}

type ocrResponse struct {
	Pages        []string `json:"pages"`
	LanguageHint string   `json:"language_hint"`
}

// ExtractText posts the document to the OCR service.
func (r *RemoteExtractor) ExtractText(ctx context.Context, document []byte, format Format) (*Result, error) {
	if len(document) == 0 {
		return nil, engine.New(engine.KindBadInput, engine.StageExtraction, "empty document")
	}
	if format != FormatImage && format != FormatPDF {
		return nil, engine.New(engine.KindBadInput, engine.StageExtraction, fmt.Sprintf("unsupported format %q", format))
	}

	body, err := json.Marshal(ocrRequest{
		Document: base64.StdEncoding.EncodeToString(document),
		Format:   string(format),
	})
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageExtraction, "marshal ocr request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageExtraction, "build ocr request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, engine.Wrap(engine.KindExternalUnavailable, engine.StageExtraction, "ocr service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, engine.New(engine.KindExternalUnavailable, engine.StageExtraction,
			fmt.Sprintf("ocr service returned %d: %s", resp.StatusCode, payload))
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, engine.Wrap(engine.KindExternalUnavailable, engine.StageExtraction, "decode ocr response", err)
	}

	result := &Result{Pages: out.Pages, LanguageHint: out.LanguageHint}
	r.logger.Debug("remote extraction complete", "pages", len(out.Pages))
	return finish(result), nil
}

// Close releases idle connections held by the OCR client.
func (r *RemoteExtractor) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
