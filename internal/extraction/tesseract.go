package extraction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/proptrust/backend/internal/engine"
)

// TesseractExtractor shells out to the local tesseract binary for images
// and pdftotext for PDFs.
type TesseractExtractor struct {
	logger        *slog.Logger
	tesseractPath string
	pdfTextPath   string
	languages     string
	workDir       string
}

// TesseractConfig contains configuration for the local OCR adapter.
type TesseractConfig struct {
	TesseractPath string
	PDFTextPath   string
	Languages     string
	WorkDir       string
}

// DefaultTesseractConfig returns sensible defaults.
func DefaultTesseractConfig() *TesseractConfig {
	return &TesseractConfig{
		TesseractPath: "tesseract",
		PDFTextPath:   "pdftotext",
		Languages:     "eng+kan",
		WorkDir:       "/tmp/proptrust-ocr",
	}
}

// NewTesseractExtractor creates a local OCR adapter.
func NewTesseractExtractor(logger *slog.Logger, config *TesseractConfig) (*TesseractExtractor, error) {
	if config == nil {
		config = DefaultTesseractConfig()
	}

	if err := os.MkdirAll(config.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	if _, err := exec.LookPath(config.TesseractPath); err != nil {
		logger.Warn("tesseract not found in PATH", "path", config.TesseractPath, "error", err)
		// Don't fail - the adapter reports ExternalUnavailable per call.
	}

	return &TesseractExtractor{
		logger:        logger,
		tesseractPath: config.TesseractPath,
		pdfTextPath:   config.PDFTextPath,
		languages:     config.Languages,
		workDir:       config.WorkDir,
	}, nil
}

// ExtractText runs OCR on the document bytes.
func (t *TesseractExtractor) ExtractText(ctx context.Context, document []byte, format Format) (*Result, error) {
	if len(document) == 0 {
		return nil, engine.New(engine.KindBadInput, engine.StageExtraction, "empty document")
	}

	switch format {
	case FormatImage:
		return t.extractImage(ctx, document)
	case FormatPDF:
		return t.extractPDF(ctx, document)
	default:
		return nil, engine.New(engine.KindBadInput, engine.StageExtraction, fmt.Sprintf("unsupported format %q", format))
	}
}

func (t *TesseractExtractor) extractImage(ctx context.Context, document []byte) (*Result, error) {
	input := filepath.Join(t.workDir, "ocr_"+uuid.NewString()+".img")
	if err := os.WriteFile(input, document, 0o600); err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageExtraction, "write temp image", err)
	}
	defer os.Remove(input)

	// "stdout" makes tesseract print the recognized text directly.
	cmd := exec.CommandContext(ctx, t.tesseractPath, input, "stdout", "-l", t.languages)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.logger.Error("tesseract execution failed", "error", err, "stderr", stderr.String())
		return nil, engine.Wrap(engine.KindExternalUnavailable, engine.StageExtraction, "tesseract execution failed", err)
	}

	text := stdout.String()
	result := &Result{Pages: []string{text}, LanguageHint: hintFromLanguages(t.languages)}
	t.logger.Debug("image extracted", "chars", len(text))
	return finish(result), nil
}

func (t *TesseractExtractor) extractPDF(ctx context.Context, document []byte) (*Result, error) {
	input := filepath.Join(t.workDir, "ocr_"+uuid.NewString()+".pdf")
	if err := os.WriteFile(input, document, 0o600); err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageExtraction, "write temp pdf", err)
	}
	defer os.Remove(input)

	// -layout keeps tabular RTC columns readable; "-" writes to stdout.
	cmd := exec.CommandContext(ctx, t.pdfTextPath, "-layout", input, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.logger.Error("pdftotext execution failed", "error", err, "stderr", stderr.String())
		return nil, engine.Wrap(engine.KindExternalUnavailable, engine.StageExtraction, "pdftotext execution failed", err)
	}

	// pdftotext separates pages with form feeds.
	pages := strings.Split(stdout.String(), "\f")
	for len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	result := &Result{Pages: pages, LanguageHint: hintFromLanguages(t.languages)}
	t.logger.Debug("pdf extracted", "pages", len(pages))
	return finish(result), nil
}

// Close removes the adapter's work directory.
func (t *TesseractExtractor) Close() error {
	return os.RemoveAll(t.workDir)
}

func hintFromLanguages(langs string) string {
	if strings.Contains(langs, "kan") {
		return "kn"
	}
	return "en"
}
