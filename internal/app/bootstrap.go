// Package app wires configuration into a ready verification engine.
// Both the API server and the Temporal worker boot through it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proptrust/backend/internal/classify"
	"github.com/proptrust/backend/internal/config"
	"github.com/proptrust/backend/internal/db"
	"github.com/proptrust/backend/internal/db/repositories"
	"github.com/proptrust/backend/internal/entity"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/ledger"
	"github.com/proptrust/backend/internal/risk"
	"github.com/proptrust/backend/internal/translate"
	"github.com/proptrust/backend/internal/verification"
)

// Deps carries the wired collaborators so entrypoints can close them.
type Deps struct {
	Ledger        ledger.Ledger
	Extractor     extraction.Extractor
	Translator    translate.Translator
	Classifier    classify.Classifier
	Properties    *repositories.PropertyRepository
	Verifications *repositories.VerificationRepository
	Tampers       *repositories.TamperRepository
	Audits        *repositories.AuditRepository
}

// Close releases adapter resources. The database pool is owned by the
// caller.
func (d *Deps) Close() {
	d.Extractor.Close()
	d.Translator.Close()
	d.Classifier.Close()
	d.Ledger.Close()
}

// BuildEngine wires adapters, repositories and the orchestrator from
// configuration.
func BuildEngine(ctx context.Context, cfg *config.Config, database *db.DB, logger *slog.Logger) (*verification.Orchestrator, *Deps, error) {
	deps := &Deps{
		Properties:    repositories.NewPropertyRepository(database.DB),
		Verifications: repositories.NewVerificationRepository(database.DB),
		Tampers:       repositories.NewTamperRepository(database.DB),
		Audits:        repositories.NewAuditRepository(database.DB),
	}

	// OCR adapter.
	switch cfg.OCR.Mode {
	case "remote":
		deps.Extractor = extraction.NewRemoteExtractor(cfg.OCR.RemoteURL, cfg.Engine.ExtractionTimeout, logger)
	default:
		tess, err := extraction.NewTesseractExtractor(logger, &extraction.TesseractConfig{
			TesseractPath: cfg.OCR.TesseractPath,
			PDFTextPath:   "pdftotext",
			Languages:     cfg.OCR.Languages,
			WorkDir:       cfg.OCR.WorkDir,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ocr adapter: %w", err)
		}
		deps.Extractor = tess
	}

	// Translator, cached by content hash.
	var translator translate.Translator = translate.PassThrough{}
	if cfg.Translation.RemoteURL != "" {
		translator = translate.NewRemote(cfg.Translation.RemoteURL, cfg.Engine.TranslationTimeout, logger)
	}
	deps.Translator = translate.NewCaching(translator, cfg.Translation.CacheCapacity)

	// Classifier: remote model when configured, keyword fallback otherwise.
	if cfg.Classifier.RemoteURL != "" {
		deps.Classifier = classify.NewRemoteClassifier(cfg.Classifier.RemoteURL, cfg.Engine.ClassifierTimeout, logger)
	} else {
		deps.Classifier = classify.NewHeuristic()
	}

	// Entity model is optional; rules always run.
	var model entity.Model
	if cfg.Classifier.NERModelURL != "" {
		model = entity.NewRemoteModel(cfg.Classifier.NERModelURL, cfg.Engine.ClassifierTimeout, logger)
	}
	entityExtractor := entity.NewExtractor(model, cfg.Engine.ModelConfidenceFloor, logger)

	// Ledger backend.
	switch cfg.Ledger.Backend {
	case config.LedgerBackendEthereum:
		ethConfig := ledger.DefaultEthereumConfig()
		ethConfig.RPCURL = cfg.Ledger.Endpoint
		ethConfig.ContractAddress = cfg.Ledger.ContractAddress
		ethConfig.PrivateKey = cfg.Ledger.PrivateKey
		ethConfig.Identity = cfg.Ledger.Identity
		ethConfig.Timeout = cfg.Engine.LedgerTimeout

		eth, err := ledger.NewEthereum(ctx, ethConfig, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("ethereum ledger: %w", err)
		}
		deps.Ledger = eth
	default:
		deps.Ledger = ledger.NewLocal(database, cfg.Ledger.Identity, logger)
	}

	scorer := risk.NewScorer(cfg.Engine.DataQualityCharsFloor, nil)

	opts := verification.Options{
		ExtractionTimeout:         cfg.Engine.ExtractionTimeout,
		TranslationTimeout:        cfg.Engine.TranslationTimeout,
		ClassifierTimeout:         cfg.Engine.ClassifierTimeout,
		LedgerTimeout:             cfg.Engine.LedgerTimeout,
		ClassifierConfidenceFloor: cfg.Engine.ClassifierConfidenceFloor,
		DataQualityCharsFloor:     cfg.Engine.DataQualityCharsFloor,
		TextPreviewMaxChars:       cfg.Engine.TextPreviewMaxChars,
	}

	engine := verification.NewOrchestrator(
		deps.Extractor, deps.Translator, entityExtractor, deps.Classifier, scorer,
		deps.Ledger, deps.Verifications, deps.Tampers, deps.Audits,
		opts, logger, nil,
	)
	return engine, deps, nil
}
