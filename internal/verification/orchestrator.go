// Package verification drives the document pipeline: extraction,
// normalization, translation, entity extraction, classification, risk
// scoring, fingerprinting, persistence and ledger anchoring.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/proptrust/backend/internal/canonical"
	"github.com/proptrust/backend/internal/classify"
	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/engine"
	"github.com/proptrust/backend/internal/entity"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/ledger"
	"github.com/proptrust/backend/internal/risk"
	"github.com/proptrust/backend/internal/textproc"
	"github.com/proptrust/backend/internal/translate"
)

// Warning annotations added by degraded stages.
const (
	WarnTranslationUnavailable    = "translation_unavailable"
	WarnClassificationUnavailable = "classification_unavailable"
	WarnEmptyExtraction           = "empty_extraction"
	WarnRiskScoreChanged          = "RISK_SCORE_CHANGED"
)

// Options configure pipeline behavior.
type Options struct {
	ExtractionTimeout  time.Duration
	TranslationTimeout time.Duration
	ClassifierTimeout  time.Duration
	LedgerTimeout      time.Duration

	ClassifierConfidenceFloor float64
	DataQualityCharsFloor     int
	TextPreviewMaxChars       int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ExtractionTimeout:         60 * time.Second,
		TranslationTimeout:        30 * time.Second,
		ClassifierTimeout:         20 * time.Second,
		LedgerTimeout:             30 * time.Second,
		ClassifierConfidenceFloor: 0.5,
		DataQualityCharsFloor:     200,
		TextPreviewMaxChars:       2000,
	}
}

// AuditNotifier receives audit entries as they are appended. Used to
// feed the live event stream; may be nil.
type AuditNotifier interface {
	NotifyAudit(entry *domain.AuditLog)
}

// Orchestrator owns the pipeline and its collaborators. All external
// capabilities are injected; there is no module-level state.
type Orchestrator struct {
	extractor  extraction.Extractor
	translator translate.Translator
	entities   *entity.Extractor
	classifier classify.Classifier
	scorer     *risk.Scorer
	ledger     ledger.Ledger

	verifications domain.VerificationRepository
	tampers       domain.TamperRepository
	audits        domain.AuditRepository

	notifier AuditNotifier
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator wires the pipeline. now may be nil for the wall clock.
func NewOrchestrator(
	extractor extraction.Extractor,
	translator translate.Translator,
	entities *entity.Extractor,
	classifier classify.Classifier,
	scorer *risk.Scorer,
	ldg ledger.Ledger,
	verifications domain.VerificationRepository,
	tampers domain.TamperRepository,
	audits domain.AuditRepository,
	opts Options,
	logger *slog.Logger,
	now func() time.Time,
) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		extractor:     extractor,
		translator:    translator,
		entities:      entities,
		classifier:    classifier,
		scorer:        scorer,
		ledger:        ldg,
		verifications: verifications,
		tampers:       tampers,
		audits:        audits,
		opts:          opts,
		logger:        logger,
		now:           now,
	}
}

// SetNotifier attaches a live audit notifier.
func (o *Orchestrator) SetNotifier(n AuditNotifier) { o.notifier = n }

// VerifyRequest is the input to one pipeline run.
type VerifyRequest struct {
	Document     []byte
	Format       extraction.Format
	DeclaredType domain.DocumentType
	// PropertyID is optional; a fresh id is allocated when empty.
	// Supplying the id of an existing property re-verifies it.
	PropertyID string
	Anchor     bool
}

// VerifyResult is the outcome of one pipeline run.
type VerifyResult struct {
	Record     *domain.VerificationRecord
	Detail     *domain.VerificationDetail
	Assessment risk.Assessment
	Receipt    *ledger.Receipt
}

// pipelineResult carries the stage outputs shared by Verify and the
// tamper checker.
type pipelineResult struct {
	detail         *domain.VerificationDetail
	classification domain.Classification
	assessment     risk.Assessment
	projection     canonical.Projection
	fingerprint    []byte
}

// Verify runs the full pipeline and persists the outcome.
func (o *Orchestrator) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if len(req.Document) == 0 {
		err := engine.New(engine.KindBadInput, engine.StageExtraction, "empty document")
		o.audit(ctx, domain.OpVerify, nil, domain.AuditFailure, err.Error())
		return nil, err
	}

	propertyID := req.PropertyID
	if propertyID == "" {
		propertyID = "prop_" + uuid.NewString()
	}
	verificationID := "ver_" + uuid.NewString()

	res, err := o.execute(ctx, req.Document, req.Format, propertyID, verificationID)
	if err != nil {
		o.audit(ctx, domain.OpVerify, &propertyID, domain.AuditFailure, err.Error())
		return nil, err
	}

	record := &domain.VerificationRecord{
		VerificationID:           verificationID,
		PropertyID:               propertyID,
		RiskScore:                res.assessment.Score,
		RiskLevel:                res.assessment.Level,
		ClassificationLabel:      res.classification.Label,
		ClassificationConfidence: res.classification.Confidence,
		Fingerprint:              res.fingerprint,
		CreatedAt:                o.now().UTC(),
	}
	property := &domain.Property{
		PropertyID:     propertyID,
		DocumentType:   req.DeclaredType,
		LastSeenOwner:  res.detail.Entities.Owner,
		LastSeenSurvey: res.detail.Entities.SurveyNumber,
		CreatedAt:      record.CreatedAt,
	}

	if err := ctx.Err(); err != nil {
		wrapped := engine.Wrap(engine.KindCancelled, engine.StagePersistence, "cancelled before persistence", err)
		o.audit(ctx, domain.OpVerify, &propertyID, domain.AuditFailure, wrapped.Error())
		return nil, wrapped
	}

	if err := o.verifications.Create(ctx, property, record, res.detail); err != nil {
		wrapped := engine.Wrap(engine.KindPersistenceFailed, engine.StagePersistence, "persist verification", err)
		o.audit(ctx, domain.OpVerify, &propertyID, domain.AuditFailure, wrapped.Error())
		return nil, wrapped
	}

	result := &VerifyResult{Record: record, Detail: res.detail, Assessment: res.assessment}

	if req.Anchor {
		// Cancellation between persistence and anchoring leaves the
		// record with null anchor fields; the run itself succeeded.
		if ctx.Err() != nil {
			o.audit(ctx, domain.OpAnchor, &propertyID, domain.AuditFailure, "cancelled before anchoring")
			o.audit(ctx, domain.OpVerify, &propertyID, domain.AuditSuccess, "verified without anchor")
			return result, nil
		}
		result.Receipt = o.anchor(ctx, record)
	}

	o.audit(ctx, domain.OpVerify, &propertyID, domain.AuditSuccess,
		fmt.Sprintf("risk_score=%d level=%s", record.RiskScore, record.RiskLevel))
	return result, nil
}

// execute runs the extraction→fingerprint stages without persisting.
func (o *Orchestrator) execute(ctx context.Context, document []byte, format extraction.Format, propertyID, verificationID string) (*pipelineResult, error) {
	// Stage 1: extraction.
	extractCtx, cancel := context.WithTimeout(ctx, o.opts.ExtractionTimeout)
	extracted, err := o.extractor.ExtractText(extractCtx, document, format)
	cancel()
	if err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			return nil, err
		}
		return nil, engine.Wrap(engine.KindExternalUnavailable, engine.StageExtraction, "text extraction failed", err)
	}

	var warnings []string
	rawText := extracted.Text()

	// Stage 2: normalization.
	cleaned := textproc.Normalize(rawText)
	if cleaned == "" {
		// Empty extraction still yields a record; risk scoring will
		// inflate it via the data-quality factor.
		warnings = append(warnings, WarnEmptyExtraction)
	}

	// Stage 3: translation (pass-through for English hints).
	working := cleaned
	if cleaned != "" && extracted.LanguageHint != "" && extracted.LanguageHint != "en" {
		translateCtx, cancel := context.WithTimeout(ctx, o.opts.TranslationTimeout)
		translated, err := o.translator.Translate(translateCtx, cleaned, extracted.LanguageHint)
		cancel()
		if err != nil {
			o.logger.Warn("translation failed, using original text",
				"property_id", propertyID, "error", err)
			warnings = append(warnings, WarnTranslationUnavailable)
		} else {
			working = textproc.Normalize(translated)
		}
	}

	// Stage 4 ∥ 5: entity extraction and classification over the same
	// normalized text.
	var entities domain.EntitySet
	var entityWarnings []string
	classification := domain.Classification{Label: domain.ClassUnknown}
	classifierFailed := false

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entities, entityWarnings = o.entities.Extract(groupCtx, working)
		return nil
	})
	g.Go(func() error {
		classifyCtx, cancel := context.WithTimeout(groupCtx, o.opts.ClassifierTimeout)
		defer cancel()
		c, err := o.classifier.Classify(classifyCtx, working)
		if err != nil {
			// Classifier failure degrades to UNKNOWN with a warning.
			o.logger.Warn("classification failed", "property_id", propertyID, "error", err)
			classification = domain.Classification{Label: domain.ClassUnknown}
			classifierFailed = true
			return nil
		}
		classification = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageEntityExtract, "parallel stage failed", err)
	}
	warnings = append(warnings, entityWarnings...)

	floored := classify.ApplyFloor(classification, o.opts.ClassifierConfidenceFloor)
	if classifierFailed || (floored.Label == domain.ClassUnknown && classification.Label != domain.ClassUnknown) {
		warnings = append(warnings, WarnClassificationUnavailable)
	}

	detail := &domain.VerificationDetail{
		VerificationID: verificationID,
		Entities:       entities,
		TextPreview:    preview(working, o.opts.TextPreviewMaxChars),
		Stats: domain.OCRStats{
			PagesProcessed: extracted.PagesProcessed,
			CharsOriginal:  extracted.CharsOriginal,
			CharsCleaned:   len(working),
			LanguageHint:   extracted.LanguageHint,
		},
		Warnings: warnings,
	}

	// Stage 6: risk scoring on the floored classification so a
	// low-confidence label cannot move the score or the fingerprint.
	assessment := o.scorer.Score(detail, floored)

	// Stage 7: canonical projection and fingerprint.
	projection := canonical.Build(propertyID, entities, assessment.Score,
		domain.Classification{Label: floored.Label, Confidence: classification.Confidence},
		o.opts.ClassifierConfidenceFloor)
	fingerprint, err := projection.Fingerprint()
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, engine.StageFingerprint, "fingerprint failed", err)
	}

	return &pipelineResult{
		detail:         detail,
		classification: floored,
		assessment:     assessment,
		projection:     projection,
		fingerprint:    fingerprint,
	}, nil
}

// anchor writes the fingerprint to the ledger and records the anchor
// fields. Failure is non-fatal: the record keeps null anchor fields and
// the failure lands in the audit trail.
func (o *Orchestrator) anchor(ctx context.Context, record *domain.VerificationRecord) *ledger.Receipt {
	ledgerCtx, cancel := context.WithTimeout(ctx, o.opts.LedgerTimeout)
	defer cancel()

	receipt, err := o.ledger.Put(ledgerCtx, record.PropertyID, record.Fingerprint, record.RiskScore)
	if err != nil {
		o.logger.Error("ledger anchoring failed",
			"property_id", record.PropertyID, "error", err)
		o.audit(ctx, domain.OpAnchor, &record.PropertyID, domain.AuditFailure,
			"LEDGER_FAILURE: "+err.Error())
		return nil
	}

	if err := o.verifications.UpdateAnchor(ctx, record.VerificationID, receipt.Handle, receipt.BlockHeight, receipt.Timestamp); err != nil {
		o.logger.Error("anchor field update failed",
			"verification_id", record.VerificationID, "error", err)
		o.audit(ctx, domain.OpAnchor, &record.PropertyID, domain.AuditFailure, err.Error())
		return receipt
	}

	record.AnchorReference = &receipt.Handle
	height := receipt.BlockHeight
	record.AnchorBlockHeight = &height
	ts := receipt.Timestamp
	record.AnchorTimestamp = &ts

	o.audit(ctx, domain.OpAnchor, &record.PropertyID, domain.AuditSuccess,
		fmt.Sprintf("block_height=%d", receipt.BlockHeight))
	return receipt
}

// AnchorVerification re-attempts anchoring for a persisted record.
// Returns a nil receipt when the record is already anchored.
func (o *Orchestrator) AnchorVerification(ctx context.Context, verificationID string) (*ledger.Receipt, error) {
	record, _, err := o.verifications.GetByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if record.AnchorReference != nil {
		return nil, nil
	}
	receipt := o.anchor(ctx, record)
	if receipt == nil {
		return nil, engine.New(engine.KindExternalUnavailable, engine.StageLedger, "anchoring failed")
	}
	return receipt, nil
}

// Delete removes a property and all dependent rows, appending an audit
// entry. The ledger is never touched.
func (o *Orchestrator) Delete(ctx context.Context, properties domain.PropertyRepository, propertyID string) error {
	if err := properties.Delete(ctx, propertyID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.audit(ctx, domain.OpDelete, &propertyID, domain.AuditFailure, err.Error())
		}
		return err
	}
	o.audit(ctx, domain.OpDelete, &propertyID, domain.AuditSuccess, "cascade delete complete")
	return nil
}

// audit appends a trail entry. Audit failures are logged, never fatal.
func (o *Orchestrator) audit(ctx context.Context, op domain.AuditOperation, propertyID *string, status domain.AuditStatus, message string) {
	entry := &domain.AuditLog{
		ID:         "aud_" + uuid.NewString(),
		Operation:  op,
		PropertyID: propertyID,
		Status:     status,
		Message:    message,
		CreatedAt:  o.now().UTC(),
	}
	// Use a detached context so audit entries survive caller cancellation.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.audits.Append(appendCtx, entry); err != nil {
		o.logger.Error("audit append failed", "operation", op, "error", err)
		return
	}
	if o.notifier != nil {
		o.notifier.NotifyAudit(entry)
	}
}

// preview bounds the cleaned-text preview stored with the detail.
func preview(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
