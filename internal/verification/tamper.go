package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/proptrust/backend/internal/canonical"
	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/engine"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/ledger"
	"github.com/proptrust/backend/internal/risk"
)

// TamperChecker re-runs the pipeline on a fresh upload and contrasts the
// recomputed fingerprint with the anchored one. It never writes to the
// ledger.
type TamperChecker struct {
	engine *Orchestrator
}

// NewTamperChecker creates a tamper checker over the shared pipeline.
func NewTamperChecker(o *Orchestrator) *TamperChecker {
	return &TamperChecker{engine: o}
}

// Check compares a fresh document against the anchored state of a
// property. The result is persisted regardless of outcome.
func (t *TamperChecker) Check(ctx context.Context, propertyID string, document []byte, format extraction.Format) (*domain.TamperCheck, error) {
	o := t.engine

	check := &domain.TamperCheck{
		TamperCheckID: "tmp_" + uuid.NewString(),
		PropertyID:    propertyID,
		CreatedAt:     o.now().UTC(),
	}

	// Step 1: the anchored entry. NotFound is an outcome, not an error.
	ledgerCtx, cancel := context.WithTimeout(ctx, o.opts.LedgerTimeout)
	anchored, err := o.ledger.Get(ledgerCtx, propertyID)
	cancel()
	if errors.Is(err, ledger.ErrNotFound) {
		check.Status = domain.TamperStatusNotFound
		t.persist(ctx, check)
		return check, nil
	}
	if err != nil {
		check.Status = domain.TamperStatusError
		check.Warnings = append(check.Warnings, "ledger_unavailable")
		t.persist(ctx, check)
		return check, engine.Wrap(engine.KindExternalUnavailable, engine.StageLedger, "ledger read failed", err)
	}
	check.AnchoredFingerprint = anchored.Fingerprint

	// Step 2: full pipeline on the new bytes, no anchoring, nothing
	// persisted but the tamper check itself.
	res, err := o.execute(ctx, document, format, propertyID, "tamper_"+check.TamperCheckID)
	if err != nil {
		check.Status = domain.TamperStatusError
		check.Warnings = append(check.Warnings, "pipeline_failed")
		t.persist(ctx, check)
		return check, err
	}
	check.RecomputedFingerprint = res.fingerprint
	check.RiskScoreDelta = res.assessment.Score - anchored.RiskScore

	// Step 3/4: standard fingerprints decide; the comparison form only
	// classifies the mismatch.
	check.HashMatched = bytes.Equal(res.fingerprint, anchored.Fingerprint)
	if check.HashMatched {
		check.Status = domain.TamperStatusVerified
	} else {
		check.Status = domain.TamperStatusTampered
		check.Warnings = append(check.Warnings, t.diagnose(ctx, propertyID, res)...)
	}

	t.persist(ctx, check)
	return check, nil
}

// diagnose explains a mismatch: a risk-score-only change gets the
// RISK_SCORE_CHANGED warning, and the stored record (when available)
// yields per-field and per-factor diffs.
func (t *TamperChecker) diagnose(ctx context.Context, propertyID string, res *pipelineResult) []string {
	o := t.engine
	var warnings []string

	record, detail, err := o.verifications.GetLatestByProperty(ctx, propertyID)
	if err != nil {
		o.logger.Warn("no stored record for tamper diff", "property_id", propertyID, "error", err)
		return warnings
	}

	storedProjection := canonical.Build(propertyID, detail.Entities, record.RiskScore,
		domain.Classification{Label: record.ClassificationLabel, Confidence: record.ClassificationConfidence},
		o.opts.ClassifierConfidenceFloor)

	storedCmp, err1 := storedProjection.ComparisonFingerprint()
	newCmp, err2 := res.projection.ComparisonFingerprint()
	if err1 == nil && err2 == nil && bytes.Equal(storedCmp, newCmp) {
		// Canonical content is identical; only the score moved. Policy:
		// still tampered, but say why.
		warnings = append(warnings, WarnRiskScoreChanged)
	}

	warnings = append(warnings, fieldDiff(storedProjection, res.projection)...)
	warnings = append(warnings, factorDiff(o.scorer, detail, record, res)...)
	return warnings
}

// fieldDiff names the canonical fields that changed.
func fieldDiff(old, cur canonical.Projection) []string {
	var out []string
	diff := func(field, a, b string) {
		if a != b {
			out = append(out, "field_changed:"+field)
		}
	}
	diff("owner", old.Owner, cur.Owner)
	diff("survey_number", old.SurveyNumber, cur.SurveyNumber)
	diff("hissa_number", old.HissaNumber, cur.HissaNumber)
	diff("village", old.Village, cur.Village)
	diff("taluk", old.Taluk, cur.Taluk)
	diff("district", old.District, cur.District)
	diff("classification_label", old.ClassificationLabel, cur.ClassificationLabel)
	if old.ExtentAcres != cur.ExtentAcres || old.ExtentGuntas != cur.ExtentGuntas {
		out = append(out, "field_changed:extent")
	}
	if fmt.Sprint(old.Loans) != fmt.Sprint(cur.Loans) {
		out = append(out, "field_changed:loans")
	}
	if fmt.Sprint(old.CaseNumbers) != fmt.Sprint(cur.CaseNumbers) {
		out = append(out, "field_changed:case_numbers")
	}
	return out
}

// factorDiff reports factors present now but not before and vice versa.
func factorDiff(scorer *risk.Scorer, storedDetail *domain.VerificationDetail, storedRecord *domain.VerificationRecord, res *pipelineResult) []string {
	stored := scorer.Score(storedDetail, domain.Classification{
		Label:      storedRecord.ClassificationLabel,
		Confidence: storedRecord.ClassificationConfidence,
	})

	was := map[string]bool{}
	for _, f := range stored.Factors {
		was[f.Code] = true
	}
	now := map[string]bool{}
	for _, f := range res.assessment.Factors {
		now[f.Code] = true
	}

	var out []string
	for code := range now {
		if !was[code] {
			out = append(out, "factor_added:"+code)
		}
	}
	for code := range was {
		if !now[code] {
			out = append(out, "factor_removed:"+code)
		}
	}
	sort.Strings(out)
	return out
}

// persist stores the check and appends the audit entry.
func (t *TamperChecker) persist(ctx context.Context, check *domain.TamperCheck) {
	o := t.engine
	if err := o.tampers.Create(ctx, check); err != nil {
		o.logger.Error("persist tamper check failed",
			"tamper_check_id", check.TamperCheckID, "error", err)
	}

	status := domain.AuditSuccess
	if check.Status == domain.TamperStatusError {
		status = domain.AuditFailure
	}
	o.audit(ctx, domain.OpTamperCheck, &check.PropertyID, status,
		fmt.Sprintf("status=%s hash_matched=%t", check.Status, check.HashMatched))
}
