// Package risk implements the rule-based risk scorer.
//
// Scoring is additive over independent factors and clamped to 100. The
// factor table is the single authority for weights; recommendations are
// a static mapping from fired factors.
package risk

import (
	"strings"
	"time"

	"github.com/proptrust/backend/internal/domain"
)

// Factor is one named condition that contributed to the score.
type Factor struct {
	Code        string `json:"code"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Assessment is the scorer output.
type Assessment struct {
	Score           int              `json:"risk_score"`
	Level           domain.RiskLevel `json:"risk_level"`
	Factors         []Factor         `json:"factors"`
	Recommendations []string         `json:"recommendations"`
}

// Factor codes.
const (
	FactorLoanPresent        = "loan_present"
	FactorLegalCase          = "legal_case"
	FactorMutationPending    = "mutation_pending"
	FactorOwnerMissing       = "owner_missing"
	FactorSurveyMissing      = "survey_missing"
	FactorDataQualityLow     = "data_quality_low"
	FactorValidityExpired    = "validity_expired"
	FactorClassifierHighRisk = "classifier_high_risk"
)

// weights is the normative factor table.
var weights = map[string]int{
	FactorLoanPresent:        30,
	FactorLegalCase:          15,
	FactorMutationPending:    20,
	FactorOwnerMissing:       15,
	FactorSurveyMissing:      15,
	FactorDataQualityLow:     10,
	FactorValidityExpired:    10,
	FactorClassifierHighRisk: 20,
}

var descriptions = map[string]string{
	FactorLoanPresent:        "Active loan or mortgage entry found in the record",
	FactorLegalCase:          "Court case number referenced in the record",
	FactorMutationPending:    "Mutation appears pending or incomplete",
	FactorOwnerMissing:       "Owner name could not be extracted",
	FactorSurveyMissing:      "Survey number could not be extracted",
	FactorDataQualityLow:     "Extracted text is too short for reliable analysis",
	FactorValidityExpired:    "Record validity period has expired",
	FactorClassifierHighRisk: "Classifier flagged a high-risk document type",
}

var recommendations = map[string]string{
	FactorLoanPresent:        "Obtain a loan clearance or release certificate from the lender before proceeding",
	FactorLegalCase:          "Verify the case status with the jurisdictional court before any transaction",
	FactorMutationPending:    "Confirm the mutation entry is finalized at the taluk office",
	FactorOwnerMissing:       "Cross-check ownership with the original record at the revenue office",
	FactorSurveyMissing:      "Confirm the survey number against the village map",
	FactorDataQualityLow:     "Re-scan the document at higher resolution and re-verify",
	FactorValidityExpired:    "Request a freshly issued copy of the record",
	FactorClassifierHighRisk: "Commission a manual legal review of the document",
}

// Scorer computes risk assessments. It is deterministic given its inputs;
// the clock is injected so validity checks are reproducible in tests.
type Scorer struct {
	charsFloor int
	now        func() time.Time
}

// NewScorer creates a scorer. charsFloor is the minimum cleaned-text
// length considered reliable; now may be nil for the wall clock.
func NewScorer(charsFloor int, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{charsFloor: charsFloor, now: now}
}

// Score evaluates the factor table against a verification detail and its
// (already floor-collapsed) classification.
func (s *Scorer) Score(detail *domain.VerificationDetail, classification domain.Classification) Assessment {
	var fired []string

	if len(detail.Entities.Loans) > 0 {
		fired = append(fired, FactorLoanPresent)
	}
	if len(detail.Entities.CaseNumbers) > 0 {
		fired = append(fired, FactorLegalCase)
	}
	if classification.Label == domain.ClassMutationPending || mutationFlagged(detail.Entities.Mutations) {
		fired = append(fired, FactorMutationPending)
	}
	if detail.Entities.Owner == "" {
		fired = append(fired, FactorOwnerMissing)
	}
	if detail.Entities.SurveyNumber == "" {
		fired = append(fired, FactorSurveyMissing)
	}
	if detail.Stats.CharsCleaned < s.charsFloor {
		fired = append(fired, FactorDataQualityLow)
	}
	if expired(detail.Entities.ValidTo, s.now()) {
		fired = append(fired, FactorValidityExpired)
	}
	if classification.Label == domain.ClassCourtCase || classification.Label == domain.ClassForgerySuspected {
		fired = append(fired, FactorClassifierHighRisk)
	}

	score := 0
	factors := make([]Factor, 0, len(fired))
	recs := make([]string, 0, len(fired))
	for _, code := range fired {
		score += weights[code]
		factors = append(factors, Factor{
			Code:        code,
			Weight:      weights[code],
			Description: descriptions[code],
		})
		recs = append(recs, recommendations[code])
	}
	if score > 100 {
		score = 100
	}

	return Assessment{
		Score:           score,
		Level:           domain.LevelOf(score),
		Factors:         factors,
		Recommendations: recs,
	}
}

// mutationFlagged reports whether any mutation record reads as pending.
func mutationFlagged(mutations []domain.Mutation) bool {
	for _, m := range mutations {
		desc := strings.ToLower(m.Description)
		if strings.Contains(desc, "pending") || strings.Contains(desc, "disputed") {
			return true
		}
	}
	return false
}

// dateLayouts are the formats validity dates appear in after cleaning.
var dateLayouts = []string{"02/01/2006", "02-01-2006", "2006-01-02", "02/01/06", "2/1/2006"}

// expired reports whether validTo parses as a date before today.
// Unparseable or absent dates never fire the factor.
func expired(validTo string, now time.Time) bool {
	validTo = strings.TrimSpace(validTo)
	if validTo == "" {
		return false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, validTo); err == nil {
			return t.Before(now.Truncate(24 * time.Hour))
		}
	}
	return false
}
