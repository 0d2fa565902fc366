package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/proptrust/backend/internal/domain"
)

// Heuristic is a keyword classifier used when no model service is
// configured. Confidences are fixed so its output is deterministic.
type Heuristic struct{}

// NewHeuristic creates the fallback classifier.
func NewHeuristic() *Heuristic { return &Heuristic{} }

var (
	forgeryRe  = regexp.MustCompile(`(?i)\b(forged|forgery|fabricated|counterfeit)\b`)
	courtRe    = regexp.MustCompile(`(?i)\b(court|o\.?s\.?\s*no|suit|writ|litigation|injunction)\b`)
	mutationRe = regexp.MustCompile(`(?i)mutation[^\n]{0,40}(pending|in process|awaiting)`)
	loanRe     = regexp.MustCompile(`(?i)\b(loan|mortgage|hypothecation|charge)\b`)
)

// Classify labels text by keyword priority: forgery, court case,
// pending mutation, loan, then clear title.
func (h *Heuristic) Classify(_ context.Context, text string) (domain.Classification, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Classification{Label: domain.ClassUnknown, Confidence: 0}, nil
	}

	switch {
	case forgeryRe.MatchString(text):
		return domain.Classification{Label: domain.ClassForgerySuspected, Confidence: 0.7}, nil
	case courtRe.MatchString(text):
		return domain.Classification{Label: domain.ClassCourtCase, Confidence: 0.75}, nil
	case mutationRe.MatchString(text):
		return domain.Classification{Label: domain.ClassMutationPending, Confidence: 0.7}, nil
	case loanRe.MatchString(text):
		return domain.Classification{Label: domain.ClassLoanDetected, Confidence: 0.8}, nil
	}
	return domain.Classification{Label: domain.ClassClearTitle, Confidence: 0.65}, nil
}

// Close is a no-op.
func (h *Heuristic) Close() error { return nil }
