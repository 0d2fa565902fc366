package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proptrust/backend/internal/domain"
)

var testNow = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func baseDetail() *domain.VerificationDetail {
	return &domain.VerificationDetail{
		Entities: domain.EntitySet{
			Owner:        "RAVI KUMAR",
			SurveyNumber: "45/2A",
			Village:      "HEBBAL",
		},
		Stats: domain.OCRStats{CharsCleaned: 500},
	}
}

func clearTitle() domain.Classification {
	return domain.Classification{Label: domain.ClassClearTitle, Confidence: 0.9}
}

func TestScore_CleanRecordIsZero(t *testing.T) {
	s := NewScorer(200, testNow)
	out := s.Score(baseDetail(), clearTitle())

	assert.Equal(t, 0, out.Score)
	assert.Equal(t, domain.RiskLevelLow, out.Level)
	assert.Empty(t, out.Factors)
	assert.Empty(t, out.Recommendations)
}

func TestScore_LoanBoundaryStaysLow(t *testing.T) {
	s := NewScorer(200, testNow)
	detail := baseDetail()
	detail.Entities.Loans = []domain.Loan{{Amount: 500000, Bank: "SBI"}}

	out := s.Score(detail, clearTitle())
	assert.Equal(t, 30, out.Score)
	assert.Equal(t, domain.RiskLevelLow, out.Level)
	assert.Equal(t, FactorLoanPresent, out.Factors[0].Code)
	assert.Len(t, out.Recommendations, 1)
}

func TestScore_MultipleFactors(t *testing.T) {
	s := NewScorer(200, testNow)
	detail := baseDetail()
	detail.Entities.SurveyNumber = ""
	detail.Entities.Loans = []domain.Loan{{Amount: 500000, Bank: "SBI"}}
	detail.Entities.CaseNumbers = []string{"45/2021"}
	detail.Stats.CharsCleaned = 120

	out := s.Score(detail, clearTitle())
	assert.Equal(t, 70, out.Score)
	assert.Equal(t, domain.RiskLevelHigh, out.Level)
	assert.Len(t, out.Factors, 4)
}

func TestScore_ClampAt100(t *testing.T) {
	s := NewScorer(200, testNow)
	detail := &domain.VerificationDetail{
		Entities: domain.EntitySet{
			Loans:       []domain.Loan{{Amount: 1, Bank: "X"}},
			CaseNumbers: []string{"1/2020"},
			Mutations:   []domain.Mutation{{RecordNumber: "9", Description: "pending"}},
			ValidTo:     "01/01/2020",
		},
		Stats: domain.OCRStats{CharsCleaned: 10},
	}

	out := s.Score(detail, domain.Classification{Label: domain.ClassCourtCase, Confidence: 0.9})
	assert.Equal(t, 100, out.Score)
	assert.Equal(t, domain.RiskLevelHigh, out.Level)
}

func TestScore_MonotoneOnFactors(t *testing.T) {
	s := NewScorer(200, testNow)
	detail := baseDetail()
	without := s.Score(detail, clearTitle())

	detail.Entities.Loans = []domain.Loan{{Amount: 100, Bank: "SBI"}}
	with := s.Score(detail, clearTitle())

	assert.GreaterOrEqual(t, with.Score, without.Score)
}

func TestScore_ValidityExpired(t *testing.T) {
	s := NewScorer(200, testNow)

	detail := baseDetail()
	detail.Entities.ValidTo = "01/01/2020"
	out := s.Score(detail, clearTitle())
	assert.Equal(t, 10, out.Score)

	detail.Entities.ValidTo = "01/01/2030"
	out = s.Score(detail, clearTitle())
	assert.Equal(t, 0, out.Score)

	detail.Entities.ValidTo = "not a date"
	out = s.Score(detail, clearTitle())
	assert.Equal(t, 0, out.Score, "unparseable dates never fire the factor")
}

func TestScore_ClassifierHighRisk(t *testing.T) {
	s := NewScorer(200, testNow)

	out := s.Score(baseDetail(), domain.Classification{Label: domain.ClassCourtCase, Confidence: 0.9})
	assert.Equal(t, 20, out.Score)

	out = s.Score(baseDetail(), domain.Classification{Label: domain.ClassForgerySuspected, Confidence: 0.9})
	assert.Equal(t, 20, out.Score)
}

func TestScore_MutationPending(t *testing.T) {
	s := NewScorer(200, testNow)

	out := s.Score(baseDetail(), domain.Classification{Label: domain.ClassMutationPending, Confidence: 0.9})
	assert.Equal(t, 20, out.Score)

	detail := baseDetail()
	detail.Entities.Mutations = []domain.Mutation{{RecordNumber: "15/2020", Description: "partition pending approval"}}
	out = s.Score(detail, clearTitle())
	assert.Equal(t, 20, out.Score)
}

func TestLevelOf_Boundaries(t *testing.T) {
	assert.Equal(t, domain.RiskLevelLow, domain.LevelOf(0))
	assert.Equal(t, domain.RiskLevelLow, domain.LevelOf(30))
	assert.Equal(t, domain.RiskLevelMedium, domain.LevelOf(31))
	assert.Equal(t, domain.RiskLevelMedium, domain.LevelOf(60))
	assert.Equal(t, domain.RiskLevelHigh, domain.LevelOf(61))
	assert.Equal(t, domain.RiskLevelHigh, domain.LevelOf(100))
}
