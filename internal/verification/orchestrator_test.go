package verification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/backend/internal/classify"
	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/engine"
	"github.com/proptrust/backend/internal/entity"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/ledger"
	"github.com/proptrust/backend/internal/risk"
	"github.com/proptrust/backend/internal/translate"
)

const happyDoc = `Owner Name: RAVI KUMAR
Survey Number: 45/2A
Village: HEBBAL
Taluk: Bangalore North
District: Bangalore Urban
Extent: 2 Acres 10 Guntas
This record of rights, tenancy and crops is issued by the village accountant
for the parcel described above and reflects the entries of the current
revision register maintained at the taluk office.`

const loanDoc = happyDoc + `
Encumbrance: ₹500000 SBI`

const multiFactorDoc = `Khatedar Name: RAVI KUMAR
₹500000 SBI
Case No: 45/2021`

// fixedNow keeps records deterministic across assertions.
var fixedNow = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

// newTestEngine builds an orchestrator over in-memory collaborators.
func newTestEngine(t *testing.T, store *memStore, ldg ledger.Ledger, extractor extraction.Extractor, translator translate.Translator) *Orchestrator {
	t.Helper()
	logger := testLogger()

	opts := DefaultOptions()
	return NewOrchestrator(
		extractor,
		translator,
		entity.NewExtractor(nil, 0.5, logger),
		classify.NewHeuristic(),
		risk.NewScorer(opts.DataQualityCharsFloor, fixedNow),
		ldg,
		verificationStore{store},
		tamperStore{store},
		store,
		opts,
		logger,
		fixedNow,
	)
}

func TestVerify_HappyPathLowRisk(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Record.RiskScore)
	assert.Equal(t, domain.RiskLevelLow, result.Record.RiskLevel)
	assert.Empty(t, result.Assessment.Factors)
	assert.Len(t, result.Record.Fingerprint, domain.FingerprintSize)
	assert.NotEqual(t, make([]byte, domain.FingerprintSize), result.Record.Fingerprint)

	assert.Equal(t, "RAVI KUMAR", result.Detail.Entities.Owner)
	assert.Equal(t, "45/2A", result.Detail.Entities.SurveyNumber)
	assert.Equal(t, "HEBBAL", result.Detail.Entities.Village)
	assert.Equal(t, 2, result.Detail.Entities.ExtentAcres)
	assert.Equal(t, 10, result.Detail.Entities.ExtentGuntas)

	// Property row was created alongside the record.
	property, err := store.GetByID(context.Background(), result.Record.PropertyID)
	require.NoError(t, err)
	assert.Equal(t, "RAVI KUMAR", property.LastSeenOwner)
	assert.True(t, store.hasAudit(domain.OpVerify, domain.AuditSuccess, ""))
}

func TestVerify_LoanPresentBoundaryLow(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(loanDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, result.Record.RiskScore)
	assert.Equal(t, domain.RiskLevelLow, result.Record.RiskLevel)
	require.Len(t, result.Detail.Entities.Loans, 1)
	assert.Equal(t, int64(500000), result.Detail.Entities.Loans[0].Amount)
	assert.Equal(t, "SBI", result.Detail.Entities.Loans[0].Bank)

	codes := factorCodes(result.Assessment)
	assert.Contains(t, codes, risk.FactorLoanPresent)
}

func TestVerify_MultipleFactorsHigh(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(multiFactorDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.NoError(t, err)

	// loan 30 + case 15 + survey missing 15 + short text 10.
	assert.Equal(t, 70, result.Record.RiskScore)
	assert.Equal(t, domain.RiskLevelHigh, result.Record.RiskLevel)

	codes := factorCodes(result.Assessment)
	assert.ElementsMatch(t, []string{
		risk.FactorLoanPresent,
		risk.FactorLegalCase,
		risk.FactorSurveyMissing,
		risk.FactorDataQualityLow,
	}, codes)
	assert.Equal(t, "RAVI KUMAR", result.Detail.Entities.Owner)
}

func TestVerify_FingerprintStableAcrossRuns(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	req := VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		PropertyID:   "prop_fixed",
	}

	first, err := eng.Verify(context.Background(), req)
	require.NoError(t, err)
	second, err := eng.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Record.Fingerprint, second.Record.Fingerprint)
	assert.Equal(t, first.Detail.Entities, second.Detail.Entities)
	assert.NotEqual(t, first.Record.VerificationID, second.Record.VerificationID)

	records, err := verificationStore{store}.ListByProperty(context.Background(), "prop_fixed")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestVerify_FingerprintSensitiveToOwner(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	base := VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		PropertyID:   "prop_fixed",
	}
	changed := base
	changed.Document = []byte(strings.ReplaceAll(happyDoc, "RAVI KUMAR", "RAVI KUMAS"))

	first, err := eng.Verify(context.Background(), base)
	require.NoError(t, err)
	second, err := eng.Verify(context.Background(), changed)
	require.NoError(t, err)

	assert.NotEqual(t, first.Record.Fingerprint, second.Record.Fingerprint)
}

func TestVerify_AnchoredFingerprintOnLedger(t *testing.T) {
	store := newMemStore()
	ldg := ledger.NewMemory("test", fixedNow)
	eng := newTestEngine(t, store, ldg, &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		Anchor:       true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Receipt)
	require.NotNil(t, result.Record.AnchorReference)

	entry, err := ldg.Get(context.Background(), result.Record.PropertyID)
	require.NoError(t, err)
	assert.Equal(t, result.Record.Fingerprint, entry.Fingerprint)
	assert.Equal(t, result.Record.RiskScore, entry.RiskScore)

	// A second anchored verify pushes the prior fingerprint onto history
	// even though it is equal: history records attempts.
	_, err = eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		PropertyID:   result.Record.PropertyID,
		Anchor:       true,
	})
	require.NoError(t, err)

	history, err := ldg.History(context.Background(), result.Record.PropertyID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.Record.Fingerprint, history[0])
}

func TestVerify_LedgerUnavailableIsNonFatal(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, failingLedger{}, &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		Anchor:       true,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Receipt)
	assert.Nil(t, result.Record.AnchorReference)
	assert.Nil(t, result.Record.AnchorBlockHeight)

	// The record is still queryable and the failure is on the trail.
	record, _, err := verificationStore{store}.GetLatestByProperty(context.Background(), result.Record.PropertyID)
	require.NoError(t, err)
	assert.Equal(t, result.Record.VerificationID, record.VerificationID)
	assert.True(t, store.hasAudit(domain.OpAnchor, domain.AuditFailure, "LEDGER_FAILURE"))
}

func TestVerify_TranslatorFailureDegrades(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "kn"}, failingTranslator{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.NoError(t, err)
	assert.Contains(t, result.Detail.Warnings, WarnTranslationUnavailable)
	assert.Equal(t, "RAVI KUMAR", result.Detail.Entities.Owner)
}

func TestVerify_EmptyTextStillProducesRecord(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte("   "),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.NoError(t, err)

	codes := factorCodes(result.Assessment)
	assert.Contains(t, codes, risk.FactorDataQualityLow)
	assert.Contains(t, result.Detail.Warnings, WarnEmptyExtraction)
}

func TestVerify_EmptyDocumentIsBadInput(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	_, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     nil,
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindBadInput))
	assert.Empty(t, store.records)
}

func TestVerify_CancelledBeforePersistence(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(t, store, ledger.NewMemory("test", fixedNow), &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Verify(ctx, VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
	})
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindCancelled) || engine.IsKind(err, engine.KindDeadlineExceeded))
	assert.Empty(t, store.records)
}

func TestDelete_CascadesAndAudits(t *testing.T) {
	store := newMemStore()
	ldg := ledger.NewMemory("test", fixedNow)
	eng := newTestEngine(t, store, ldg, &fakeExtractor{languageHint: "en"}, translate.PassThrough{})

	result, err := eng.Verify(context.Background(), VerifyRequest{
		Document:     []byte(happyDoc),
		Format:       extraction.FormatImage,
		DeclaredType: domain.DocumentTypeRTC,
		Anchor:       true,
	})
	require.NoError(t, err)
	propertyID := result.Record.PropertyID

	require.NoError(t, eng.Delete(context.Background(), store, propertyID))

	_, getErr := store.GetByID(context.Background(), propertyID)
	assert.ErrorIs(t, getErr, domain.ErrNotFound)
	_, _, recErr := verificationStore{store}.GetLatestByProperty(context.Background(), propertyID)
	assert.ErrorIs(t, recErr, domain.ErrNotFound)

	// The ledger keeps its entry.
	entry, err := ldg.Get(context.Background(), propertyID)
	require.NoError(t, err)
	assert.Equal(t, result.Record.Fingerprint, entry.Fingerprint)
	assert.True(t, store.hasAudit(domain.OpDelete, domain.AuditSuccess, ""))
}

func factorCodes(a risk.Assessment) []string {
	codes := make([]string, 0, len(a.Factors))
	for _, f := range a.Factors {
		codes = append(codes, f.Code)
	}
	return codes
}
