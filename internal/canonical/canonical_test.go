package canonical

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proptrust/backend/internal/domain"
)

func sampleEntities() domain.EntitySet {
	return domain.EntitySet{
		Owner:        "RAVI KUMAR",
		SurveyNumber: "45/2A",
		HissaNumber:  "3",
		Village:      "HEBBAL",
		Taluk:        "Bangalore North",
		District:     "Bangalore Urban",
		ExtentAcres:  2,
		ExtentGuntas: 10,
		Loans: []domain.Loan{
			{Amount: 200000, Bank: "Canara Bank", Context: "crop loan"},
			{Amount: 500000, Bank: "SBI"},
		},
		CaseNumbers: []string{"99/2021", "12/2019"},
		Dates:       []string{"12/03/2021"},
	}
}

func clearTitle(conf float64) domain.Classification {
	return domain.Classification{Label: domain.ClassClearTitle, Confidence: conf}
}

func TestFingerprint_StableAcrossBuilds(t *testing.T) {
	a := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	b := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.Len(t, fpA, domain.FingerprintSize)
}

func TestFingerprint_SensitiveToCanonicalFields(t *testing.T) {
	base := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	baseFP, err := base.Fingerprint()
	require.NoError(t, err)

	mutate := []func(*domain.EntitySet){
		func(e *domain.EntitySet) { e.Owner = "RAVI KUMAS" },
		func(e *domain.EntitySet) { e.SurveyNumber = "45/2B" },
		func(e *domain.EntitySet) { e.Village = "HEBBALA" },
		func(e *domain.EntitySet) { e.ExtentGuntas = 11 },
		func(e *domain.EntitySet) { e.Loans = e.Loans[:1] },
		func(e *domain.EntitySet) { e.CaseNumbers = append(e.CaseNumbers, "1/2024") },
	}
	for i, m := range mutate {
		entities := sampleEntities()
		m(&entities)
		fp, err := Build("prop_1", entities, 30, clearTitle(0.9), 0.5).Fingerprint()
		require.NoError(t, err)
		assert.NotEqual(t, baseFP, fp, "mutation %d should change the fingerprint", i)
	}

	// Risk score is canonical in the standard form.
	fp, err := Build("prop_1", sampleEntities(), 31, clearTitle(0.9), 0.5).Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, baseFP, fp)
}

func TestFingerprint_InsensitiveToExcludedFields(t *testing.T) {
	base := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	baseFP, err := base.Fingerprint()
	require.NoError(t, err)

	// Confidence changes above the floor do not matter.
	fp, err := Build("prop_1", sampleEntities(), 30, clearTitle(0.7), 0.5).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, baseFP, fp)

	// Loan context is not part of the projection.
	entities := sampleEntities()
	entities.Loans[0].Context = "different context"
	fp, err = Build("prop_1", entities, 30, clearTitle(0.9), 0.5).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, baseFP, fp)

	// Dates, validity and signing metadata are excluded.
	entities = sampleEntities()
	entities.Dates = nil
	entities.ValidTo = "01/01/2030"
	entities.SignedDate = "02/02/2020"
	fp, err = Build("prop_1", entities, 30, clearTitle(0.9), 0.5).Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, baseFP, fp)
}

func TestFingerprint_LabelBelowFloorIsExcluded(t *testing.T) {
	withLabel := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	lowConf := Build("prop_1", sampleEntities(), 30, clearTitle(0.3), 0.5)
	noLabel := Build("prop_1", sampleEntities(), 30, domain.Classification{}, 0.5)

	fpLabel, err := withLabel.Fingerprint()
	require.NoError(t, err)
	fpLow, err := lowConf.Fingerprint()
	require.NoError(t, err)
	fpNone, err := noLabel.Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, fpLabel, fpLow)
	assert.Equal(t, fpNone, fpLow, "a below-floor label is the same as no label")
}

func TestComparisonFingerprint_IgnoresRiskScore(t *testing.T) {
	a := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	b := Build("prop_1", sampleEntities(), 70, clearTitle(0.9), 0.5)

	cmpA, err := a.ComparisonFingerprint()
	require.NoError(t, err)
	cmpB, err := b.ComparisonFingerprint()
	require.NoError(t, err)
	assert.Equal(t, cmpA, cmpB)

	stdA, err := a.Fingerprint()
	require.NoError(t, err)
	stdB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, stdA, stdB)
}

func TestEncode_CanonicalShape(t *testing.T) {
	p := Build("prop_1", sampleEntities(), 30, clearTitle(0.9), 0.5)
	data, err := p.Encode()
	require.NoError(t, err)

	// No insignificant whitespace: compacting is a no-op.
	var compacted bytes.Buffer
	require.NoError(t, json.Compact(&compacted, data))
	assert.Equal(t, compacted.Bytes(), data)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Loans are ordered by amount descending.
	loans := decoded["loans"].([]any)
	require.Len(t, loans, 2)
	first := loans[0].(map[string]any)
	assert.EqualValues(t, 500000, first["amount"])

	// Case numbers are sorted.
	cases := decoded["case_numbers"].([]any)
	assert.Equal(t, "12/2019", cases[0])
	assert.Equal(t, "99/2021", cases[1])

	// Excluded concerns never appear.
	for _, forbidden := range []string{"created_at", "verification_id", "confidence", "recommendations", "ocr"} {
		_, ok := decoded[forbidden]
		assert.False(t, ok, "canonical form must not contain %s", forbidden)
	}
}

func TestEncode_BuildDoesNotMutateInput(t *testing.T) {
	entities := sampleEntities()
	_ = Build("prop_1", entities, 30, clearTitle(0.9), 0.5)
	assert.Equal(t, int64(200000), entities.Loans[0].Amount, "Build must sort a copy, not the caller's slice")
	assert.Equal(t, "99/2021", entities.CaseNumbers[0])
}
