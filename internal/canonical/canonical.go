// Package canonical produces the byte-stable projection of a verification
// record and its SHA-256 fingerprints.
//
// The serialization is part of the external contract: JSON with sorted
// keys, no insignificant whitespace, UTF-8, NFC strings and plain integer
// amounts. A downstream party holding the projection rules can reproduce
// every fingerprint byte-for-byte.
package canonical

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/proptrust/backend/internal/domain"
)

// Projection is the reproducible subset of a verification record.
// Timestamps, UUIDs, confidences, OCR statistics and recommendation text
// are excluded by construction.
type Projection struct {
	PropertyID          string
	Owner               string
	SurveyNumber        string
	HissaNumber         string
	Village             string
	Taluk               string
	District            string
	ExtentAcres         int
	ExtentGuntas        int
	Loans               []domain.Loan
	CaseNumbers         []string
	RiskScore           int
	ClassificationLabel string
}

// Build assembles the projection from an entity set and scoring output.
// The classification label enters only when its confidence clears the
// floor; below it the label is empty so model drift cannot move the
// fingerprint.
func Build(propertyID string, entities domain.EntitySet, riskScore int, classification domain.Classification, confidenceFloor float64) Projection {
	label := ""
	if classification.Confidence >= confidenceFloor {
		label = classification.Label
	}

	loans := make([]domain.Loan, len(entities.Loans))
	copy(loans, entities.Loans)
	sort.SliceStable(loans, func(i, j int) bool {
		if loans[i].Amount != loans[j].Amount {
			return loans[i].Amount > loans[j].Amount
		}
		return loans[i].Bank < loans[j].Bank
	})

	cases := make([]string, len(entities.CaseNumbers))
	copy(cases, entities.CaseNumbers)
	sort.Strings(cases)

	return Projection{
		PropertyID:          nfc(propertyID),
		Owner:               nfc(entities.Owner),
		SurveyNumber:        nfc(entities.SurveyNumber),
		HissaNumber:         nfc(entities.HissaNumber),
		Village:             nfc(entities.Village),
		Taluk:               nfc(entities.Taluk),
		District:            nfc(entities.District),
		ExtentAcres:         entities.ExtentAcres,
		ExtentGuntas:        entities.ExtentGuntas,
		Loans:               loans,
		CaseNumbers:         cases,
		RiskScore:           riskScore,
		ClassificationLabel: nfc(label),
	}
}

// Encode serializes the projection into its canonical bytes. Map keys are
// sorted by the encoder; slices keep their canonical order.
func (p Projection) Encode() ([]byte, error) {
	return p.encode(true)
}

// EncodeComparison serializes the comparison form, which omits the risk
// score so re-scoring differences can be told apart from content changes.
func (p Projection) EncodeComparison() ([]byte, error) {
	return p.encode(false)
}

func (p Projection) encode(includeScore bool) ([]byte, error) {
	loans := make([]map[string]any, 0, len(p.Loans))
	for _, l := range p.Loans {
		loans = append(loans, map[string]any{
			"amount": l.Amount,
			"bank":   nfc(l.Bank),
		})
	}

	cases := make([]string, 0, len(p.CaseNumbers))
	for _, c := range p.CaseNumbers {
		cases = append(cases, nfc(c))
	}

	m := map[string]any{
		"property_id":          p.PropertyID,
		"owner":                p.Owner,
		"survey_number":        p.SurveyNumber,
		"hissa_number":         p.HissaNumber,
		"village":              p.Village,
		"taluk":                p.Taluk,
		"district":             p.District,
		"extent_acres":         p.ExtentAcres,
		"extent_guntas":        p.ExtentGuntas,
		"loans":                loans,
		"case_numbers":         cases,
		"classification_label": p.ClassificationLabel,
	}
	if includeScore {
		m["risk_score"] = p.RiskScore
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode canonical form: %w", err)
	}
	return out, nil
}

// Fingerprint returns the 32-byte SHA-256 digest of the canonical form.
func (p Projection) Fingerprint() ([]byte, error) {
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// ComparisonFingerprint returns the digest of the risk-score-free form.
func (p Projection) ComparisonFingerprint() ([]byte, error) {
	data, err := p.EncodeComparison()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func nfc(s string) string {
	return norm.NFC.String(s)
}
