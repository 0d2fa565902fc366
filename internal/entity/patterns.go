// Package entity provides rule-based field extraction for land records.
package entity

import "regexp"

// Field names the extractor's fixed output schema. The extractor never
// emits a field outside this set.
type Field string

const (
	FieldOwner        Field = "owner"
	FieldSurveyNumber Field = "survey_number"
	FieldHissaNumber  Field = "hissa_number"
	FieldVillage      Field = "village"
	FieldTaluk        Field = "taluk"
	FieldDistrict     Field = "district"
	FieldExtent       Field = "extent"
	FieldValidFrom    Field = "valid_from"
	FieldValidTo      Field = "valid_to"
	FieldSignedDate   Field = "digitally_signed_date"
	FieldLoan         Field = "loan"
	FieldMutation     Field = "mutation"
	FieldCaseNumber   Field = "case_number"
	FieldDate         Field = "date"
)

// rulePattern is one named, ordered extraction rule. Priority is the
// position within its field's pattern list: earlier rules win.
type rulePattern struct {
	ID       string
	Field    Field
	Priority int
	re       *regexp.Regexp
}

// compileRules builds the ordered rule set. Rule order within a field is the
// resolution order for singleton fields.
func compileRules() []rulePattern {
	specs := []struct {
		id      string
		field   Field
		pattern string
	}{
		// Owner. RTC forms label the khatedar several ways; the most
		// specific label wins.
		{"OWNER-LABEL", FieldOwner, `(?i)owner(?:'s)?\s+name\s*[:\-]\s*([A-Z][A-Za-z .]{2,60})`},
		{"OWNER-KHATEDAR", FieldOwner, `(?i)(?:name of (?:the )?)?(?:khatedar|kathedar|holder|cultivator)\s*(?:name)?\s*[:\-]\s*([A-Z][A-Za-z .]{2,60})`},
		{"OWNER-GENERIC", FieldOwner, `(?i)\bowner\s*[:\-]\s*([A-Z][A-Za-z .]{2,60})`},

		// Survey number, e.g. "45/2A".
		{"SURVEY-FULL", FieldSurveyNumber, `(?i)survey\s*(?:no\.?|number)\s*[:\-]?\s*([0-9]+(?:/[0-9A-Za-z]+)*)`},
		{"SURVEY-SY", FieldSurveyNumber, `(?i)\bsy\.?\s*no\.?\s*[:\-]?\s*([0-9]+(?:/[0-9A-Za-z]+)*)`},

		// Hissa (sub-division) number.
		{"HISSA", FieldHissaNumber, `(?i)hissa\s*(?:no\.?|number)?\s*[:\-]?\s*([0-9A-Za-z]+(?:/[0-9A-Za-z]+)*)`},

		// Location hierarchy.
		{"VILLAGE", FieldVillage, `(?i)village\s*(?:name)?\s*[:\-]\s*([A-Z][A-Za-z .]{1,40})`},
		{"TALUK", FieldTaluk, `(?i)talu[kq](?:a)?\s*[:\-]\s*([A-Z][A-Za-z .]{1,40})`},
		{"DISTRICT", FieldDistrict, `(?i)district\s*[:\-]\s*([A-Z][A-Za-z .]{1,40})`},

		// Extent as "2 Acres 10 Guntas" or "2-10".
		{"EXTENT-WORDS", FieldExtent, `(?i)([0-9]+)\s*acres?\s*(?:([0-9]+)\s*guntas?)?`},
		{"EXTENT-DASH", FieldExtent, `(?i)extent\s*[:\-]?\s*([0-9]+)\s*-\s*([0-9]+)`},

		// Validity window and signing date.
		{"VALID-FROM", FieldValidFrom, `(?i)valid(?:ity)?\s*from\s*[:\-]?\s*([0-9]{1,4}[-/][0-9]{1,2}[-/][0-9]{1,4})`},
		{"VALID-TO", FieldValidTo, `(?i)valid(?:ity)?\s*(?:to|till|upto|until)\s*[:\-]?\s*([0-9]{1,4}[-/][0-9]{1,2}[-/][0-9]{1,4})`},
		{"SIGNED-DATE", FieldSignedDate, `(?i)digitally\s+signed\s*(?:on|date)?\s*[:\-]?\s*([0-9]{1,4}[-/][0-9]{1,2}[-/][0-9]{1,4})`},

		// Loans. Amount is mandatory, bank is the trailing capital token
		// run when present: "₹500000 SBI", "Rs. 2,50,000 Canara Bank".
		{"LOAN-CURRENCY", FieldLoan, `(?:₹|(?i:\brs\.?)|(?i:\binr\b))\s*([0-9][0-9,]*)\s*(?:/-)?\s*(?:(?i:from|with|by|at) )?([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*)*)?`},
		{"LOAN-LABEL", FieldLoan, `(?i:loan) (?i:amount|of)\s*[:\-]?\s*(?:₹|(?i:rs\.?)|(?i:inr))?\s*([0-9][0-9,]*)\s*(?:(?i:from|with|by) ([A-Z][A-Za-z]*(?: [A-Z][A-Za-z]*)*))?`},

		// Mutation records: "MR No. 15/2020 - partition".
		{"MUTATION", FieldMutation, `(?i)(?:mutation|\bmr)\s*(?:no\.?|number)?\s*[:\-]?\s*([0-9]+(?:/[0-9]{2,4})?)(?:\s*[-:–]\s*([A-Za-z][^\n.]{0,80}))?`},

		// Court case numbers: "O.S. No. 123/2019", "Case No: 45/2021".
		{"CASE-OS", FieldCaseNumber, `(?i)\bo\.?\s?s\.?\s*(?:no\.?)?\s*[:\-]?\s*([0-9]+/[0-9]{2,4})`},
		{"CASE-GENERIC", FieldCaseNumber, `(?i)(?:case|suit|w\.?p\.?|appeal)\s*(?:no\.?|number)\s*[:\-]?\s*([0-9]+(?:/[0-9]{2,4})?)`},

		// Bare dates for the ordered date list.
		{"DATE-DMY", FieldDate, `\b([0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2,4})\b`},
		{"DATE-ISO", FieldDate, `\b([0-9]{4}-[0-9]{2}-[0-9]{2})\b`},
	}

	rules := make([]rulePattern, 0, len(specs))
	prio := map[Field]int{}
	for _, s := range specs {
		rules = append(rules, rulePattern{
			ID:       s.id,
			Field:    s.field,
			Priority: prio[s.field],
			re:       regexp.MustCompile(s.pattern),
		})
		prio[s.field]++
	}
	return rules
}
