package entity

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/proptrust/backend/internal/domain"
)

// Span is one candidate value for a field, from either layer.
type Span struct {
	Field      Field   `json:"field"`
	Text       string  `json:"text"`
	Secondary  string  `json:"secondary,omitempty"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
}

// Model supplies additional candidate spans from a trained NER model.
// Implementations may be remote; failures are soft.
type Model interface {
	Extract(ctx context.Context, text string) ([]Span, error)
	Close() error
}

// Extractor resolves the fixed entity schema from cleaned text using the
// rule layer first and the model layer second.
type Extractor struct {
	rules  []rulePattern
	model  Model
	floor  float64
	logger *slog.Logger
}

// NewExtractor creates an extractor. model may be nil for rule-only
// operation; floor is the minimum model confidence considered.
func NewExtractor(model Model, floor float64, logger *slog.Logger) *Extractor {
	return &Extractor{
		rules:  compileRules(),
		model:  model,
		floor:  floor,
		logger: logger,
	}
}

// Extract resolves the entity set from cleaned text. A field that does
// not match is absent, not an error; the only warnings are model-layer
// failures.
func (e *Extractor) Extract(ctx context.Context, text string) (domain.EntitySet, []string) {
	var warnings []string

	ruleSpans := e.runRules(text)

	var modelSpans []Span
	if e.model != nil {
		spans, err := e.model.Extract(ctx, text)
		if err != nil {
			e.logger.Warn("entity model unavailable, continuing rule-only", "error", err)
			warnings = append(warnings, "entity_model_unavailable")
		} else {
			for _, s := range spans {
				if s.Confidence >= e.floor {
					modelSpans = append(modelSpans, s)
				}
			}
		}
	}

	set := domain.EntitySet{
		Owner:        e.singleton(FieldOwner, ruleSpans, modelSpans),
		SurveyNumber: e.singleton(FieldSurveyNumber, ruleSpans, modelSpans),
		HissaNumber:  e.singleton(FieldHissaNumber, ruleSpans, modelSpans),
		Village:      e.singleton(FieldVillage, ruleSpans, modelSpans),
		Taluk:        e.singleton(FieldTaluk, ruleSpans, modelSpans),
		District:     e.singleton(FieldDistrict, ruleSpans, modelSpans),
		ValidFrom:    e.singleton(FieldValidFrom, ruleSpans, modelSpans),
		ValidTo:      e.singleton(FieldValidTo, ruleSpans, modelSpans),
		SignedDate:   e.singleton(FieldSignedDate, ruleSpans, modelSpans),
	}

	set.ExtentAcres, set.ExtentGuntas = resolveExtent(ruleSpans)
	set.Loans = resolveLoans(merge(FieldLoan, ruleSpans, modelSpans))
	set.Mutations = resolveMutations(merge(FieldMutation, ruleSpans, modelSpans))
	set.CaseNumbers = resolveList(merge(FieldCaseNumber, ruleSpans, modelSpans))
	set.Dates = resolveList(merge(FieldDate, ruleSpans, modelSpans))

	return set, warnings
}

// runRules applies every rule pattern in order and collects candidates.
func (e *Extractor) runRules(text string) []Span {
	var spans []Span
	for _, rule := range e.rules {
		matches := rule.re.FindAllStringSubmatchIndex(text, -1)
		for _, m := range matches {
			span := Span{Field: rule.Field, Confidence: 1.0, Start: m[0]}
			if len(m) >= 4 && m[2] >= 0 {
				span.Text = text[m[2]:m[3]]
			}
			if len(m) >= 6 && m[4] >= 0 {
				span.Secondary = text[m[4]:m[5]]
			}
			// Priority is encoded via rule order; earlier rules come
			// first in the slice for the same field.
			spans = append(spans, span)
		}
	}
	return spans
}

// singleton picks the highest-priority rule match, falling back to the
// highest-confidence model span above the floor.
func (e *Extractor) singleton(field Field, ruleSpans, modelSpans []Span) string {
	for _, s := range ruleSpans {
		if s.Field == field {
			return cleanString(s.Text)
		}
	}
	best := ""
	bestConf := 0.0
	for _, s := range modelSpans {
		if s.Field == field && s.Confidence > bestConf {
			best = s.Text
			bestConf = s.Confidence
		}
	}
	return cleanString(best)
}

// merge unions rule and model spans for one list field, ordered by first
// appearance in the source text.
func merge(field Field, ruleSpans, modelSpans []Span) []Span {
	var out []Span
	for _, s := range ruleSpans {
		if s.Field == field {
			out = append(out, s)
		}
	}
	for _, s := range modelSpans {
		if s.Field == field {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// resolveList deduplicates spans by normalized string, keeping source order.
func resolveList(spans []Span) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range spans {
		v := cleanString(s.Text)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// resolveLoans converts loan spans into normalized loan entries.
// Entries are deduplicated by amount: overlapping rules frequently report
// the same encumbrance with slightly different bank captures, and the
// first non-empty bank wins.
func resolveLoans(spans []Span) []domain.Loan {
	var out []domain.Loan
	index := map[int64]int{}
	for _, s := range spans {
		amount, ok := parseAmount(s.Text)
		if !ok {
			continue
		}
		bank := cleanBank(s.Secondary)
		if i, dup := index[amount]; dup {
			if out[i].Bank == "" && bank != "" {
				out[i].Bank = bank
			}
			continue
		}
		index[amount] = len(out)
		out = append(out, domain.Loan{Amount: amount, Bank: bank})
	}
	return out
}

// resolveMutations converts mutation spans into record entries.
func resolveMutations(spans []Span) []domain.Mutation {
	var out []domain.Mutation
	seen := map[string]bool{}
	for _, s := range spans {
		rec := cleanString(s.Text)
		if rec == "" || seen[rec] {
			continue
		}
		seen[rec] = true
		out = append(out, domain.Mutation{
			RecordNumber: rec,
			Description:  cleanString(s.Secondary),
		})
	}
	return out
}

// resolveExtent picks the first extent match and splits acres/guntas.
func resolveExtent(ruleSpans []Span) (acres, guntas int) {
	for _, s := range ruleSpans {
		if s.Field != FieldExtent {
			continue
		}
		a, err := strconv.Atoi(strings.TrimSpace(s.Text))
		if err != nil {
			continue
		}
		g := 0
		if s.Secondary != "" {
			g, _ = strconv.Atoi(strings.TrimSpace(s.Secondary))
		}
		return a, g
	}
	return 0, 0
}

// parseAmount normalizes a currency string to base integer units.
func parseAmount(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// cleanBank trims a bank capture down to a plausible institution name.
func cleanBank(s string) string {
	s = cleanString(s)
	// Drop trailing sentence fragments the capture may have swallowed.
	if idx := strings.IndexAny(s, ".;"); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return s
}

// cleanString trims and NFC-normalizes an output value.
func cleanString(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(strings.TrimSpace(s))
}
