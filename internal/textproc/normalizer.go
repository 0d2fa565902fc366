// Package textproc provides deterministic cleaning of raw OCR text.
//
// Normalize is a pure function: identical input bytes yield identical
// output bytes across runs and processes. The fingerprint contract
// depends on this, so every step below is order-fixed and table-driven.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxCleanedBytes caps normalizer output at 1 MiB.
const MaxCleanedBytes = 1 << 20

// confusables maps common OCR digit/letter substitutions. The table is
// applied only inside tokens that sit in a numeric context, so names like
// "OBALESH" are never rewritten.
var confusables = map[rune]rune{
	'O': '0',
	'o': '0',
	'I': '1',
	'l': '1',
	'S': '5',
	'B': '8',
	'Z': '2',
}

// numericToken matches tokens that are digits possibly corrupted by the
// confusable set: at least one digit, and nothing but digits, confusable
// letters and the separators survey numbers use.
var numericToken = regexp.MustCompile(`^[0-9OoIlSBZ./,:-]*[0-9][0-9OoIlSBZ./,:-]*$`)

// boilerplate matches repeated page header/footer noise. The set is
// bounded and published: anything it removes is removed for every caller.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?mi)^\s*page\s+\d+\s+of\s+\d+\s*$`),
	regexp.MustCompile(`(?mi)^\s*government of karnataka\s*$`),
	regexp.MustCompile(`(?mi)^\s*revenue department\s*$`),
	regexp.MustCompile(`(?mi)^\s*form\s+(no\.?\s*)?\d+\s*$`),
	regexp.MustCompile(`(?m)^\s*[-_=*]{4,}\s*$`),
	regexp.MustCompile(`(?mi)^\s*scanned (by|with) .*$`),
	regexp.MustCompile(`(?mi)^\s*https?://\S+\s*$`),
}

// Normalize applies the fixed cleaning sequence: Unicode NFC, whitespace
// collapsing, control stripping, confusable repair in numeric tokens,
// boilerplate removal, and the 1 MiB cap.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := norm.NFC.String(raw)
	s = collapseWhitespace(s)
	s = stripControl(s)
	s = repairNumericTokens(s)
	s = removeBoilerplate(s)
	s = collapseWhitespace(s)
	s = truncateRunes(s, MaxCleanedBytes)
	return strings.TrimSpace(s)
}

// stripControl removes control characters except newline.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// collapseWhitespace reduces runs of spaces to one space and runs of
// newlines (with any adjacent spaces) to one newline.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	pendingNewline := false
	for _, r := range s {
		switch {
		case r == '\n':
			pendingNewline = true
			pendingSpace = false
		case unicode.IsSpace(r):
			if !pendingNewline {
				pendingSpace = true
			}
		default:
			if pendingNewline {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				pendingNewline = false
			} else if pendingSpace {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
			}
			pendingSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// repairNumericTokens applies the confusable table to tokens in numeric
// context only.
func repairNumericTokens(s string) string {
	lines := strings.Split(s, "\n")
	for li, line := range lines {
		tokens := strings.Split(line, " ")
		for ti, tok := range tokens {
			if !numericToken.MatchString(tok) {
				continue
			}
			tokens[ti] = strings.Map(func(r rune) rune {
				if repl, ok := confusables[r]; ok {
					return repl
				}
				return r
			}, tok)
		}
		lines[li] = strings.Join(tokens, " ")
	}
	return strings.Join(lines, "\n")
}

// removeBoilerplate drops lines matching the published boilerplate set.
func removeBoilerplate(s string) string {
	for _, re := range boilerplate {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

// truncateRunes caps s at max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
