package matching

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.StandardLogger()

// SetLogger replaces the logger used to report malformed field values.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}

// ComparatorParams is the closed set of comparator configurations. Each implementation
// carries only the parameters its strategy understands.
type ComparatorParams interface {
	Kind() MatchType
	validate() error
	similarity(field, a, b string) float64
}

type ExactParams struct{}

type NormalizedParams struct {
	Normalizer Normalizer
}

type FuzzyParams struct{}

type PhoneticParams struct{}

// NumericToleranceParams matches two numbers when |a-b| <= max(Absolute, Relative*max(|a|,|b|)).
type NumericToleranceParams struct {
	Absolute decimal.Decimal
	Relative decimal.Decimal
}

func (ExactParams) Kind() MatchType            { return MatchTypeExact }
func (NormalizedParams) Kind() MatchType       { return MatchTypeNormalized }
func (FuzzyParams) Kind() MatchType            { return MatchTypeFuzzy }
func (PhoneticParams) Kind() MatchType         { return MatchTypePhonetic }
func (NumericToleranceParams) Kind() MatchType { return MatchTypeNumericTolerance }

func (ExactParams) validate() error    { return nil }
func (FuzzyParams) validate() error    { return nil }
func (PhoneticParams) validate() error { return nil }

func (p NormalizedParams) validate() error {
	if !p.Normalizer.IsValid() {
		return fmt.Errorf("unknown normalizer %q", p.Normalizer)
	}
	return nil
}

func (p NumericToleranceParams) validate() error {
	if p.Absolute.IsNegative() {
		return fmt.Errorf("absolute tolerance must not be negative")
	}
	if p.Relative.IsNegative() || p.Relative.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("relative tolerance must be between 0 and 1")
	}
	return nil
}

func (ExactParams) similarity(_, a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

// An empty canonical form carries no identity, so it never matches.
func (p NormalizedParams) similarity(_, a, b string) float64 {
	na, nb := Normalize(p.Normalizer, a), Normalize(p.Normalizer, b)
	if na == "" || nb == "" || na != nb {
		return 0
	}
	return 1
}

func (FuzzyParams) similarity(_, a, b string) float64 {
	return LevenshteinSimilarity(a, b)
}

func (PhoneticParams) similarity(_, a, b string) float64 {
	ka, kb := phoneticKey(a), phoneticKey(b)
	if ka == "" || kb == "" || ka != kb {
		return 0
	}
	return 1
}

func (p NumericToleranceParams) similarity(field, a, b string) float64 {
	da, errA := parseNumber(a)
	db, errB := parseNumber(b)
	if errA != nil || errB != nil {
		logger.WithFields(logrus.Fields{
			"field":     "NumericToleranceCompare",
			"match_key": field,
			"original":  a,
			"candidate": b,
		}).Debug("unparsable numeric value treated as non-match")
		return 0
	}
	limit := p.Relative.Mul(decimal.Max(da.Abs(), db.Abs()))
	limit = decimal.Max(limit, p.Absolute)
	if da.Sub(db).Abs().LessThanOrEqual(limit) {
		return 1
	}
	return 0
}

func parseNumber(v string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
}

// LevenshteinSimilarity is 1 - distance/max(len) over case-folded runes.
func LevenshteinSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Compare runs one comparator over two raw field values. It never fails: malformed input
// yields a zero similarity with the comparator's match type.
func Compare(field, original, candidate string, params ComparatorParams) MatchFieldResult {
	result := MatchFieldResult{
		FieldName:      field,
		OriginalValue:  original,
		CandidateValue: candidate,
	}
	if params == nil {
		result.MatchType = MatchTypeExact
		result.Similarity = similarity(ExactParams{}.similarity(field, original, candidate))
		return result
	}
	result.MatchType = params.Kind()
	result.Similarity = similarity(params.similarity(field, original, candidate))
	return result
}
