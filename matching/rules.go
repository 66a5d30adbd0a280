package matching

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultReportThreshold is the field similarity at or above which a field result is kept
// on a duplicate finding.
const DefaultReportThreshold = 0.5

type FieldKind string

const (
	FieldKindText       FieldKind = "text"
	FieldKindIdentifier FieldKind = "identifier"
	FieldKindAmount     FieldKind = "amount"
	FieldKindDate       FieldKind = "date"
)

// comparators allowed per field kind; normalized comparators are further restricted by normalizer
var allowedComparators = map[FieldKind]map[MatchType]bool{
	FieldKindText:       {MatchTypeExact: true, MatchTypeNormalized: true, MatchTypeFuzzy: true, MatchTypePhonetic: true},
	FieldKindIdentifier: {MatchTypeExact: true, MatchTypeNormalized: true, MatchTypeFuzzy: true},
	FieldKindAmount:     {MatchTypeExact: true, MatchTypeNumericTolerance: true},
	FieldKindDate:       {MatchTypeExact: true},
}

var allowedNormalizers = map[FieldKind]map[Normalizer]bool{
	FieldKindText:       {NormalizerName: true, NormalizerText: true},
	FieldKindIdentifier: {NormalizerIdentifier: true, NormalizerPhone: true, NormalizerText: true},
}

// RecordSchema names the fields a record category exposes to matching and their kinds.
type RecordSchema struct {
	RecordType RecordType
	Fields     map[string]FieldKind
}

type Rule struct {
	FieldName  string
	Weight     float64
	Comparator ComparatorParams
}

type MatchingConfig struct {
	RecordType      RecordType
	Rules           []Rule
	BlockingFields  []string
	MinimumScore    float64
	ReportThreshold float64
}

// Validate rejects configs whose rules reference unknown fields or pair a comparator with a
// field kind it cannot handle.
func (c *MatchingConfig) Validate(schema RecordSchema) error {
	if c == nil {
		return errors.New("matching config is nil")
	}
	if c.RecordType != schema.RecordType {
		return fmt.Errorf("config record type %q does not match schema %q", c.RecordType, schema.RecordType)
	}
	if len(c.Rules) == 0 {
		return fmt.Errorf("%s: at least one rule is required", c.RecordType)
	}
	if c.MinimumScore < 0 || c.MinimumScore > 1 {
		return fmt.Errorf("%s: minimum score must be between 0 and 1", c.RecordType)
	}
	if c.ReportThreshold < 0 || c.ReportThreshold > 1 {
		return fmt.Errorf("%s: report threshold must be between 0 and 1", c.RecordType)
	}

	seen := make(map[string]bool, len(c.Rules))
	for _, rule := range c.Rules {
		kind, ok := schema.Fields[rule.FieldName]
		if !ok {
			return fmt.Errorf("%s: unknown field %q", c.RecordType, rule.FieldName)
		}
		if seen[rule.FieldName] {
			return fmt.Errorf("%s: field %q has more than one rule", c.RecordType, rule.FieldName)
		}
		seen[rule.FieldName] = true
		if rule.Weight <= 0 {
			return fmt.Errorf("%s.%s: weight must be positive", c.RecordType, rule.FieldName)
		}
		if rule.Comparator == nil {
			return fmt.Errorf("%s.%s: comparator is required", c.RecordType, rule.FieldName)
		}
		if err := rule.Comparator.validate(); err != nil {
			return fmt.Errorf("%s.%s: %w", c.RecordType, rule.FieldName, err)
		}
		if !allowedComparators[kind][rule.Comparator.Kind()] {
			return fmt.Errorf("%s.%s: comparator %s is not supported for %s fields", c.RecordType, rule.FieldName, rule.Comparator.Kind(), kind)
		}
		if p, ok := rule.Comparator.(NormalizedParams); ok && !allowedNormalizers[kind][p.Normalizer] {
			return fmt.Errorf("%s.%s: normalizer %s is not supported for %s fields", c.RecordType, rule.FieldName, p.Normalizer, kind)
		}
	}
	for _, f := range c.BlockingFields {
		if _, ok := schema.Fields[f]; !ok {
			return fmt.Errorf("%s: unknown blocking field %q", c.RecordType, f)
		}
	}
	return nil
}

func (c *MatchingConfig) weights() map[string]float64 {
	w := make(map[string]float64, len(c.Rules))
	for _, r := range c.Rules {
		w[r.FieldName] = r.Weight
	}
	return w
}

// WithOverrides returns a copy restricted to the given fields (all when empty) and using
// minScore when set.
func (c *MatchingConfig) WithOverrides(minScore *float64, fields []string) (*MatchingConfig, error) {
	out := *c
	out.BlockingFields = append([]string(nil), c.BlockingFields...)
	if minScore != nil {
		if *minScore < 0 || *minScore > 1 {
			return nil, errors.New("minimum score must be between 0 and 1")
		}
		out.MinimumScore = *minScore
	}
	if len(fields) == 0 {
		out.Rules = append([]Rule(nil), c.Rules...)
		return &out, nil
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}
	out.Rules = nil
	for _, r := range c.Rules {
		if wanted[r.FieldName] {
			out.Rules = append(out.Rules, r)
			delete(wanted, r.FieldName)
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for f := range wanted {
			unknown = append(unknown, f)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("fields not configured for %s: %v", c.RecordType, unknown)
	}
	return &out, nil
}

// CompareRecords runs every rule whose field is present on both records. Fields missing on
// either side are left out of the result so they do not weigh on the score. Exact rules compare
// the stored values untransformed; the others compare trimmed values.
func CompareRecords(original, candidate Record, c *MatchingConfig) []MatchFieldResult {
	results := make([]MatchFieldResult, 0, len(c.Rules))
	for _, rule := range c.Rules {
		value := Record.Value
		if rule.Comparator == nil || rule.Comparator.Kind() == MatchTypeExact {
			value = Record.RawValue
		}
		a, okA := value(original, rule.FieldName)
		b, okB := value(candidate, rule.FieldName)
		if !okA || !okB {
			continue
		}
		results = append(results, Compare(rule.FieldName, a, b, rule.Comparator))
	}
	return results
}

// CalculateTotalMatchScore is the weighted mean similarity over results whose field has a rule.
func CalculateTotalMatchScore(results []MatchFieldResult, c *MatchingConfig) float64 {
	weights := c.weights()
	var sum, total float64
	for _, r := range results {
		w, ok := weights[r.FieldName]
		if !ok {
			continue
		}
		sum += r.EffectiveSimilarity() * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

func IsPotentialDuplicate(score float64, c *MatchingConfig) bool {
	return score >= c.MinimumScore
}
