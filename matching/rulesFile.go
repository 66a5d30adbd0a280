package matching

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"
)

// ruleFile is the on-disk shape of MATCHING_RULES_FILE. Tolerance keys are only legal on
// numeric_tolerance rules and normalizer only on normalized rules.
type ruleFile struct {
	RecordTypes []ruleFileConfig `yaml:"record_types" validate:"required,dive"`
}

type ruleFileConfig struct {
	RecordType      RecordType      `yaml:"record_type" validate:"required"`
	MinimumScore    float64         `yaml:"minimum_score" validate:"gte=0,lte=1"`
	ReportThreshold *float64        `yaml:"report_threshold" validate:"omitempty,gte=0,lte=1"`
	BlockingFields  []string        `yaml:"blocking_fields"`
	Rules           []ruleFileEntry `yaml:"rules" validate:"required,min=1,dive"`
}

type ruleFileEntry struct {
	Field             string     `yaml:"field" validate:"required"`
	Comparator        MatchType  `yaml:"comparator" validate:"required"`
	Weight            float64    `yaml:"weight" validate:"gt=0"`
	Normalizer        Normalizer `yaml:"normalizer"`
	AbsoluteTolerance *string    `yaml:"absolute_tolerance"`
	RelativeTolerance *string    `yaml:"relative_tolerance"`
}

func (e ruleFileEntry) params() (ComparatorParams, error) {
	if e.Comparator != MatchTypeNormalized && e.Normalizer != "" {
		return nil, fmt.Errorf("normalizer is not allowed on %s rules", e.Comparator)
	}
	if e.Comparator != MatchTypeNumericTolerance && (e.AbsoluteTolerance != nil || e.RelativeTolerance != nil) {
		return nil, fmt.Errorf("tolerances are not allowed on %s rules", e.Comparator)
	}

	switch e.Comparator {
	case MatchTypeExact:
		return ExactParams{}, nil
	case MatchTypeFuzzy:
		return FuzzyParams{}, nil
	case MatchTypePhonetic:
		return PhoneticParams{}, nil
	case MatchTypeNormalized:
		if e.Normalizer == "" {
			return nil, fmt.Errorf("normalized rules need a normalizer")
		}
		return NormalizedParams{Normalizer: e.Normalizer}, nil
	case MatchTypeNumericTolerance:
		p := NumericToleranceParams{Absolute: decimal.Zero, Relative: decimal.Zero}
		if e.AbsoluteTolerance != nil {
			d, err := decimal.NewFromString(*e.AbsoluteTolerance)
			if err != nil {
				return nil, fmt.Errorf("absolute_tolerance: %w", err)
			}
			p.Absolute = d
		}
		if e.RelativeTolerance != nil {
			d, err := decimal.NewFromString(*e.RelativeTolerance)
			if err != nil {
				return nil, fmt.Errorf("relative_tolerance: %w", err)
			}
			p.Relative = d
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown comparator %q", e.Comparator)
}

func (c ruleFileConfig) toConfig() (*MatchingConfig, error) {
	out := &MatchingConfig{
		RecordType:      c.RecordType,
		BlockingFields:  c.BlockingFields,
		MinimumScore:    c.MinimumScore,
		ReportThreshold: DefaultReportThreshold,
	}
	if c.ReportThreshold != nil {
		out.ReportThreshold = *c.ReportThreshold
	}
	for _, e := range c.Rules {
		p, err := e.params()
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.RecordType, e.Field, err)
		}
		out.Rules = append(out.Rules, Rule{FieldName: e.Field, Weight: e.Weight, Comparator: p})
	}
	return out, nil
}

// ParseRuleBook decodes a YAML rule file and overlays it on the defaults. Every config in the
// file replaces the default of its record type wholesale.
func ParseRuleBook(data []byte) (*RuleBook, error) {
	var f ruleFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("decode rule file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid rule file: %w", err)
	}

	book := DefaultRuleBook()
	for _, rc := range f.RecordTypes {
		c, err := rc.toConfig()
		if err != nil {
			return nil, err
		}
		if err := book.Set(c); err != nil {
			return nil, err
		}
	}
	return book, nil
}

// LoadRuleBook returns the defaults when path is empty.
func LoadRuleBook(path string) (*RuleBook, error) {
	if path == "" {
		return DefaultRuleBook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleBook(data)
}
