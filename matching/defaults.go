package matching

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var EmployeeSchema = RecordSchema{
	RecordType: RecordTypeEmployee,
	Fields: map[string]FieldKind{
		"tenant_id":     FieldKindIdentifier,
		"ssn":           FieldKindIdentifier,
		"full_name":     FieldKindText,
		"first_name":    FieldKindText,
		"last_name":     FieldKindText,
		"date_of_birth": FieldKindDate,
		"email":         FieldKindText,
		"phone":         FieldKindIdentifier,
	},
}

var ContributionSchema = RecordSchema{
	RecordType: RecordTypeContribution,
	Fields: map[string]FieldKind{
		"tenant_id":             FieldKindIdentifier,
		"employee_id":           FieldKindIdentifier,
		"plan_id":               FieldKindIdentifier,
		"payroll_date":          FieldKindDate,
		"pre_tax_amount":        FieldKindAmount,
		"roth_amount":           FieldKindAmount,
		"after_tax_amount":      FieldKindAmount,
		"employer_match_amount": FieldKindAmount,
		"loan_repayment_amount": FieldKindAmount,
	},
}

func Schemas() map[RecordType]RecordSchema {
	return map[RecordType]RecordSchema{
		RecordTypeEmployee:     EmployeeSchema,
		RecordTypeContribution: ContributionSchema,
	}
}

// amounts are minor units; one cent either way is noise
func amountTolerance() NumericToleranceParams {
	return NumericToleranceParams{Absolute: decimal.NewFromInt(1), Relative: decimal.Zero}
}

func DefaultContributionConfig() *MatchingConfig {
	return &MatchingConfig{
		RecordType:     RecordTypeContribution,
		BlockingFields: []string{"employee_id", "payroll_date"},
		Rules: []Rule{
			{FieldName: "employee_id", Weight: 0.3, Comparator: ExactParams{}},
			{FieldName: "payroll_date", Weight: 0.3, Comparator: ExactParams{}},
			{FieldName: "pre_tax_amount", Weight: 0.2, Comparator: amountTolerance()},
			{FieldName: "roth_amount", Weight: 0.1, Comparator: amountTolerance()},
			{FieldName: "employer_match_amount", Weight: 0.1, Comparator: amountTolerance()},
		},
		MinimumScore:    0.90,
		ReportThreshold: DefaultReportThreshold,
	}
}

func DefaultEmployeeConfig() *MatchingConfig {
	return &MatchingConfig{
		RecordType:     RecordTypeEmployee,
		BlockingFields: []string{"tenant_id"},
		Rules: []Rule{
			{FieldName: "ssn", Weight: 0.5, Comparator: NormalizedParams{Normalizer: NormalizerIdentifier}},
			{FieldName: "full_name", Weight: 0.3, Comparator: NormalizedParams{Normalizer: NormalizerName}},
			{FieldName: "tenant_id", Weight: 0.2, Comparator: ExactParams{}},
		},
		MinimumScore:    0.85,
		ReportThreshold: DefaultReportThreshold,
	}
}

// RuleBook holds the validated matching config of every record category.
type RuleBook struct {
	configs map[RecordType]*MatchingConfig
}

func DefaultRuleBook() *RuleBook {
	return &RuleBook{configs: map[RecordType]*MatchingConfig{
		RecordTypeEmployee:     DefaultEmployeeConfig(),
		RecordTypeContribution: DefaultContributionConfig(),
	}}
}

// Config returns the config of a record category.
func (b *RuleBook) Config(recordType RecordType) (*MatchingConfig, error) {
	c, ok := b.configs[recordType]
	if !ok {
		return nil, fmt.Errorf("no matching config for record type %q", recordType)
	}
	return c, nil
}

// Set validates c against its schema and installs it.
func (b *RuleBook) Set(c *MatchingConfig) error {
	schema, ok := Schemas()[c.RecordType]
	if !ok {
		return fmt.Errorf("unknown record type %q", c.RecordType)
	}
	if err := c.Validate(schema); err != nil {
		return err
	}
	b.configs[c.RecordType] = c
	return nil
}
