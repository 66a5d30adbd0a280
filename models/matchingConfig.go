package models

import (
	"sync"

	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/matching"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

var (
	ruleBookOnce sync.Once
	ruleBook     *matching.RuleBook
	ruleBookErr  error
)

func init() {
	matching.SetLogger(config.GetLogger())
}

// loadRuleBook reads MATCHING_RULES_FILE once. A broken rule file fails every scan rather than
// silently falling back to the defaults.
func loadRuleBook() (*matching.RuleBook, error) {
	ruleBookOnce.Do(func() {
		ruleBook, ruleBookErr = matching.LoadRuleBook(config.MatchingRulesFile())
		if ruleBookErr != nil {
			config.LogError(config.GetLogger(), "matchingConfig.go", "loadRuleBook", "Loading matching rules", config.MatchingRulesFile(), ruleBookErr)
		}
	})
	return ruleBook, ruleBookErr
}

// SetRuleBook replaces the rule book in use. Operator tools and tests call it before any run.
func SetRuleBook(b *matching.RuleBook) {
	ruleBookOnce.Do(func() {})
	ruleBook, ruleBookErr = b, nil
}

// matchingConfig returns the config of recordType with MATCH_REPORT_THRESHOLD applied.
func matchingConfig(recordType matching.RecordType) (*matching.MatchingConfig, error) {
	book, err := loadRuleBook()
	if err != nil {
		return nil, utils.ValidationError("matching rules are invalid: %v", err)
	}
	cfg, err := book.Config(recordType)
	if err != nil {
		return nil, utils.ValidationError("%v", err)
	}
	if threshold, ok := config.MatchReportThreshold(); ok {
		c := *cfg
		c.ReportThreshold = threshold
		return &c, nil
	}
	return cfg, nil
}

// ResolveTolerance merges optional overrides onto the env-configured defaults.
func ResolveTolerance(in *ToleranceInput) (matching.Tolerance, error) {
	tol := matching.Tolerance{
		Absolute:   config.ReconciliationToleranceAbsolute(),
		Percentage: config.ReconciliationTolerancePercent(),
	}
	if in != nil {
		if in.Absolute != nil {
			tol.Absolute = *in.Absolute
		}
		if in.Percentage != nil {
			tol.Percentage = *in.Percentage
		}
	}
	if err := tol.Validate(); err != nil {
		return tol, utils.ValidationError("%v", err)
	}
	return tol, nil
}
