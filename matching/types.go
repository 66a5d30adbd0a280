package matching

import "strings"

type MatchType string

const (
	MatchTypeExact            MatchType = "exact"
	MatchTypeFuzzy            MatchType = "fuzzy"
	MatchTypeNormalized       MatchType = "normalized"
	MatchTypePhonetic         MatchType = "phonetic"
	MatchTypeNumericTolerance MatchType = "numeric_tolerance"
)

func (t MatchType) IsValid() bool {
	switch t {
	case MatchTypeExact, MatchTypeFuzzy, MatchTypeNormalized, MatchTypePhonetic, MatchTypeNumericTolerance:
		return true
	}
	return false
}

// MatchFieldResult is the verdict of one field comparison between an original and a candidate record.
type MatchFieldResult struct {
	FieldName      string    `json:"field_name"`
	OriginalValue  string    `json:"original_value"`
	CandidateValue string    `json:"candidate_value"`
	MatchType      MatchType `json:"match_type"`
	Similarity     *float64  `json:"similarity,omitempty"`
}

// EffectiveSimilarity returns the similarity, treating an absent value as 1.0 for an
// equal exact comparison and 0.0 for anything else.
func (r MatchFieldResult) EffectiveSimilarity() float64 {
	if r.Similarity != nil {
		return *r.Similarity
	}
	if r.MatchType == MatchTypeExact && r.OriginalValue == r.CandidateValue {
		return 1
	}
	return 0
}

type RecordType string

const (
	RecordTypeEmployee     RecordType = "employee"
	RecordTypeContribution RecordType = "contribution"
)

// Record is a flattened view of a persisted record: its id plus the string form of every
// field a matching config may reference.
type Record struct {
	ID     int               `json:"id"`
	Fields map[string]string `json:"fields"`
}

// RawValue returns the field exactly as stored. Blank values are reported as missing.
func (r Record) RawValue(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Value returns the trimmed field value; empty values are reported as missing. Every comparator
// except exact sees trimmed values.
func (r Record) Value(field string) (string, bool) {
	if r.Fields == nil {
		return "", false
	}
	v := strings.TrimSpace(r.Fields[field])
	if v == "" {
		return "", false
	}
	return v, true
}

func similarity(v float64) *float64 {
	return &v
}
