package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contribution(id int, employee, date, preTax string) Record {
	return Record{ID: id, Fields: map[string]string{
		"employee_id":    employee,
		"payroll_date":   date,
		"pre_tax_amount": preTax,
	}}
}

func TestIdenticalContributionsAreFlagged(t *testing.T) {
	c := DefaultContributionConfig()
	pairs := FindDuplicatePairs([]Record{
		contribution(2, "E1", "2024-03-15", "50000"),
		contribution(1, "E1", "2024-03-15", "50000"),
	}, c)
	require.Len(t, pairs, 1)
	assert.Equal(t, 1, pairs[0].OriginalID)
	assert.Equal(t, 2, pairs[0].DuplicateID)
	assert.Equal(t, 1.0, pairs[0].Score)
	assert.Len(t, pairs[0].MatchFields, 3)
}

func TestBlockingKeepsBucketsApart(t *testing.T) {
	c := DefaultContributionConfig()
	records := []Record{
		contribution(1, "E1", "2024-03-15", "50000"),
		contribution(2, "E1", "2024-03-31", "50000"),
		contribution(3, "E2", "2024-03-15", "50000"),
		{ID: 4, Fields: map[string]string{"employee_id": "E1", "pre_tax_amount": "50000"}},
	}
	assert.Empty(t, FindDuplicatePairs(records, c))

	buckets := Bucket(records, c.BlockingFields)
	assert.Len(t, buckets, 3)
}

func TestAmountMismatchBelowThreshold(t *testing.T) {
	c := DefaultContributionConfig()
	pairs := FindDuplicatePairs([]Record{
		contribution(1, "E1", "2024-03-15", "50000"),
		contribution(2, "E1", "2024-03-15", "25000"),
	}, c)
	assert.Empty(t, pairs)

	pair := ScorePair(contribution(1, "E1", "2024-03-15", "50000"), contribution(2, "E1", "2024-03-15", "25000"), c)
	assert.InDelta(t, 0.75, pair.Score, 1e-12)
	// the failing amount field is below the report threshold
	assert.Len(t, pair.MatchFields, 2)
}

func TestFindDuplicatePairsIsDeterministic(t *testing.T) {
	c := DefaultContributionConfig()
	var records []Record
	for i := 10; i > 0; i-- {
		records = append(records, contribution(i, fmt.Sprintf("E%d", i%2), "2024-03-15", "100"))
	}
	first := FindDuplicatePairs(records, c)
	second := FindDuplicatePairs(records, c)
	assert.Equal(t, first, second)
	// two buckets of five records: 2 * C(5,2)
	assert.Len(t, first, 20)
	for _, p := range first {
		assert.Less(t, p.OriginalID, p.DuplicateID)
	}
}

func TestBestMatch(t *testing.T) {
	c := DefaultEmployeeConfig()
	existing := []Record{
		{ID: 1, Fields: map[string]string{"tenant_id": "t1", "ssn": "111-22-3333", "full_name": "Jane Doe"}},
		{ID: 2, Fields: map[string]string{"tenant_id": "t1", "ssn": "999-88-7777", "full_name": "Jane Doe"}},
		{ID: 3, Fields: map[string]string{"tenant_id": "t2", "ssn": "111-22-3333", "full_name": "Jane Doe"}},
	}
	candidate := Record{Fields: map[string]string{"tenant_id": "t1", "ssn": "111223333", "full_name": "JANE  DOE"}}
	best, score, ok := BestMatch(candidate, existing, c)
	require.True(t, ok)
	assert.Equal(t, 1, best.ID)
	assert.Equal(t, 1.0, score)
	assert.True(t, IsPotentialDuplicate(score, c))

	_, _, ok = BestMatch(Record{Fields: map[string]string{"ssn": "1"}}, existing, c)
	assert.False(t, ok)
}
