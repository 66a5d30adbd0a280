package matching

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithinTolerance(t *testing.T) {
	tol := DefaultTolerance()
	tests := []struct {
		name        string
		source, dst int64
		want        bool
	}{
		{"equal", 10000, 10000, true},
		{"absolute bound", 10000, 10100, true},
		{"percentage bound", 100000, 101000, true},
		{"outside both", 10000, 10101, false},
		{"negative difference", 10000, 9899, false},
		{"zero source passes", 0, 500000, true},
		{"zero destination", 10000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tol.IsWithinTolerance(tt.source, tt.dst))
		})
	}

	strict := Tolerance{Absolute: 0, Percentage: decimal.Zero}
	assert.True(t, strict.IsWithinTolerance(5, 5))
	assert.False(t, strict.IsWithinTolerance(5, 6))
}

func TestToleranceValidate(t *testing.T) {
	assert.NoError(t, DefaultTolerance().Validate())
	assert.Error(t, Tolerance{Absolute: -1}.Validate())
	assert.Error(t, Tolerance{Percentage: decimal.NewFromInt(-1)}.Validate())
}

func TestReconcileWithinTolerance(t *testing.T) {
	p := Reconcile(
		[]LedgerEntry{{RecordId: "s1", Key: "E1", Amount: 10000}},
		[]LedgerEntry{{RecordId: "d1", Key: "E1", Amount: 10050}},
		DefaultTolerance(),
	)
	require.Len(t, p.Matched, 1)
	assert.False(t, p.HasDiscrepancies())
	assert.Equal(t, int64(-50), p.Matched[0].Variance)
}

func TestReconcileAmountMismatch(t *testing.T) {
	p := Reconcile(
		[]LedgerEntry{{RecordId: "s1", Key: "E1", Amount: 10000}},
		[]LedgerEntry{{RecordId: "d1", Key: "E1", Amount: 20000}},
		DefaultTolerance(),
	)
	require.Len(t, p.AmountMismatch, 1)
	assert.True(t, p.HasDiscrepancies())
	assert.Equal(t, int64(-10000), p.AmountMismatch[0].Variance)
	assert.Equal(t, int64(10000), p.TotalSourceAmount)
	assert.Equal(t, int64(20000), p.TotalDestinationAmount)
}

func TestReconcileOneSidedAndDuplicateKeys(t *testing.T) {
	p := Reconcile(
		[]LedgerEntry{
			{RecordId: "s1", Key: "E1", Amount: 100},
			{RecordId: "s2", Key: "E1", Amount: 900},
			{RecordId: "s3", Key: "E2", Amount: 700},
			{RecordId: "s4", Key: "", Amount: 1},
		},
		[]LedgerEntry{
			{RecordId: "d1", Key: "E1", Amount: 100},
			{RecordId: "d2", Key: "E3", Amount: 300},
			{RecordId: "d3", Key: "", Amount: 1},
		},
		DefaultTolerance(),
	)
	require.Len(t, p.Matched, 1)
	assert.Equal(t, "s1", p.Matched[0].Source.RecordId)

	require.Len(t, p.SourceOnly, 3)
	assert.Equal(t, "s2", p.SourceOnly[0].Source.RecordId)
	assert.Equal(t, int64(900), p.SourceOnly[0].Variance)

	require.Len(t, p.DestinationOnly, 2)
	assert.Equal(t, int64(-300), p.DestinationOnly[0].Variance)
	assert.Len(t, p.Items(), 6)
}

func TestReconcileRepeatedKeyPrefersAmountWithinTolerance(t *testing.T) {
	p := Reconcile(
		[]LedgerEntry{
			{RecordId: "s1", Key: "E1", Amount: 100},
			{RecordId: "s2", Key: "E1", Amount: 10000},
		},
		[]LedgerEntry{
			{RecordId: "d1", Key: "E1", Amount: 10000},
			{RecordId: "d2", Key: "E1", Amount: 100},
		},
		DefaultTolerance(),
	)
	require.Len(t, p.Matched, 2)
	assert.Empty(t, p.AmountMismatch)
	assert.Equal(t, "s2", p.Matched[0].Source.RecordId)
	assert.Equal(t, "s1", p.Matched[1].Source.RecordId)

	// with nothing in tolerance the earliest source entry is paired
	p = Reconcile(
		[]LedgerEntry{
			{RecordId: "s1", Key: "E1", Amount: 100},
			{RecordId: "s2", Key: "E1", Amount: 200000},
		},
		[]LedgerEntry{{RecordId: "d1", Key: "E1", Amount: 50000}},
		DefaultTolerance(),
	)
	require.Len(t, p.AmountMismatch, 1)
	assert.Equal(t, "s1", p.AmountMismatch[0].Source.RecordId)
	require.Len(t, p.SourceOnly, 1)
	assert.Equal(t, "s2", p.SourceOnly[0].Source.RecordId)
}

func TestReconcilePartitionIsExhaustiveAndDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tol := DefaultTolerance()
	for round := 0; round < 200; round++ {
		source := make([]LedgerEntry, rng.Intn(20))
		for i := range source {
			source[i] = LedgerEntry{RecordId: fmt.Sprintf("s%d", i), Key: fmt.Sprintf("E%d", rng.Intn(8)), Amount: rng.Int63n(20000)}
		}
		destination := make([]LedgerEntry, rng.Intn(20))
		for i := range destination {
			destination[i] = LedgerEntry{RecordId: fmt.Sprintf("d%d", i), Key: fmt.Sprintf("E%d", rng.Intn(8)), Amount: rng.Int63n(20000)}
		}

		p := Reconcile(source, destination, tol)
		paired := len(p.Matched) + len(p.AmountMismatch)
		require.Equal(t, len(source), paired+len(p.SourceOnly), "round %d", round)
		require.Equal(t, len(destination), paired+len(p.DestinationOnly), "round %d", round)

		seenSource := map[string]bool{}
		seenDest := map[string]bool{}
		for _, item := range p.Items() {
			if item.Source != nil {
				require.False(t, seenSource[item.Source.RecordId])
				seenSource[item.Source.RecordId] = true
			}
			if item.Destination != nil {
				require.False(t, seenDest[item.Destination.RecordId])
				seenDest[item.Destination.RecordId] = true
			}
		}
		assert.Len(t, seenSource, len(source))
		assert.Len(t, seenDest, len(destination))
	}
}
