package matching

import (
	"errors"

	"github.com/shopspring/decimal"
)

type ReconcileStatus string

const (
	ReconcileStatusMatched         ReconcileStatus = "MATCHED"
	ReconcileStatusSourceOnly      ReconcileStatus = "SOURCE_ONLY"
	ReconcileStatusDestinationOnly ReconcileStatus = "DESTINATION_ONLY"
	ReconcileStatusAmountMismatch  ReconcileStatus = "AMOUNT_MISMATCH"
	// reserved for non-amount discrepancies; the matcher never emits it
	ReconcileStatusDataMismatch ReconcileStatus = "DATA_MISMATCH"
)

// LedgerEntry is one record on either side of a reconciliation: a matching key and a signed
// amount in minor currency units.
type LedgerEntry struct {
	RecordId string         `json:"record_id"`
	Key      string         `json:"key"`
	Amount   int64          `json:"amount"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// Tolerance is satisfied when either the absolute or the percentage bound holds.
// Percentage is expressed in percent (1 means 1%).
type Tolerance struct {
	Absolute   int64           `json:"absolute"`
	Percentage decimal.Decimal `json:"percentage"`
}

func DefaultTolerance() Tolerance {
	return Tolerance{Absolute: 100, Percentage: decimal.NewFromInt(1)}
}

func (t Tolerance) Validate() error {
	if t.Absolute < 0 {
		return errors.New("absolute tolerance must not be negative")
	}
	if t.Percentage.IsNegative() {
		return errors.New("percentage tolerance must not be negative")
	}
	return nil
}

// IsWithinTolerance compares a destination amount against its source. The percentage is taken
// of the source amount; with a zero source the percentage difference is zero and the pair
// passes.
func (t Tolerance) IsWithinTolerance(source, destination int64) bool {
	diff := abs64(source - destination)
	if diff <= t.Absolute {
		return true
	}
	if source == 0 {
		return true
	}
	lhs := decimal.NewFromInt(diff).Mul(decimal.NewFromInt(100))
	rhs := t.Percentage.Mul(decimal.NewFromInt(abs64(source)))
	return lhs.LessThanOrEqual(rhs)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

type ReconciledPair struct {
	Status      ReconcileStatus `json:"status"`
	Key         string          `json:"key"`
	Source      *LedgerEntry    `json:"source,omitempty"`
	Destination *LedgerEntry    `json:"destination,omitempty"`
	// Variance is source minus destination, a missing side counting as zero
	Variance int64 `json:"variance"`
}

// Partition is the disjoint classification of every source and destination entry.
type Partition struct {
	Matched         []ReconciledPair
	AmountMismatch  []ReconciledPair
	SourceOnly      []ReconciledPair
	DestinationOnly []ReconciledPair

	TotalSourceAmount      int64
	TotalDestinationAmount int64
}

func (p Partition) HasDiscrepancies() bool {
	return len(p.AmountMismatch) > 0 || len(p.SourceOnly) > 0 || len(p.DestinationOnly) > 0
}

func (p Partition) Total() int {
	return len(p.Matched) + len(p.AmountMismatch) + len(p.SourceOnly) + len(p.DestinationOnly)
}

// Items lists every classified pair: matched, amount mismatches, source-only, destination-only.
func (p Partition) Items() []ReconciledPair {
	items := make([]ReconciledPair, 0, p.Total())
	items = append(items, p.Matched...)
	items = append(items, p.AmountMismatch...)
	items = append(items, p.SourceOnly...)
	items = append(items, p.DestinationOnly...)
	return items
}

// Reconcile indexes the source side by key and walks the destination side. For a key repeated
// on the source side, a destination entry takes the earliest unconsumed source entry within
// tolerance, or the earliest one when none is. Every entry lands in exactly one bucket.
// Entries with an empty key never match.
func Reconcile(source, destination []LedgerEntry, tol Tolerance) Partition {
	var p Partition
	index := make(map[string][]int, len(source))
	consumed := make([]bool, len(source))
	for i := range source {
		p.TotalSourceAmount += source[i].Amount
		if source[i].Key == "" {
			continue
		}
		index[source[i].Key] = append(index[source[i].Key], i)
	}

	for i := range destination {
		dst := &destination[i]
		p.TotalDestinationAmount += dst.Amount

		queue := index[dst.Key]
		if dst.Key == "" || len(queue) == 0 {
			p.DestinationOnly = append(p.DestinationOnly, ReconciledPair{
				Status:      ReconcileStatusDestinationOnly,
				Key:         dst.Key,
				Destination: dst,
				Variance:    -dst.Amount,
			})
			continue
		}
		pick := 0
		for q, candidate := range queue {
			if tol.IsWithinTolerance(source[candidate].Amount, dst.Amount) {
				pick = q
				break
			}
		}
		si := queue[pick]
		index[dst.Key] = append(queue[:pick:pick], queue[pick+1:]...)
		consumed[si] = true
		src := &source[si]

		pair := ReconciledPair{
			Key:         dst.Key,
			Source:      src,
			Destination: dst,
			Variance:    src.Amount - dst.Amount,
		}
		if tol.IsWithinTolerance(src.Amount, dst.Amount) {
			pair.Status = ReconcileStatusMatched
			p.Matched = append(p.Matched, pair)
		} else {
			pair.Status = ReconcileStatusAmountMismatch
			p.AmountMismatch = append(p.AmountMismatch, pair)
		}
	}

	for i := range source {
		if consumed[i] {
			continue
		}
		p.SourceOnly = append(p.SourceOnly, ReconciledPair{
			Status:   ReconcileStatusSourceOnly,
			Key:      source[i].Key,
			Source:   &source[i],
			Variance: source[i].Amount,
		})
	}
	return p
}
