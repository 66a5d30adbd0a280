package matching

import (
	"sort"
	"strings"
)

// DuplicatePair is a scored candidate duplicate; OriginalID is always the lower record id.
type DuplicatePair struct {
	OriginalID  int                `json:"original_id"`
	DuplicateID int                `json:"duplicate_id"`
	Score       float64            `json:"score"`
	MatchFields []MatchFieldResult `json:"match_fields"`
}

const blockingSeparator = "\x1f"

// BlockingKey joins the record's blocking-field values. ok is false when any value is
// missing: such a record shares a bucket with nothing.
func BlockingKey(r Record, fields []string) (key string, ok bool) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, present := r.Value(f)
		if !present {
			return "", false
		}
		parts[i] = v
	}
	return strings.Join(parts, blockingSeparator), true
}

// Bucket groups records by blocking key; each bucket is ordered by record id.
func Bucket(records []Record, fields []string) map[string][]Record {
	buckets := make(map[string][]Record)
	for _, r := range records {
		key, ok := BlockingKey(r, fields)
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], r)
	}
	for _, b := range buckets {
		sort.Slice(b, func(i, j int) bool { return b[i].ID < b[j].ID })
	}
	return buckets
}

// ScorePair compares two records and returns the pair oriented lower-id-first, with only the
// field results at or above the report threshold attached.
func ScorePair(a, b Record, c *MatchingConfig) DuplicatePair {
	if b.ID < a.ID {
		a, b = b, a
	}
	results := CompareRecords(a, b, c)
	pair := DuplicatePair{
		OriginalID:  a.ID,
		DuplicateID: b.ID,
		Score:       CalculateTotalMatchScore(results, c),
	}
	for _, r := range results {
		if r.EffectiveSimilarity() >= c.ReportThreshold {
			pair.MatchFields = append(pair.MatchFields, r)
		}
	}
	return pair
}

// FindDuplicatePairs compares every pair inside each blocking bucket and returns the pairs
// whose score reaches the config's minimum, in bucket-key then id order.
func FindDuplicatePairs(records []Record, c *MatchingConfig) []DuplicatePair {
	buckets := Bucket(records, c.BlockingFields)
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []DuplicatePair
	for _, k := range keys {
		pairs = append(pairs, FindDuplicatesInBucket(buckets[k], c)...)
	}
	return pairs
}

// FindDuplicatesInBucket is the quadratic pass over one bucket. Exposed so callers can shard a
// scan by bucket.
func FindDuplicatesInBucket(bucket []Record, c *MatchingConfig) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(bucket); i++ {
		for j := i + 1; j < len(bucket); j++ {
			if bucket[i].ID == bucket[j].ID {
				continue
			}
			pair := ScorePair(bucket[i], bucket[j], c)
			if IsPotentialDuplicate(pair.Score, c) {
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

// BestMatch scores candidate against the existing records of its bucket and returns the
// highest-scoring one. ok is false when the candidate shares a bucket with no record.
func BestMatch(candidate Record, existing []Record, c *MatchingConfig) (best Record, score float64, ok bool) {
	key, present := BlockingKey(candidate, c.BlockingFields)
	if !present {
		return Record{}, 0, false
	}
	for _, r := range existing {
		if r.ID == candidate.ID && candidate.ID != 0 {
			continue
		}
		if k, p := BlockingKey(r, c.BlockingFields); !p || k != key {
			continue
		}
		s := CalculateTotalMatchScore(CompareRecords(r, candidate, c), c)
		if !ok || s > score || (s == score && r.ID < best.ID) {
			best, score, ok = r, s, true
		}
	}
	return best, score, ok
}
