package extract

import (
	"github.com/cloo-solutions/docpipe/internal/domain"
)

// MergePolicy decides which record survives when two records share an
// identity key.
type MergePolicy func(existing, incoming domain.ExtractedRecord) domain.ExtractedRecord

// KeepFirst keeps the record seen earliest in chunk order. This is the
// default policy.
func KeepFirst(existing, _ domain.ExtractedRecord) domain.ExtractedRecord {
	return existing
}

// Merge collapses per-chunk record lists into one canonical set keyed by
// identity, walking lists in chunk sequence order. The output contains each
// identity key exactly once and is itself a fixed point: merging the result
// again returns it unchanged.
func Merge(lists [][]domain.ExtractedRecord) []domain.ExtractedRecord {
	return MergeWithPolicy(lists, KeepFirst)
}

// MergeWithPolicy is Merge with an explicit duplicate policy.
func MergeWithPolicy(lists [][]domain.ExtractedRecord, policy MergePolicy) []domain.ExtractedRecord {
	if policy == nil {
		policy = KeepFirst
	}

	var canonical []domain.ExtractedRecord
	index := make(map[string]int)
	for _, list := range lists {
		for _, record := range list {
			if !record.HasIdentity() {
				continue
			}
			at, seen := index[record.Name]
			if !seen {
				index[record.Name] = len(canonical)
				canonical = append(canonical, record)
				continue
			}
			canonical[at] = policy(canonical[at], record)
		}
	}

	return canonical
}
