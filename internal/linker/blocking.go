package linker

import (
	"context"
	"sort"

	"reclink/internal/linkage"
	"reclink/internal/textutil"
)

type candidate struct {
	left, right int
}

// blockingKeys returns the distinct blocking keys of a record. Exact fields
// block on the whole value, other fields on each sufficiently long token.
func blockingKeys(fields []linkage.FieldSpec, rec linkage.Record, minLen int) []string {
	var keys []string
	seen := make(map[string]struct{})
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, f := range fields {
		value, ok := rec.Get(f.Field)
		if !ok {
			continue
		}
		if f.Type == linkage.FieldExact {
			add(f.Field + "=" + value)
			continue
		}
		for _, token := range textutil.UniqueTokens(value, minLen) {
			add(f.Field + ":" + token)
		}
	}
	return keys
}

// blockPairs lists every (left row, right row) pair sharing a usable
// blocking key, sorted by left row then right row. Keys held by more than
// maxBlock records on either side are skipped.
func blockPairs(ctx context.Context, fields []linkage.FieldSpec, left, right *linkage.Dataset, blocking Blocking) ([]candidate, error) {
	leftIDs, rightIDs := left.IDs(), right.IDs()
	index := make(map[string][]int)
	for i, id := range leftIDs {
		rec, _ := left.Record(id)
		for _, key := range blockingKeys(fields, rec, blocking.MinTokenLength) {
			index[key] = append(index[key], i)
		}
	}
	rightCounts := make(map[string]int)
	rightKeys := make([][]string, len(rightIDs))
	for j, id := range rightIDs {
		rec, _ := right.Record(id)
		rightKeys[j] = blockingKeys(fields, rec, blocking.MinTokenLength)
		for _, key := range rightKeys[j] {
			rightCounts[key]++
		}
	}

	seen := make(map[candidate]struct{})
	var pairs []candidate
	for j, keys := range rightKeys {
		if j%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, key := range keys {
			posting := index[key]
			if len(posting) == 0 || len(posting) > blocking.MaxBlockSize || rightCounts[key] > blocking.MaxBlockSize {
				continue
			}
			for _, i := range posting {
				c := candidate{left: i, right: j}
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				pairs = append(pairs, c)
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].left != pairs[b].left {
			return pairs[a].left < pairs[b].left
		}
		return pairs[a].right < pairs[b].right
	})
	return pairs, nil
}
