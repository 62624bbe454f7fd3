package linker

import (
	"context"
	"fmt"
	"sort"

	"reclink/internal/linkage"
	"reclink/internal/logging"
)

type scoredPair struct {
	candidate
	score float64
}

// Cluster scores every blocked pair with model and links each record to at
// most one counterpart. Pairs are taken greedily by descending score, ties
// by (left row, right row). A zero threshold considers every blocked pair;
// otherwise only pairs scoring strictly above it are considered. Pairs the
// model remembers as judged distinct never are.
// Every cluster has exactly two members. Unlinked records are omitted.
func (l *Linker) Cluster(ctx context.Context, model linkage.TrainedModel, left, right *linkage.Dataset, threshold float64) (linkage.ClusterResult, error) {
	m, ok := model.(*Model)
	if !ok || m == nil {
		return nil, fmt.Errorf("cluster: unsupported model type %T", model)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}

	candidates, err := blockPairs(ctx, m.FieldSpecs, left, right, m.Blocking)
	if err != nil {
		return nil, err
	}
	distinct := make(map[string]struct{}, len(m.DistinctPairs))
	for _, key := range m.DistinctPairs {
		distinct[key] = struct{}{}
	}
	leftIDs, rightIDs := left.IDs(), right.IDs()
	scored := make([]scoredPair, 0, len(candidates))
	excluded := 0
	for n, c := range candidates {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lrec, _ := left.Record(leftIDs[c.left])
		rrec, _ := right.Record(rightIDs[c.right])
		if len(distinct) > 0 {
			if _, ok := distinct[pairKey(m.FieldSpecs, lrec, rrec)]; ok {
				excluded++
				continue
			}
		}
		score := m.Probability(l.cmp.features(m.FieldSpecs, lrec, rrec))
		if threshold == 0 || score > threshold {
			scored = append(scored, scoredPair{candidate: c, score: score})
		}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		if scored[a].left != scored[b].left {
			return scored[a].left < scored[b].left
		}
		return scored[a].right < scored[b].right
	})

	usedLeft := make(map[int]bool)
	usedRight := make(map[int]bool)
	var result linkage.ClusterResult
	for _, s := range scored {
		if usedLeft[s.left] || usedRight[s.right] {
			continue
		}
		usedLeft[s.left], usedRight[s.right] = true, true
		result = append(result, linkage.Cluster{
			Members: []linkage.RecordID{leftIDs[s.left], rightIDs[s.right]},
			Score:   s.score,
		})
	}

	l.logger.Info("clustering complete",
		logging.Int("blocked_pairs", len(candidates)),
		logging.Int("above_threshold", len(scored)),
		logging.Int("judged_distinct", excluded),
		logging.Int("clusters", len(result)),
		logging.Float64("threshold", threshold),
		logging.String(logging.FieldEventType, "clustering_complete"),
	)
	return result, nil
}
