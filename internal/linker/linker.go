package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"reclink/internal/linkage"
	"reclink/internal/logging"
)

const (
	defaultSampleSize     = 15000
	defaultMaxBlockSize   = 200
	defaultMinTokenLength = 2
	defaultSeed           = 0x7265636c696e6b
)

// Options tunes blocking and active-learning sampling.
type Options struct {
	SampleSize     int
	MaxBlockSize   int
	MinTokenLength int
	// Seed drives candidate sampling. Runs with the same seed and inputs
	// offer the same pairs in the same order.
	Seed   uint64
	Logger *slog.Logger
}

type pooled struct {
	pair     linkage.Pair
	features []float64
}

// Linker implements linkage.Linker. It is not safe for concurrent use.
type Linker struct {
	opts   Options
	logger *slog.Logger
	cmp    *comparator

	fields []linkage.FieldSpec

	left, right *linkage.Dataset
	pool        []pooled
	offered     map[linkage.Pair][]float64
	samples     []sample
	current     *Model
}

var _ linkage.Linker = (*Linker)(nil)

// New returns a Linker with zero options replaced by defaults.
func New(opts Options) *Linker {
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = defaultMaxBlockSize
	}
	if opts.MinTokenLength <= 0 {
		opts.MinTokenLength = defaultMinTokenLength
	}
	if opts.Seed == 0 {
		opts.Seed = defaultSeed
	}
	return &Linker{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "linker"),
		cmp:    newComparator(),
	}
}

func (l *Linker) blocking() Blocking {
	return Blocking{MinTokenLength: l.opts.MinTokenLength, MaxBlockSize: l.opts.MaxBlockSize}
}

// Configure fixes the field specs used for features and blocking.
func (l *Linker) Configure(fields []linkage.FieldSpec) error {
	if len(fields) == 0 {
		return errors.New("configure linker: no fields")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, err := linkage.ParseFieldType(string(f.Type)); err != nil {
			return fmt.Errorf("configure linker: field %s: %w", f.Field, err)
		}
		if _, dup := seen[f.Field]; dup {
			return fmt.Errorf("configure linker: duplicate field %s", f.Field)
		}
		seen[f.Field] = struct{}{}
	}
	l.fields = append([]linkage.FieldSpec(nil), fields...)
	return nil
}

// Prepare builds the active-learning pool from blocked candidate pairs,
// excluding pairs already present in examples.
func (l *Linker) Prepare(ctx context.Context, left, right *linkage.Dataset, examples []linkage.LabeledExample) error {
	if l.fields == nil {
		return errors.New("prepare: linker not configured")
	}
	l.left, l.right = left, right
	l.offered = make(map[linkage.Pair][]float64)

	samples, err := l.samplesFrom(ctx, examples)
	if err != nil {
		return err
	}
	l.samples = samples
	l.current = fit(priorModel(l.fields, l.blocking()), l.samples)

	labeled := make(map[linkage.Pair]struct{}, len(examples))
	for _, ex := range examples {
		labeled[ex.Pair()] = struct{}{}
	}

	candidates, err := blockPairs(ctx, l.fields, left, right, l.blocking())
	if err != nil {
		return err
	}
	leftIDs, rightIDs := left.IDs(), right.IDs()
	fresh := candidates[:0]
	for _, c := range candidates {
		if _, ok := labeled[linkage.Pair{Left: leftIDs[c.left], Right: rightIDs[c.right]}]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	total := len(fresh)
	if len(fresh) > l.opts.SampleSize {
		rng := rand.New(rand.NewPCG(l.opts.Seed, uint64(len(fresh))))
		rng.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
		fresh = fresh[:l.opts.SampleSize]
		sort.Slice(fresh, func(a, b int) bool {
			if fresh[a].left != fresh[b].left {
				return fresh[a].left < fresh[b].left
			}
			return fresh[a].right < fresh[b].right
		})
	}

	l.pool = make([]pooled, 0, len(fresh))
	for _, c := range fresh {
		pair := linkage.Pair{Left: leftIDs[c.left], Right: rightIDs[c.right]}
		l.pool = append(l.pool, pooled{pair: pair, features: l.pairFeatures(pair)})
	}

	l.logger.Info("candidate pairs prepared",
		logging.Int("blocked_pairs", len(candidates)),
		logging.Int("unlabeled_pairs", total),
		logging.Int("sampled_pairs", len(l.pool)),
		logging.Int("prior_examples", len(l.samples)),
		logging.String(logging.FieldEventType, "candidates_prepared"),
	)
	return nil
}

// NextPair pops the pooled pair whose match probability is closest to 0.5.
// Ties go to the earliest pair in (left row, right row) order.
func (l *Linker) NextPair() (linkage.Pair, bool) {
	if len(l.pool) == 0 || l.current == nil {
		return linkage.Pair{}, false
	}
	best, bestDist := 0, math.Inf(1)
	for i, p := range l.pool {
		dist := math.Abs(l.current.Probability(p.features) - 0.5)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	chosen := l.pool[best]
	l.pool = append(l.pool[:best], l.pool[best+1:]...)
	l.offered[chosen.pair] = chosen.features
	return chosen.pair, true
}

// RecordJudgment adds a match or distinct decision to the in-memory sample
// and refits the active-learning model. Other judgments are ignored.
func (l *Linker) RecordJudgment(pair linkage.Pair, judgment linkage.Judgment) error {
	label, ok := labelFor(judgment)
	if !ok {
		return nil
	}
	if l.current == nil {
		return errors.New("record judgment: linker not prepared")
	}
	features, ok := l.offered[pair]
	if !ok {
		if _, found := l.left.Record(pair.Left); !found {
			return fmt.Errorf("record judgment: unknown left record %s", pair.Left)
		}
		if _, found := l.right.Record(pair.Right); !found {
			return fmt.Errorf("record judgment: unknown right record %s", pair.Right)
		}
		features = l.pairFeatures(pair)
	}
	l.samples = append(l.samples, sample{features: features, label: label})
	l.current = fit(priorModel(l.fields, l.blocking()), l.samples)
	l.logger.Debug("judgment recorded",
		logging.Pair(pair),
		logging.String("judgment", string(judgment)),
		logging.Int("samples", len(l.samples)),
	)
	return nil
}

// Train fits a model on examples alone and remembers the pairs judged
// distinct. Zero examples yield the prior model.
func (l *Linker) Train(ctx context.Context, examples []linkage.LabeledExample) (linkage.TrainedModel, error) {
	if l.fields == nil {
		return nil, errors.New("train: linker not configured")
	}
	samples, err := l.samplesFrom(ctx, examples)
	if err != nil {
		return nil, err
	}
	model := fit(priorModel(l.fields, l.blocking()), samples)
	model.DistinctPairs = distinctKeys(l.fields, examples)
	attrs := []logging.Attr{
		logging.Int("examples", model.ExampleCount),
		logging.Int("distinct_pairs", len(model.DistinctPairs)),
		logging.Float64("bias", model.Bias),
		logging.String(logging.FieldEventType, "model_trained"),
	}
	for i, w := range model.Weights {
		attrs = append(attrs, logging.Float64(fmt.Sprintf("w%d", i), w))
	}
	l.logger.Info("model trained", logging.Args(attrs...)...)
	return model, nil
}

func (l *Linker) samplesFrom(ctx context.Context, examples []linkage.LabeledExample) ([]sample, error) {
	samples := make([]sample, 0, len(examples))
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label, ok := labelFor(ex.Judgment)
		if !ok {
			continue
		}
		samples = append(samples, sample{features: l.cmp.features(l.fields, ex.LeftRecord, ex.RightRecord), label: label})
	}
	return samples, nil
}

func (l *Linker) pairFeatures(pair linkage.Pair) []float64 {
	left, _ := l.left.Record(pair.Left)
	right, _ := l.right.Record(pair.Right)
	return l.cmp.features(l.fields, left, right)
}
