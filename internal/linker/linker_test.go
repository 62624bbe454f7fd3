package linker_test

import (
	"context"
	"errors"
	"testing"

	"reclink/internal/linkage"
	"reclink/internal/linker"
	"reclink/internal/normalize"
)

var fields = []linkage.FieldSpec{
	{Field: "NAME", Type: linkage.FieldName},
	{Field: "ZIP", Type: linkage.FieldShortString, HasMissing: true},
}

func buildDataset(source string, rows ...[2]string) *linkage.Dataset {
	ds := linkage.NewDataset(source, []string{"NAME", "ZIP"})
	for _, row := range rows {
		values := map[string]linkage.Value{}
		for i, col := range []string{"NAME", "ZIP"} {
			if v, ok := normalize.Field(row[i]); ok {
				values[col] = linkage.Present(v)
			} else {
				values[col] = linkage.Absent()
			}
		}
		ds.Append(linkage.NewRecord(values), row[:])
	}
	return ds
}

func fixture() (*linkage.Dataset, *linkage.Dataset) {
	left := buildDataset("left.csv",
		[2]string{"Acme Family Clinic", "02139"},
		[2]string{"Beta Dental Labs", "10001"},
		[2]string{"Gamma Vision Care", "94105"},
	)
	right := buildDataset("right.csv",
		[2]string{"Beta Dental Lab", "10001"},
		[2]string{"Acme Family Clinic Inc", "02139"},
		[2]string{"Omega Pet Hospital", "60601"},
	)
	return left, right
}

func newLinker(t *testing.T, opts linker.Options) *linker.Linker {
	t.Helper()
	l := linker.New(opts)
	if err := l.Configure(fields); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return l
}

func TestClusterWithPriorModelLinksObviousPairs(t *testing.T) {
	left, right := fixture()
	l := newLinker(t, linker.Options{})
	model, err := l.Train(context.Background(), nil)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if model.Examples() != 0 {
		t.Fatalf("prior model examples = %d", model.Examples())
	}

	result, err := l.Cluster(context.Background(), model, left, right, 0.5)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 clusters, got %#v", result)
	}
	got := map[int]int{}
	for _, c := range result {
		if len(c.Members) != 2 {
			t.Fatalf("cluster size %d", len(c.Members))
		}
		if c.Score < 0.5 || c.Score > 1 {
			t.Fatalf("score %v out of range", c.Score)
		}
		got[c.Members[0].Row] = c.Members[1].Row
	}
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("unexpected pairing %v", got)
	}
	if result[0].Score < result[1].Score {
		t.Fatalf("clusters not in descending score order: %v", result)
	}
}

func TestClusterIsOneToOneAndDeterministic(t *testing.T) {
	left := buildDataset("left.csv", [2]string{"Acme Clinic", "02139"}, [2]string{"Acme Clinic", "02139"})
	right := buildDataset("right.csv", [2]string{"Acme Clinic", "02139"})
	l := newLinker(t, linker.Options{})
	model, _ := l.Train(context.Background(), nil)

	first, err := l.Cluster(context.Background(), model, left, right, 0)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(first) != 1 || first[0].Members[0].Row != 0 {
		t.Fatalf("expected tie broken toward left row 0, got %#v", first)
	}
	second, _ := l.Cluster(context.Background(), model, left, right, 0)
	if len(second) != 1 || second[0].Score != first[0].Score || second[0].Members[0] != first[0].Members[0] {
		t.Fatalf("clustering not deterministic: %#v vs %#v", first, second)
	}
}

func TestBlockingSkipsUnsharedTokens(t *testing.T) {
	left := buildDataset("left.csv", [2]string{"Acme Clinic", ""})
	right := buildDataset("right.csv", [2]string{"Zeta House", ""})
	l := newLinker(t, linker.Options{})
	model, _ := l.Train(context.Background(), nil)
	result, err := l.Cluster(context.Background(), model, left, right, 0)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("records without shared tokens must not link: %#v", result)
	}
}

func TestBlockingDropsOversizedKeys(t *testing.T) {
	left := buildDataset("left.csv", [2]string{"clinic one", ""}, [2]string{"clinic two", ""}, [2]string{"clinic three", ""})
	right := buildDataset("right.csv", [2]string{"clinic four", ""})
	l := newLinker(t, linker.Options{MaxBlockSize: 2})
	model, _ := l.Train(context.Background(), nil)
	result, err := l.Cluster(context.Background(), model, left, right, 0)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("the shared token exceeds max_block_size and should be ignored: %#v", result)
	}
}

func TestNextPairNeverRepeatsAndExcludesLabeled(t *testing.T) {
	left, right := fixture()
	l := newLinker(t, linker.Options{})
	lrec, _ := left.Record(left.IDs()[0])
	rrec, _ := right.Record(right.IDs()[1])
	prior := []linkage.LabeledExample{{
		Left: left.IDs()[0], Right: right.IDs()[1], Judgment: linkage.JudgmentMatch,
		LeftRecord: lrec, RightRecord: rrec,
	}}
	if err := l.Prepare(context.Background(), left, right, prior); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	seen := map[linkage.Pair]bool{}
	for {
		pair, ok := l.NextPair()
		if !ok {
			break
		}
		if seen[pair] {
			t.Fatalf("pair offered twice: %v", pair)
		}
		if pair == prior[0].Pair() {
			t.Fatalf("labeled pair offered again")
		}
		seen[pair] = true
		if err := l.RecordJudgment(pair, linkage.JudgmentDistinct); err != nil {
			t.Fatalf("RecordJudgment: %v", err)
		}
	}
	if len(seen) == 0 {
		t.Fatal("expected at least one candidate pair")
	}
}

func TestNextPairSequenceIsDeterministic(t *testing.T) {
	left, right := fixture()
	sequence := func() []linkage.Pair {
		l := newLinker(t, linker.Options{SampleSize: 3})
		if err := l.Prepare(context.Background(), left, right, nil); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		var out []linkage.Pair
		for pair, ok := l.NextPair(); ok; pair, ok = l.NextPair() {
			out = append(out, pair)
		}
		return out
	}
	a, b := sequence(), sequence()
	if len(a) == 0 || len(a) > 3 {
		t.Fatalf("sample size not honored: %d pairs", len(a))
	}
	if len(a) != len(b) {
		t.Fatalf("sequence lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sequence differs at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTrainingShiftsScores(t *testing.T) {
	left, right := fixture()
	l := newLinker(t, linker.Options{})
	labeled := func(judgment linkage.Judgment) []linkage.LabeledExample {
		var out []linkage.LabeledExample
		for _, rows := range [][2]int{{0, 1}, {1, 0}} {
			lrec, _ := left.Record(left.IDs()[rows[0]])
			rrec, _ := right.Record(right.IDs()[rows[1]])
			out = append(out, linkage.LabeledExample{
				Left: left.IDs()[rows[0]], Right: right.IDs()[rows[1]], Judgment: judgment,
				LeftRecord: lrec, RightRecord: rrec,
			})
		}
		return out
	}
	scores := func(model linkage.TrainedModel) map[int]float64 {
		result, err := l.Cluster(context.Background(), model, left, right, 0)
		if err != nil {
			t.Fatalf("Cluster: %v", err)
		}
		out := map[int]float64{}
		for _, c := range result {
			out[c.Members[0].Row] = c.Score
		}
		return out
	}

	prior, _ := l.Train(context.Background(), nil)
	matched, err := l.Train(context.Background(), labeled(linkage.JudgmentMatch))
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	distinct, _ := l.Train(context.Background(), labeled(linkage.JudgmentDistinct))
	if matched.Examples() != 2 {
		t.Fatalf("examples = %d", matched.Examples())
	}
	if got := scores(distinct); len(got) != 0 {
		t.Fatalf("pairs judged distinct must not link: %v", got)
	}
	// Score the learned weights alone.
	distinct.(*linker.Model).DistinctPairs = nil

	base, up, down := scores(prior), scores(matched), scores(distinct)
	for row, score := range base {
		if up[row] <= score {
			t.Fatalf("row %d: match labels should raise score (%v -> %v)", row, score, up[row])
		}
		if down[row] >= score {
			t.Fatalf("row %d: distinct labels should lower score (%v -> %v)", row, score, down[row])
		}
	}
}

func TestClusterNeverLinksPairsJudgedDistinct(t *testing.T) {
	left := buildDataset("left.csv",
		[2]string{"Acme Family Clinic", "02139"},
		[2]string{"Gamma Vision Care", "94105"},
	)
	right := buildDataset("right.csv",
		[2]string{"Acme Family Clinic Inc", "02139"},
		[2]string{"Gamma Pet Hospital", "60601"},
	)
	example := func(l, r int, judgment linkage.Judgment) linkage.LabeledExample {
		lrec, _ := left.Record(left.IDs()[l])
		rrec, _ := right.Record(right.IDs()[r])
		return linkage.LabeledExample{
			Left: left.IDs()[l], Right: right.IDs()[r], Judgment: judgment,
			LeftRecord: lrec, RightRecord: rrec,
		}
	}
	examples := []linkage.LabeledExample{
		example(0, 0, linkage.JudgmentMatch),
		example(1, 1, linkage.JudgmentDistinct),
		example(1, 1, linkage.JudgmentDistinct),
	}
	l := newLinker(t, linker.Options{})
	model, err := l.Train(context.Background(), examples)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if got := model.(*linker.Model).DistinctPairs; len(got) != 1 {
		t.Fatalf("expected one deduplicated distinct key, got %v", got)
	}

	data, err := l.SerializeModel(model)
	if err != nil {
		t.Fatalf("SerializeModel: %v", err)
	}
	decoded, err := linker.New(linker.Options{}).DeserializeModel(data)
	if err != nil {
		t.Fatalf("DeserializeModel: %v", err)
	}
	for name, m := range map[string]linkage.TrainedModel{"trained": model, "decoded": decoded} {
		result, err := l.Cluster(context.Background(), m, left, right, 0)
		if err != nil {
			t.Fatalf("%s: Cluster: %v", name, err)
		}
		if len(result) != 1 || result[0].Members[0].Row != 0 || result[0].Members[1].Row != 0 {
			t.Fatalf("%s: expected only the acme pair, got %#v", name, result)
		}
	}

	// The same content under other row ids is still known to be distinct.
	shifted := buildDataset("left.csv",
		[2]string{"Zeta House", "00000"},
		[2]string{"Gamma Vision Care", "94105"},
	)
	swapped := buildDataset("right.csv",
		[2]string{"Gamma Pet Hospital", "60601"},
	)
	result, err := l.Cluster(context.Background(), decoded, shifted, swapped, 0)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("distinct content linked under new row ids: %#v", result)
	}
}

func TestClusterThresholdIsExclusive(t *testing.T) {
	left := buildDataset("left.csv", [2]string{"Acme Clinic", "02139"})
	right := buildDataset("right.csv", [2]string{"Acme Clinic", "02139"})
	l := newLinker(t, linker.Options{})
	model, _ := l.Train(context.Background(), nil)
	result, err := l.Cluster(context.Background(), model, left, right, 0)
	if err != nil || len(result) != 1 {
		t.Fatalf("Cluster: %#v, %v", result, err)
	}
	at, err := l.Cluster(context.Background(), model, left, right, result[0].Score)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(at) != 0 {
		t.Fatalf("a pair scoring exactly the threshold must not link: %#v", at)
	}
}

func TestModelCodecRoundTrip(t *testing.T) {
	left, right := fixture()
	l := newLinker(t, linker.Options{})
	model, _ := l.Train(context.Background(), nil)

	data, err := l.SerializeModel(model)
	if err != nil {
		t.Fatalf("SerializeModel: %v", err)
	}
	decoded, err := linker.New(linker.Options{}).DeserializeModel(data)
	if err != nil {
		t.Fatalf("DeserializeModel: %v", err)
	}
	if !linkage.SameFields(decoded.Fields(), fields) {
		t.Fatalf("fields = %#v", decoded.Fields())
	}
	a, _ := l.Cluster(context.Background(), model, left, right, 0)
	b, _ := l.Cluster(context.Background(), decoded, left, right, 0)
	if len(a) != len(b) {
		t.Fatalf("decoded model clusters differently")
	}
	for i := range a {
		if a[i].Score != b[i].Score {
			t.Fatalf("score drift after round trip: %v vs %v", a[i].Score, b[i].Score)
		}
	}
}

func TestDeserializeRejectsBadInput(t *testing.T) {
	l := linker.New(linker.Options{})
	for name, data := range map[string]string{
		"garbage":      "not json",
		"wrong kind":   `{"kind":"other","version":1,"fields":[{"field":"NAME","type":"name"}],"weights":[1],"blocking":{"min_token_length":2,"max_block_size":10}}`,
		"weight count": `{"kind":"reclink/logistic","version":1,"fields":[{"field":"NAME","type":"name"}],"weights":[1,2],"blocking":{"min_token_length":2,"max_block_size":10}}`,
		"unknown type": `{"kind":"reclink/logistic","version":1,"fields":[{"field":"NAME","type":"fuzzy"}],"weights":[1],"blocking":{"min_token_length":2,"max_block_size":10}}`,
		"no blocking":  `{"kind":"reclink/logistic","version":1,"fields":[{"field":"NAME","type":"name"}],"weights":[1]}`,
		"distinct key": `{"kind":"reclink/logistic","version":1,"fields":[{"field":"NAME","type":"name"}],"weights":[1],"blocking":{"min_token_length":2,"max_block_size":10},"examples":1,"distinct_pairs":["abc"]}`,
		"empty":        ``,
	} {
		if _, err := l.DeserializeModel([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUnconfiguredLinker(t *testing.T) {
	l := linker.New(linker.Options{})
	if _, err := l.Train(context.Background(), nil); err == nil {
		t.Fatal("expected error before Configure")
	}
	if err := l.Configure(nil); err == nil {
		t.Fatal("expected error for empty fields")
	}
	if _, ok := l.NextPair(); ok {
		t.Fatal("unprepared linker offered a pair")
	}
}

func TestPrepareHonorsCancellation(t *testing.T) {
	left, right := fixture()
	l := newLinker(t, linker.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lrec, _ := left.Record(left.IDs()[0])
	err := l.Prepare(ctx, left, right, []linkage.LabeledExample{{Judgment: linkage.JudgmentMatch, LeftRecord: lrec, RightRecord: lrec}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
