package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"

	"reclink/internal/config"
	"reclink/internal/failure"
	"reclink/internal/labeler"
	"reclink/internal/linkage"
	"reclink/internal/linker"
	"reclink/internal/logging"
	"reclink/internal/modelstore"
	"reclink/internal/pipeline"
	"reclink/internal/testsupport"
)

func writeInputs(t *testing.T, cfg *config.Config) {
	t.Helper()
	testsupport.WriteCSVFile(t, cfg.Paths.LeftFile, [][]string{
		{"NAME", "ZIP"},
		{"Acme Family Clinic", "02139"},
		{"Beta Dental Labs", "10001"},
		{"Gamma Vision Care", "94105"},
	})
	testsupport.WriteCSVFile(t, cfg.Paths.RightFile, [][]string{
		{"NAME", "ZIP"},
		{"Beta Dental Lab", "10001"},
		{"Acme Family Clinic Inc", "02139"},
		{"Gamma Pet Hospital", "60601"},
	})
}

// sameEntity lists the true right-hand match for each normalized left name.
var sameEntity = map[string]string{
	"acme family clinic": "acme family clinic inc",
	"beta dental labs":   "beta dental lab",
}

type harness struct {
	runner *pipeline.Runner
	store  modelstore.Store
}

func newHarness(t *testing.T, cfg *config.Config, judge labeler.Judge) harness {
	t.Helper()
	l := linker.New(linker.Options{
		SampleSize:     cfg.Linkage.SampleSize,
		MaxBlockSize:   cfg.Linkage.MaxBlockSize,
		MinTokenLength: cfg.Linkage.MinTokenLength,
	})
	store, err := modelstore.Open(context.Background(), cfg, modelstore.Options{
		Codec:  l,
		Fields: cfg.FieldSpecs(),
		Logger: logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	runner, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Linker: l,
		Store:  store,
		Judge:  judge,
		Logger: logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return harness{runner: runner, store: store}
}

// judgeByName answers from sameEntity and counts every answer it gives.
func judgeByName(answers map[linkage.Judgment]int) labeler.Judge {
	return labeler.JudgeFunc(func(_ context.Context, p labeler.Prompt) (linkage.Judgment, error) {
		left, _ := p.Left.Get("NAME")
		right, _ := p.Right.Get("NAME")
		judgment := linkage.JudgmentDistinct
		if sameEntity[left] == right {
			judgment = linkage.JudgmentMatch
		}
		if answers != nil {
			answers[judgment]++
		}
		return judgment, nil
	})
}

func refuseJudging(t *testing.T) labeler.Judge {
	return labeler.JudgeFunc(func(context.Context, labeler.Prompt) (linkage.Judgment, error) {
		t.Errorf("judge consulted on a run with trained settings")
		return linkage.JudgmentFinish, nil
	})
}

func TestLinkThreeByThree(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithThreshold(0))
	writeInputs(t, cfg)

	answers := map[linkage.Judgment]int{}
	h := newHarness(t, cfg, judgeByName(answers))
	summary, err := h.runner.Link(context.Background())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if answers[linkage.JudgmentMatch] != 2 || answers[linkage.JudgmentDistinct] != 1 {
		t.Fatalf("expected the gamma pair to be judged distinct, answers %v", answers)
	}
	if summary.Clusters != 2 || summary.OutputRows != 6 || summary.ClusteredRows != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.Trained || summary.ReusedSettings || summary.ModelExamples != 3 {
		t.Fatalf("first run must train on every answer: %+v", summary)
	}

	rows := testsupport.ReadCSV(t, cfg.Paths.OutputFile)
	if len(rows) != 7 {
		t.Fatalf("output rows = %d", len(rows))
	}
	if got := rows[0]; got[0] != "Cluster ID" || got[1] != "Link Score" || got[2] != "source file" || got[3] != "NAME" {
		t.Fatalf("header = %v", got)
	}
	byName := map[string][]string{}
	clusterIDs := map[string]int{}
	for _, row := range rows[1:] {
		byName[row[3]] = row
		if row[0] != "" {
			clusterIDs[row[0]]++
		}
	}
	if len(clusterIDs) != 2 || clusterIDs["0"] != 2 || clusterIDs["1"] != 2 {
		t.Fatalf("expected clusters 0 and 1 with two rows each, got %v", clusterIDs)
	}
	if byName["Acme Family Clinic"][0] != byName["Acme Family Clinic Inc"][0] {
		t.Fatal("acme records must share a cluster")
	}
	if byName["Beta Dental Labs"][0] != byName["Beta Dental Lab"][0] {
		t.Fatal("beta records must share a cluster")
	}
	for _, name := range []string{"Gamma Vision Care", "Gamma Pet Hospital"} {
		if row := byName[name]; row[0] != "" || row[1] != "" {
			t.Fatalf("%s must be unclustered, got %v", name, row)
		}
	}
	if byName["Gamma Pet Hospital"][2] != "1" || byName["Gamma Vision Care"][2] != "0" {
		t.Fatal("source file column mislabeled")
	}
}

func TestSecondRunReusesSettings(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithThreshold(0.2), testsupport.WithStoreBackend(backend))
			writeInputs(t, cfg)

			first, err := newHarness(t, cfg, judgeByName(nil)).runner.Link(context.Background())
			if err != nil {
				t.Fatalf("first Link: %v", err)
			}
			if first.NewLabels == 0 {
				t.Fatal("expected labels on the first run")
			}
			firstOutput, err := os.ReadFile(cfg.Paths.OutputFile)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}

			second, err := newHarness(t, cfg, refuseJudging(t)).runner.Link(context.Background())
			if err != nil {
				t.Fatalf("second Link: %v", err)
			}
			if !second.ReusedSettings || second.Trained {
				t.Fatalf("second run must reuse settings: %+v", second)
			}
			if second.ModelExamples != first.ModelExamples {
				t.Fatalf("model examples %d != %d", second.ModelExamples, first.ModelExamples)
			}
			secondOutput, err := os.ReadFile(cfg.Paths.OutputFile)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			if !bytes.Equal(firstOutput, secondOutput) {
				t.Fatalf("outputs differ:\n%s\n---\n%s", firstOutput, secondOutput)
			}
		})
	}
}

func TestFinishImmediatelyStillClusters(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithThreshold(0))
	writeInputs(t, cfg)
	h := newHarness(t, cfg, labeler.NewScriptedJudge(linkage.JudgmentFinish))

	summary, err := h.runner.Link(context.Background())
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if summary.ModelExamples != 0 || summary.Termination != labeler.ReasonFinished {
		t.Fatalf("unexpected summary %+v", summary)
	}
	// Without a distinct judgment the gamma pair links too.
	if summary.Clusters != 3 {
		t.Fatalf("zero-example model produced %d clusters", summary.Clusters)
	}
	has, err := h.store.HasSettings(context.Background())
	if err != nil || !has {
		t.Fatalf("zero-example model not persisted: has=%v err=%v", has, err)
	}
	model, err := h.store.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if model.Examples() != 0 {
		t.Fatalf("model examples = %d", model.Examples())
	}
}

func TestJudgeFailurePersistsPartialLabels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)
	calls := 0
	judge := labeler.JudgeFunc(func(context.Context, labeler.Prompt) (linkage.Judgment, error) {
		calls++
		if calls > 1 {
			return "", errors.New("stdin closed")
		}
		return linkage.JudgmentMatch, nil
	})
	h := newHarness(t, cfg, judge)

	_, err := h.runner.Link(context.Background())
	if !errors.Is(err, failure.ErrJudgeUnavailable) {
		t.Fatalf("expected judge unavailable, got %v", err)
	}
	examples, err := h.store.LoadTrainingExamples(context.Background())
	if err != nil {
		t.Fatalf("LoadTrainingExamples: %v", err)
	}
	if len(examples) != 1 || examples[0].Judgment != linkage.JudgmentMatch {
		t.Fatalf("partial labels not persisted: %+v", examples)
	}
	if has, _ := h.store.HasSettings(context.Background()); has {
		t.Fatal("settings must not be written after judge failure")
	}
	if _, err := os.Stat(cfg.Paths.OutputFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output must not be written, stat err=%v", err)
	}
}

func TestCanceledLabelingPersistsPartialLabels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	judge := labeler.JudgeFunc(func(ctx context.Context, p labeler.Prompt) (linkage.Judgment, error) {
		if p.Labeled == 0 {
			return linkage.JudgmentDistinct, nil
		}
		cancel()
		return "", ctx.Err()
	})
	h := newHarness(t, cfg, judge)

	_, err := h.runner.Link(ctx)
	if !errors.Is(err, failure.ErrJudgeUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled judge error, got %v", err)
	}
	examples, err := h.store.LoadTrainingExamples(context.Background())
	if err != nil || len(examples) != 1 {
		t.Fatalf("expected one saved label, got %d (%v)", len(examples), err)
	}
}

func TestWorkspaceLockRejectsConcurrentRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)

	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	_, err = newHarness(t, cfg, judgeByName(nil)).runner.Link(context.Background())
	if !errors.Is(err, pipeline.ErrWorkspaceLocked) {
		t.Fatalf("expected workspace locked, got %v", err)
	}
}

func TestFieldSpecMismatchWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFields(config.Field{Field: "FULL_NAME", Type: "name"}))
	writeInputs(t, cfg)

	_, err := newHarness(t, cfg, judgeByName(nil)).runner.Link(context.Background())
	if !errors.Is(err, failure.ErrFieldSpecMismatch) {
		t.Fatalf("expected field spec mismatch, got %v", err)
	}
	if _, err := os.Stat(cfg.Paths.OutputFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output must not be written, stat err=%v", err)
	}
}

func TestXLSXOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithThreshold(0), testsupport.WithOutputFormat("xlsx"))
	writeInputs(t, cfg)

	if _, err := newHarness(t, cfg, labeler.NewScriptedJudge()).runner.Link(context.Background()); err != nil {
		t.Fatalf("Link: %v", err)
	}
	f, err := excelize.OpenFile(cfg.Paths.OutputFile)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 7 || rows[0][0] != "Cluster ID" {
		t.Fatalf("unexpected workbook rows %v", rows)
	}
}

func TestLabelRefusesExistingSettingsWithoutRetrain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeInputs(t, cfg)

	first, err := newHarness(t, cfg, labeler.NewScriptedJudge(linkage.JudgmentMatch)).runner.Label(context.Background(), false)
	if err != nil {
		t.Fatalf("first Label: %v", err)
	}
	if !first.Trained || first.ModelExamples != 1 {
		t.Fatalf("unexpected summary %+v", first)
	}

	_, err = newHarness(t, cfg, refuseJudging(t)).runner.Label(context.Background(), false)
	if !errors.Is(err, failure.ErrConfiguration) {
		t.Fatalf("expected refusal, got %v", err)
	}

	retrained, err := newHarness(t, cfg, labeler.NewScriptedJudge(linkage.JudgmentDistinct)).runner.Label(context.Background(), true)
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	if retrained.PriorLabels != 1 || retrained.ModelExamples != 2 {
		t.Fatalf("retrain must build on the accumulated training set: %+v", retrained)
	}
	if _, err := os.Stat(cfg.Paths.OutputFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("label must not write output")
	}
}
