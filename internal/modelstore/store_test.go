package modelstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reclink/internal/config"
	"reclink/internal/failure"
	"reclink/internal/linkage"
	"reclink/internal/modelstore"
	"reclink/internal/testsupport"
)

type stubModel struct {
	FieldSpecs []linkage.FieldSpec `json:"fields"`
	Count      int                 `json:"examples"`
}

func (m stubModel) Fields() []linkage.FieldSpec { return m.FieldSpecs }
func (m stubModel) Examples() int               { return m.Count }

type stubCodec struct{}

func (stubCodec) SerializeModel(model linkage.TrainedModel) ([]byte, error) {
	return json.Marshal(stubModel{FieldSpecs: model.Fields(), Count: model.Examples()})
}

func (stubCodec) DeserializeModel(data []byte) (linkage.TrainedModel, error) {
	var m stubModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

var nameFields = []linkage.FieldSpec{{Field: "NAME", Type: linkage.FieldName}}

func openStore(t *testing.T, cfg *config.Config) modelstore.Store {
	t.Helper()
	store, err := modelstore.Open(context.Background(), cfg, modelstore.Options{Codec: stubCodec{}, Fields: nameFields})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleExamples() []linkage.LabeledExample {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []linkage.LabeledExample{
		{
			Left: linkage.RecordID{Source: "left.csv", Row: 0}, Right: linkage.RecordID{Source: "right.csv", Row: 2},
			Judgment:    linkage.JudgmentMatch,
			LeftRecord:  linkage.NewRecord(map[string]linkage.Value{"NAME": linkage.Present("acme clinic"), "CITY": linkage.Absent()}),
			RightRecord: linkage.NewRecord(map[string]linkage.Value{"NAME": linkage.Present("acme clinic inc")}),
			LabeledAt:   at,
		},
		{
			Left: linkage.RecordID{Source: "left.csv", Row: 1}, Right: linkage.RecordID{Source: "right.csv", Row: 0},
			Judgment:    linkage.JudgmentDistinct,
			LeftRecord:  linkage.NewRecord(map[string]linkage.Value{"NAME": linkage.Present("beta labs")}),
			RightRecord: linkage.NewRecord(map[string]linkage.Value{"NAME": linkage.Present("gamma care")}),
			LabeledAt:   at.Add(time.Minute),
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, cfg *config.Config)) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			fn(t, testsupport.NewConfig(t, testsupport.WithStoreBackend(backend)))
		})
	}
}

func TestEmptyStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config) {
		store := openStore(t, cfg)
		ctx := context.Background()

		has, err := store.HasSettings(ctx)
		if err != nil || has {
			t.Fatalf("HasSettings = %v, %v", has, err)
		}
		examples, err := store.LoadTrainingExamples(ctx)
		if err != nil {
			t.Fatalf("LoadTrainingExamples: %v", err)
		}
		if examples == nil || len(examples) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", examples)
		}
	})
}

func TestTrainingRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config) {
		store := openStore(t, cfg)
		ctx := context.Background()
		want := sampleExamples()

		if err := store.SaveTrainingExamples(ctx, want); err != nil {
			t.Fatalf("SaveTrainingExamples: %v", err)
		}
		got, err := store.LoadTrainingExamples(ctx)
		if err != nil {
			t.Fatalf("LoadTrainingExamples: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %d examples", len(got))
		}
		for i := range want {
			if got[i].Left != want[i].Left || got[i].Right != want[i].Right || got[i].Judgment != want[i].Judgment {
				t.Fatalf("example %d mismatch: %#v", i, got[i])
			}
			if !got[i].LabeledAt.Equal(want[i].LabeledAt) {
				t.Fatalf("example %d labeled_at %v", i, got[i].LabeledAt)
			}
		}
		if v, ok := got[0].LeftRecord.Get("NAME"); !ok || v != "acme clinic" {
			t.Fatalf("left snapshot NAME = %q", v)
		}
		if _, ok := got[0].LeftRecord.Get("CITY"); ok {
			t.Fatal("absent CITY came back present")
		}

		if err := store.SaveTrainingExamples(ctx, want[:1]); err != nil {
			t.Fatalf("second save: %v", err)
		}
		got, _ = store.LoadTrainingExamples(ctx)
		if len(got) != 1 {
			t.Fatalf("save should replace the training set, got %d", len(got))
		}

		if err := store.ClearTrainingExamples(ctx); err != nil {
			t.Fatalf("ClearTrainingExamples: %v", err)
		}
		got, _ = store.LoadTrainingExamples(ctx)
		if len(got) != 0 {
			t.Fatalf("clear left %d examples", len(got))
		}
	})
}

func TestSaveRejectsUnrecordableJudgment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config) {
		store := openStore(t, cfg)
		bad := sampleExamples()
		bad[1].Judgment = linkage.JudgmentSkip
		if err := store.SaveTrainingExamples(context.Background(), bad); err == nil {
			t.Fatal("expected skip judgment to be rejected")
		}
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config) {
		store := openStore(t, cfg)
		ctx := context.Background()

		if err := store.SaveSettings(ctx, stubModel{FieldSpecs: nameFields, Count: 7}); err != nil {
			t.Fatalf("SaveSettings: %v", err)
		}
		has, err := store.HasSettings(ctx)
		if err != nil || !has {
			t.Fatalf("HasSettings = %v, %v", has, err)
		}
		model, err := store.LoadSettings(ctx)
		if err != nil {
			t.Fatalf("LoadSettings: %v", err)
		}
		if model.Examples() != 7 || !linkage.SameFields(model.Fields(), nameFields) {
			t.Fatalf("unexpected model %#v", model)
		}
	})
}

func TestSettingsFieldMismatchIsCorrupt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, cfg *config.Config) {
		store := openStore(t, cfg)
		ctx := context.Background()
		other := []linkage.FieldSpec{{Field: "CITY", Type: linkage.FieldShortString}}
		if err := store.SaveSettings(ctx, stubModel{FieldSpecs: other}); err != nil {
			t.Fatalf("SaveSettings: %v", err)
		}
		_, err := store.LoadSettings(ctx)
		if !errors.Is(err, failure.ErrCorruptSettings) {
			t.Fatalf("expected corrupt settings, got %v", err)
		}
		if !strings.Contains(err.Error(), "CITY") {
			t.Fatalf("expected field names in message: %v", err)
		}
	})
}

func TestFileSettingsCorruption(t *testing.T) {
	cases := map[string][]byte{
		"empty":   {},
		"garbage": []byte("not a model"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.SettingsFile), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(cfg.Paths.SettingsFile, content, 0o644); err != nil {
				t.Fatal(err)
			}
			store := openStore(t, cfg)
			has, err := store.HasSettings(context.Background())
			if err != nil || !has {
				t.Fatalf("HasSettings = %v, %v", has, err)
			}
			if _, err := store.LoadSettings(context.Background()); !errors.Is(err, failure.ErrCorruptSettings) {
				t.Fatalf("expected corrupt settings, got %v", err)
			}
			if _, err := os.Stat(cfg.Paths.SettingsFile); err != nil {
				t.Fatalf("corrupt settings must not be deleted: %v", err)
			}
		})
	}
}

func TestFileTrainingDocumentFormat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)
	if err := store.SaveTrainingExamples(context.Background(), sampleExamples()); err != nil {
		t.Fatalf("SaveTrainingExamples: %v", err)
	}
	data, err := os.ReadFile(cfg.Paths.TrainingFile)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("training file not JSON: %v", err)
	}
	if doc["version"] != float64(1) {
		t.Fatalf("version = %v", doc["version"])
	}
	if !strings.Contains(string(data), `"CITY": null`) {
		t.Fatalf("absent values should serialize as null: %s", data)
	}
	if !strings.Contains(string(data), `"left": "left.csv#0"`) {
		t.Fatalf("record ids should serialize as source#row: %s", data)
	}
}

func TestFileTrainingUnsupportedVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.TrainingFile), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Paths.TrainingFile, []byte(`{"version":9,"examples":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := openStore(t, cfg)
	if _, err := store.LoadTrainingExamples(context.Background()); !errors.Is(err, failure.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreBackend("sqlite"))
	ctx := context.Background()

	first, err := modelstore.Open(ctx, cfg, modelstore.Options{Codec: stubCodec{}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.SaveTrainingExamples(ctx, sampleExamples()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := openStore(t, cfg)
	examples, err := second.LoadTrainingExamples(ctx)
	if err != nil || len(examples) != 2 {
		t.Fatalf("reopen: %d examples, %v", len(examples), err)
	}
}

func TestOpenRequiresCodec(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := modelstore.Open(context.Background(), cfg, modelstore.Options{}); err == nil {
		t.Fatal("expected error without codec")
	}
}
