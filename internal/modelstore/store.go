package modelstore

import (
	"context"
	"fmt"
	"log/slog"

	"reclink/internal/config"
	"reclink/internal/failure"
	"reclink/internal/linkage"
	"reclink/internal/logging"
)

// Store persists training examples and the trained settings artifact.
type Store interface {
	// HasSettings reports whether a settings artifact exists. It does not
	// check that the artifact decodes.
	HasSettings(ctx context.Context) (bool, error)
	// LoadSettings decodes the settings artifact. Undecodable, empty, or
	// field-mismatched artifacts fail with failure.ErrCorruptSettings.
	LoadSettings(ctx context.Context) (linkage.TrainedModel, error)
	// LoadTrainingExamples returns the training set in label order. A missing
	// training set yields an empty slice.
	LoadTrainingExamples(ctx context.Context) ([]linkage.LabeledExample, error)
	// SaveTrainingExamples replaces the training set with examples.
	SaveTrainingExamples(ctx context.Context, examples []linkage.LabeledExample) error
	// SaveSettings replaces the settings artifact.
	SaveSettings(ctx context.Context, model linkage.TrainedModel) error
	// ClearTrainingExamples removes the training set.
	ClearTrainingExamples(ctx context.Context) error
	// Location describes where artifacts live, for operator messages.
	Location() string
	Close() error
}

// Options configures a store.
type Options struct {
	Codec linkage.ModelCodec
	// Fields are the configured field specs settings must match. Nil skips
	// the check.
	Fields []linkage.FieldSpec
	Logger *slog.Logger
}

// Open constructs the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config, opts Options) (Store, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("modelstore: codec is required")
	}
	switch cfg.Store.Backend {
	case "", "file":
		return NewFileStore(cfg.Paths.TrainingFile, cfg.Paths.SettingsFile, opts), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Paths.DatabaseFile, opts)
	default:
		return nil, failure.Wrap(failure.ErrConfiguration, "store", "open", fmt.Sprintf("unknown backend %q", cfg.Store.Backend), nil)
	}
}

// decodeSettings turns persisted bytes into a model, enforcing the configured
// field specs.
func decodeSettings(codec linkage.ModelCodec, fields []linkage.FieldSpec, location string, data []byte) (linkage.TrainedModel, error) {
	if len(data) == 0 {
		return nil, failure.Wrap(failure.ErrCorruptSettings, "store", "load settings", location+": artifact is empty", nil)
	}
	model, err := codec.DeserializeModel(data)
	if err != nil {
		return nil, failure.Wrap(failure.ErrCorruptSettings, "store", "load settings", location, err)
	}
	if fields != nil && !linkage.SameFields(model.Fields(), fields) {
		return nil, failure.Wrap(failure.ErrCorruptSettings, "store", "load settings",
			fmt.Sprintf("%s: trained with fields %s, configured %s", location, describeFields(model.Fields()), describeFields(fields)), nil)
	}
	return model, nil
}

func describeFields(fields []linkage.FieldSpec) string {
	out := "["
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f.Field + ":" + string(f.Type)
		if f.HasMissing {
			out += "?"
		}
	}
	return out + "]"
}

func storeLogger(logger *slog.Logger, backend string) *slog.Logger {
	return logging.NewComponentLogger(logger, "store").With(logging.String("backend", backend))
}
