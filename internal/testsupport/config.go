package testsupport

import (
	"path/filepath"
	"testing"

	"reclink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a validated config whose paths all live in a fresh temp
// directory. It declares a single NAME field unless WithFields overrides it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		WorkDir:      base,
		LogDir:       "",
		LeftFile:     filepath.Join(base, "input", "left.csv"),
		RightFile:    filepath.Join(base, "input", "right.csv"),
		OutputFile:   filepath.Join(base, "output", "merged.csv"),
		TrainingFile: filepath.Join(base, "training", "training.json"),
		SettingsFile: filepath.Join(base, "training", "settings"),
		DatabaseFile: filepath.Join(base, "training", "reclink.db"),
	}
	cfgVal.Fields = []config.Field{{Field: "NAME", Type: "name"}}
	cfgVal.Labeling.AutosaveEvery = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithFields replaces the [[fields]] entries.
func WithFields(fields ...config.Field) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fields = append([]config.Field(nil), fields...)
	}
}

// WithThreshold sets linkage.threshold.
func WithThreshold(threshold float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Linkage.Threshold = threshold
	}
}

// WithStoreBackend selects the model store backend.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithOutputFormat selects csv or xlsx output and adjusts the file extension.
func WithOutputFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Format = format
		b.cfg.Paths.OutputFile = filepath.Join(b.baseDir, "output", "merged."+format)
	}
}

// WithAutosaveEvery sets labeling.autosave_every.
func WithAutosaveEvery(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Labeling.AutosaveEvery = n
	}
}

// WithLogDir enables file logging under the temp directory.
func WithLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = filepath.Join(b.baseDir, "logs")
	}
}
