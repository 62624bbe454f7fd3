package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"reclink/internal/failure"
	"reclink/internal/linkage"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths locates the inputs, outputs, and persisted artifacts.
type Paths struct {
	WorkDir      string `toml:"work_dir"`
	LogDir       string `toml:"log_dir"`
	LeftFile     string `toml:"left_file"`
	RightFile    string `toml:"right_file"`
	OutputFile   string `toml:"output_file"`
	TrainingFile string `toml:"training_file"`
	SettingsFile string `toml:"settings_file"`
	DatabaseFile string `toml:"database_file"`
}

// Input controls how source files are decoded.
type Input struct {
	Encoding string `toml:"encoding"`
}

// Output controls the merged table format.
type Output struct {
	Format string `toml:"format"`
}

// Store selects the training and settings persistence backend.
type Store struct {
	Backend string `toml:"backend"`
}

// Linkage tunes the bundled linker.
type Linkage struct {
	// Threshold is the minimum link score for a pair to be clustered. Lower
	// values favor recall.
	Threshold float64 `toml:"threshold"`
	// SampleSize caps the candidate pairs offered for active learning.
	SampleSize int `toml:"sample_size"`
	// MaxBlockSize drops blocking keys shared by more records than this.
	MaxBlockSize int `toml:"max_block_size"`
	// MinTokenLength ignores shorter tokens when building blocking keys.
	MinTokenLength int `toml:"min_token_length"`
}

// Labeling controls the interactive session.
type Labeling struct {
	// AutosaveEvery checkpoints the training set after this many recorded
	// labels. Zero disables checkpoints.
	AutosaveEvery int `toml:"autosave_every"`
}

// Field is one [[fields]] entry.
type Field struct {
	Field      string `toml:"field"`
	Type       string `toml:"type"`
	HasMissing bool   `toml:"has_missing"`
}

// Condense controls the condense post-processing command.
type Condense struct {
	DropColumns []string `toml:"drop_columns"`
	// MergeColumns limits value merging to these columns. Empty merges every
	// remaining column.
	MergeColumns []string `toml:"merge_columns"`
}

// Logging controls log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reclink.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Input    Input    `toml:"input"`
	Output   Output   `toml:"output"`
	Store    Store    `toml:"store"`
	Linkage  Linkage  `toml:"linkage"`
	Labeling Labeling `toml:"labeling"`
	Fields   []Field  `toml:"fields"`
	Condense Condense `toml:"condense"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reclink/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file. The
// returned path is where the file was found, or where it would be created.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolvedPath, exists, err := Decode(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

// Decode locates, parses, and normalizes a configuration file without
// validating it. config validate uses it to report every problem.
func Decode(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, failure.Wrap(failure.ErrConfiguration, "config", "parse", strict.String(), nil)
			}
			return nil, "", false, failure.Wrap(failure.ErrConfiguration, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reclink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// FieldSpecs converts the [[fields]] entries into linkage field specs. Call it
// on a validated config; entries with unknown types are skipped.
func (c *Config) FieldSpecs() []linkage.FieldSpec {
	specs := make([]linkage.FieldSpec, 0, len(c.Fields))
	for _, f := range c.Fields {
		typ, err := linkage.ParseFieldType(f.Type)
		if err != nil {
			continue
		}
		specs = append(specs, linkage.FieldSpec{Field: f.Field, Type: typ, HasMissing: f.HasMissing})
	}
	return specs
}

// LockPath is the workspace lock guarding the training and settings files.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "reclink.lock")
}

// LogFile returns the run log path, or "" when file logging is disabled.
func (c *Config) LogFile() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "reclink.log")
}

// EnsureDirectories creates the work, log, and artifact parent directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.WorkDir, c.Paths.LogDir}
	for _, file := range []string{c.Paths.OutputFile, c.Paths.TrainingFile, c.Paths.SettingsFile, c.Paths.DatabaseFile} {
		if strings.TrimSpace(file) != "" {
			dirs = append(dirs, filepath.Dir(file))
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// resolveAgainst expands ~ and joins relative paths onto base.
func resolveAgainst(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" || strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) {
		return expandPath(pathValue)
	}
	return filepath.Join(base, filepath.Clean(pathValue)), nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
