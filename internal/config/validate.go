package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"reclink/internal/failure"
	"reclink/internal/linkage"
)

// SupportedEncodings lists the input.encoding values the loader can decode.
var SupportedEncodings = []string{"utf-8", "windows-1252", "iso-8859-1", "windows-1251"}

// Validate ensures the configuration is usable. All problems are reported
// together, each wrapped with failure.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []error
	for _, check := range []func() []string{
		c.validatePaths,
		c.validateFields,
		c.validateLinkage,
		c.validateFormats,
		c.validateLogging,
	} {
		for _, msg := range check() {
			problems = append(problems, failure.Wrap(failure.ErrConfiguration, "config", "validate", msg, nil))
		}
	}
	return errors.Join(problems...)
}

func (c *Config) validatePaths() []string {
	var problems []string
	required := map[string]string{
		"paths.left_file":     c.Paths.LeftFile,
		"paths.right_file":    c.Paths.RightFile,
		"paths.output_file":   c.Paths.OutputFile,
		"paths.training_file": c.Paths.TrainingFile,
		"paths.settings_file": c.Paths.SettingsFile,
	}
	for _, key := range []string{"paths.left_file", "paths.right_file", "paths.output_file", "paths.training_file", "paths.settings_file"} {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, key+" must be set")
		}
	}
	if c.Paths.LeftFile != "" && filepath.Clean(c.Paths.LeftFile) == filepath.Clean(c.Paths.RightFile) {
		problems = append(problems, "paths.left_file and paths.right_file must name different files")
	}
	return problems
}

func (c *Config) validateFields() []string {
	if len(c.Fields) == 0 {
		return []string{"at least one [[fields]] entry is required"}
	}
	var problems []string
	seen := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		if f.Field == "" {
			problems = append(problems, fmt.Sprintf("fields[%d].field must be set", i))
			continue
		}
		if _, dup := seen[f.Field]; dup {
			problems = append(problems, fmt.Sprintf("fields[%d]: duplicate field %q", i, f.Field))
		}
		seen[f.Field] = struct{}{}
		if _, err := linkage.ParseFieldType(f.Type); err != nil {
			problems = append(problems, fmt.Sprintf("fields[%d] (%s): %v", i, f.Field, err))
		}
	}
	return problems
}

func (c *Config) validateLinkage() []string {
	var problems []string
	if c.Linkage.Threshold < 0 || c.Linkage.Threshold > 1 {
		problems = append(problems, "linkage.threshold must be between 0 and 1")
	}
	if c.Linkage.SampleSize <= 0 {
		problems = append(problems, "linkage.sample_size must be positive")
	}
	if c.Linkage.MaxBlockSize <= 0 {
		problems = append(problems, "linkage.max_block_size must be positive")
	}
	if c.Linkage.MinTokenLength < 1 {
		problems = append(problems, "linkage.min_token_length must be at least 1")
	}
	if c.Labeling.AutosaveEvery < 0 {
		problems = append(problems, "labeling.autosave_every must not be negative")
	}
	return problems
}

func (c *Config) validateFormats() []string {
	var problems []string
	if !contains(SupportedEncodings, c.Input.Encoding) {
		problems = append(problems, fmt.Sprintf("input.encoding %q not supported (use one of %s)", c.Input.Encoding, strings.Join(SupportedEncodings, ", ")))
	}
	switch c.Output.Format {
	case "csv", "xlsx":
	default:
		problems = append(problems, fmt.Sprintf("output.format %q not supported (use csv or xlsx)", c.Output.Format))
	}
	switch c.Store.Backend {
	case "file":
	case "sqlite":
		if strings.TrimSpace(c.Paths.DatabaseFile) == "" {
			problems = append(problems, "paths.database_file must be set for the sqlite store")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q not supported (use file or sqlite)", c.Store.Backend))
	}
	return problems
}

func (c *Config) validateLogging() []string {
	var problems []string
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q not supported (use console or json)", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q not supported", c.Logging.Level))
	}
	return problems
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
