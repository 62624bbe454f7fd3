package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Input.Encoding = strings.ToLower(strings.TrimSpace(c.Input.Encoding))
	if c.Input.Encoding == "" {
		c.Input.Encoding = defaultEncoding
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultOutputFormat
		if strings.EqualFold(filepath.Ext(c.Paths.OutputFile), ".xlsx") {
			c.Output.Format = "xlsx"
		}
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	for i := range c.Fields {
		c.Fields[i].Field = strings.TrimSpace(c.Fields[i].Field)
		c.Fields[i].Type = strings.TrimSpace(c.Fields[i].Type)
	}
	c.Condense.DropColumns = trimList(c.Condense.DropColumns)
	c.Condense.MergeColumns = trimList(c.Condense.MergeColumns)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	base := c.Paths.WorkDir
	targets := []struct {
		key   string
		value *string
	}{
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.left_file", &c.Paths.LeftFile},
		{"paths.right_file", &c.Paths.RightFile},
		{"paths.output_file", &c.Paths.OutputFile},
		{"paths.training_file", &c.Paths.TrainingFile},
		{"paths.settings_file", &c.Paths.SettingsFile},
		{"paths.database_file", &c.Paths.DatabaseFile},
	}
	for _, target := range targets {
		if *target.value, err = resolveAgainst(base, *target.value); err != nil {
			return fmt.Errorf("%s: %w", target.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimList(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
