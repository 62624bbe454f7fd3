package preflight

import (
	"path/filepath"

	"reclink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every path check for cfg. Artifact directories are
// expected to exist; call cfg.EnsureDirectories first.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckFileReadable("Left input", cfg.Paths.LeftFile),
		CheckFileReadable("Right input", cfg.Paths.RightFile),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", filepath.Dir(cfg.Paths.OutputFile)),
	}

	switch cfg.Store.Backend {
	case "sqlite":
		results = append(results, CheckDirectoryAccess("Database directory", filepath.Dir(cfg.Paths.DatabaseFile)))
	default:
		results = append(results, CheckDirectoryAccess("Training directory", filepath.Dir(cfg.Paths.TrainingFile)))
		if settingsDir := filepath.Dir(cfg.Paths.SettingsFile); settingsDir != filepath.Dir(cfg.Paths.TrainingFile) {
			results = append(results, CheckDirectoryAccess("Settings directory", settingsDir))
		}
	}

	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
