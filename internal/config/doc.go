// Package config loads, normalizes, and validates reclink configuration.
//
// Configuration lives in TOML. Load resolves the file (explicit flag, then
// ~/.config/reclink/config.toml, then ./reclink.toml), decodes it over
// Default, expands paths, and validates the result. Relative file paths are
// resolved against paths.work_dir so a project directory can be moved as a
// unit. Validation failures wrap failure.ErrConfiguration.
package config
