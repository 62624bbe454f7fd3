package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reclink/internal/config"
	"reclink/internal/failure"
	"reclink/internal/linker"
	"reclink/internal/logging"
	"reclink/internal/modelstore"
)

type commandContext struct {
	configFlag *string
	verbosity  *int

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbosity *int) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbosity:  verbosity,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logLevel lets -v override logging.level.
func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.verbosity != nil && *c.verbosity > 0 {
		return logging.LevelForVerbosity(*c.verbosity)
	}
	return cfg.Logging.Level
}

// newLogger builds the run logger. Console output goes to the command's
// stderr; a JSON copy goes to the log file when log_dir is set. The caller
// must call the returned close function.
func (c *commandContext) newLogger(cmd *cobra.Command, cfg *config.Config, runID string) (*slog.Logger, func() error, error) {
	stderr := cmd.ErrOrStderr()
	return logging.New(logging.Options{
		Level:    c.logLevel(cfg),
		Format:   cfg.Logging.Format,
		Console:  stderr,
		Color:    shouldColorize(stderr),
		FilePath: cfg.LogFile(),
		Attrs:    []logging.Attr{logging.String(logging.FieldRunID, runID)},
	})
}

// session bundles what every linkage command needs.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	linker *linker.Linker
	store  modelstore.Store
	runID  string

	closeLog func() error
}

// Close releases the store, then the run log.
func (s *session) Close() error {
	var storeErr error
	if s.store != nil {
		storeErr = s.store.Close()
	}
	return errors.Join(storeErr, s.closeLog())
}

func (c *commandContext) openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger, closeLog, err := c.newLogger(cmd, cfg, runID)
	if err != nil {
		return nil, failure.Wrap(failure.ErrConfiguration, "cli", "logger", "", err)
	}
	l := linker.New(linker.Options{
		SampleSize:     cfg.Linkage.SampleSize,
		MaxBlockSize:   cfg.Linkage.MaxBlockSize,
		MinTokenLength: cfg.Linkage.MinTokenLength,
		Logger:         logger,
	})
	store, err := modelstore.Open(ctx, cfg, modelstore.Options{
		Codec:  l,
		Fields: cfg.FieldSpecs(),
		Logger: logger,
	})
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, linker: l, store: store, runID: runID, closeLog: closeLog}, nil
}

// reportFailure logs a run failure with its classification and returns err.
func reportFailure(logger *slog.Logger, err error) error {
	if err == nil || logger == nil {
		return err
	}
	logging.ErrorWithContext(logger, "run failed", "run_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, failure.Kind(err)),
		logging.String(logging.FieldErrorHint, failure.Hint(err)),
	)
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
