package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"reclink/internal/assemble"
	"reclink/internal/config"
	"reclink/internal/dataset"
	"reclink/internal/failure"
	"reclink/internal/labeler"
	"reclink/internal/linkage"
	"reclink/internal/logging"
	"reclink/internal/modelstore"
)

// ErrWorkspaceLocked reports that another run holds the workspace lock.
var ErrWorkspaceLocked = errors.New("workspace is locked by another reclink run")

// Options wires a Runner.
type Options struct {
	Config *config.Config
	Linker linkage.Linker
	Store  modelstore.Store
	Judge  labeler.Judge
	Logger *slog.Logger
	// RunID tags every log record of the run. Empty generates one.
	RunID string
}

// Summary describes a completed (or partially completed) run.
type Summary struct {
	RunID          string
	LeftRecords    int
	RightRecords   int
	ReusedSettings bool
	Trained        bool
	PriorLabels    int
	NewLabels      int
	Skipped        int
	Termination    labeler.Reason
	ModelExamples  int
	Clusters       int
	ClusteredRows  int
	OutputRows     int
	OutputPath     string
	Duration       time.Duration
}

// Runner executes pipeline runs against one workspace.
type Runner struct {
	cfg    *config.Config
	linker linkage.Linker
	store  modelstore.Store
	judge  labeler.Judge
	logger *slog.Logger
	runID  string
	lock   *flock.Flock
}

// New validates opts and returns a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Linker == nil || opts.Store == nil {
		return nil, errors.New("pipeline requires config, linker, and store")
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := logging.NewComponentLogger(opts.Logger, "pipeline").With(logging.String(logging.FieldRunID, runID))
	return &Runner{
		cfg:    opts.Config,
		linker: opts.Linker,
		store:  opts.Store,
		judge:  opts.Judge,
		logger: logger,
		runID:  runID,
		lock:   flock.New(opts.Config.LockPath()),
	}, nil
}

// RunID returns the identifier attached to this runner's logs.
func (r *Runner) RunID() string { return r.runID }

// Link runs the full pipeline. A valid settings artifact skips labeling and
// training; otherwise the judge labels pairs and a new model is persisted
// before clustering.
func (r *Runner) Link(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: r.runID, OutputPath: r.cfg.Paths.OutputFile}

	release, err := r.acquire()
	if err != nil {
		return summary, err
	}
	defer release()

	left, right, err := r.loadSources(ctx, summary)
	if err != nil {
		return summary, err
	}

	model, err := r.resolveModel(ctx, left, right, summary)
	if err != nil {
		return summary, err
	}

	stage := r.logger.With(logging.Stage("cluster"))
	result, err := r.linker.Cluster(ctx, model, left, right, r.cfg.Linkage.Threshold)
	if err != nil {
		return summary, failure.Wrap(nil, "cluster", "cluster", "", err)
	}
	summary.Clusters = len(result)
	stage.Info("clustering complete",
		logging.Int("clusters", len(result)),
		logging.Float64("threshold", r.cfg.Linkage.Threshold),
	)

	table, err := assemble.Assemble(result, left, right)
	if err != nil {
		return summary, err
	}
	if err := assemble.Write(r.cfg.Paths.OutputFile, r.cfg.Output.Format, table); err != nil {
		return summary, failure.Wrap(nil, "assemble", "write output", r.cfg.Paths.OutputFile, err)
	}
	summary.OutputRows = len(table.Rows)
	summary.ClusteredRows = table.Clustered()
	summary.Duration = time.Since(start)

	r.logger.Info("link run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output", r.cfg.Paths.OutputFile),
		logging.String("format", r.cfg.Output.Format),
		logging.Int("output_rows", summary.OutputRows),
		logging.Int("clustered_rows", summary.ClusteredRows),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Label runs labeling and training without clustering. Unless retrain is
// set it refuses when a settings artifact already exists; with retrain the
// artifact is replaced by a model trained on the accumulated training set.
func (r *Runner) Label(ctx context.Context, retrain bool) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: r.runID}

	release, err := r.acquire()
	if err != nil {
		return summary, err
	}
	defer release()

	has, err := r.store.HasSettings(ctx)
	if err != nil {
		return summary, failure.Wrap(nil, "store", "check settings", r.store.Location(), err)
	}
	if has && !retrain {
		return summary, failure.Wrap(failure.ErrConfiguration, "label", "check settings",
			fmt.Sprintf("settings already exist in %s; pass --retrain to replace them", r.store.Location()), nil)
	}

	left, right, err := r.loadSources(ctx, summary)
	if err != nil {
		return summary, err
	}
	if _, err := r.train(ctx, left, right, summary); err != nil {
		return summary, err
	}
	summary.Duration = time.Since(start)
	r.logger.Info("label run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Bool("retrain", retrain),
		logging.Int("new_labels", summary.NewLabels),
		logging.Int("model_examples", summary.ModelExamples),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) acquire() (func(), error) {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	ok, err := r.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrWorkspaceLocked, r.cfg.LockPath())
	}
	r.logger.Debug("workspace lock acquired", logging.String("lock", r.cfg.LockPath()))
	return func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release workspace lock", logging.Error(err))
		}
	}, nil
}

func (r *Runner) loadSources(ctx context.Context, summary *Summary) (*linkage.Dataset, *linkage.Dataset, error) {
	opts := dataset.Options{
		Encoding: r.cfg.Input.Encoding,
		Fields:   r.cfg.FieldSpecs(),
		Logger:   r.logger,
	}
	left, err := dataset.Load(ctx, dataset.Source{Path: r.cfg.Paths.LeftFile}, opts)
	if err != nil {
		return nil, nil, err
	}
	right, err := dataset.Load(ctx, dataset.Source{Path: r.cfg.Paths.RightFile}, opts)
	if err != nil {
		return nil, nil, err
	}
	summary.LeftRecords = left.Len()
	summary.RightRecords = right.Len()
	return left, right, nil
}

func (r *Runner) resolveModel(ctx context.Context, left, right *linkage.Dataset, summary *Summary) (linkage.TrainedModel, error) {
	has, err := r.store.HasSettings(ctx)
	if err != nil {
		return nil, failure.Wrap(nil, "store", "check settings", r.store.Location(), err)
	}
	if has {
		model, err := r.store.LoadSettings(ctx)
		if err != nil {
			return nil, err
		}
		summary.ReusedSettings = true
		summary.ModelExamples = model.Examples()
		attrs := append(logging.DecisionAttrs("model_source", "reuse", "settings artifact present"),
			logging.String("location", r.store.Location()),
			logging.Int("model_examples", model.Examples()),
		)
		r.logger.Info("reusing trained settings", logging.Args(attrs...)...)
		return model, nil
	}
	r.logger.Info("no trained settings found",
		logging.Args(logging.DecisionAttrs("model_source", "train", "settings artifact absent")...)...)
	return r.train(ctx, left, right, summary)
}

// train labels pairs with the judge, fits a model, and persists both the
// training set and the model.
func (r *Runner) train(ctx context.Context, left, right *linkage.Dataset, summary *Summary) (linkage.TrainedModel, error) {
	if r.judge == nil {
		return nil, failure.Wrap(failure.ErrJudgeUnavailable, "label", "start", "no judge configured", nil)
	}
	stage := r.logger.With(logging.Stage("label"))

	examples, err := r.store.LoadTrainingExamples(ctx)
	if err != nil {
		return nil, err
	}
	summary.PriorLabels = len(examples)

	fields := r.cfg.FieldSpecs()
	if err := r.linker.Configure(fields); err != nil {
		return nil, failure.Wrap(failure.ErrConfiguration, "label", "configure linker", "", err)
	}
	if err := r.linker.Prepare(ctx, left, right, examples); err != nil {
		return nil, failure.Wrap(nil, "label", "prepare linker", "", err)
	}

	session, err := labeler.NewSession(labeler.Options{
		Source:          r.linker,
		Judge:           r.judge,
		Left:            left,
		Right:           right,
		Fields:          fields,
		CheckpointEvery: r.cfg.Labeling.AutosaveEvery,
		Checkpoint:      r.store.SaveTrainingExamples,
		Logger:          stage,
	})
	if err != nil {
		return nil, err
	}
	stage.Info("labeling started", logging.Int("prior_labels", len(examples)))
	outcome, runErr := session.Run(ctx, examples)
	summary.NewLabels = outcome.NewLabels
	summary.Skipped = outcome.Skipped
	summary.Termination = outcome.Reason
	if runErr != nil {
		return nil, r.persistPartial(ctx, outcome, runErr)
	}

	model, err := r.linker.Train(ctx, outcome.Examples)
	if err != nil {
		return nil, failure.Wrap(nil, "train", "fit", "", err)
	}
	if err := r.store.SaveTrainingExamples(ctx, outcome.Examples); err != nil {
		return nil, failure.Wrap(nil, "train", "save training", r.store.Location(), err)
	}
	if err := r.store.SaveSettings(ctx, model); err != nil {
		return nil, failure.Wrap(nil, "train", "save settings", r.store.Location(), err)
	}
	summary.Trained = true
	summary.ModelExamples = model.Examples()
	stage.Info("model persisted",
		logging.String("location", r.store.Location()),
		logging.Int("model_examples", model.Examples()),
		logging.String("termination", string(outcome.Reason)),
	)
	return model, nil
}

// persistPartial saves recorded labels after a failed session. The save
// ignores cancellation so Ctrl-C does not discard work.
func (r *Runner) persistPartial(ctx context.Context, outcome labeler.Outcome, runErr error) error {
	if outcome.NewLabels == 0 {
		return runErr
	}
	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.SaveTrainingExamples(saveCtx, outcome.Examples); err != nil {
		logging.ErrorWithContext(r.logger, "failed to persist partial labels", "partial_save_failed",
			logging.Error(err),
			logging.Int("labels", len(outcome.Examples)),
			logging.String(logging.FieldErrorHint, "check that the training location is writable"),
		)
		return errors.Join(runErr, fmt.Errorf("persist partial labels: %w", err))
	}
	logging.WarnWithContext(r.logger, "labeling interrupted; partial labels saved", "partial_labels_saved",
		logging.Int("labels", len(outcome.Examples)),
		logging.Int("new_labels", outcome.NewLabels),
		logging.String("reason", string(outcome.Reason)),
		logging.String(logging.FieldErrorHint, failure.Hint(runErr)),
		logging.String(logging.FieldImpact, "no model was trained and no output was written"),
	)
	return runErr
}
