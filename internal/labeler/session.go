package labeler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reclink/internal/failure"
	"reclink/internal/linkage"
	"reclink/internal/logging"
)

// State is a labeling session state.
type State int

const (
	StateReady State = iota
	StateAwaitingJudgment
	StateRecording
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAwaitingJudgment:
		return "awaiting_judgment"
	case StateRecording:
		return "recording"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason explains why a session terminated.
type Reason string

const (
	ReasonFinished    Reason = "finished"
	ReasonExhausted   Reason = "exhausted"
	ReasonJudgeFailed Reason = "judge_failed"
	ReasonCanceled    Reason = "canceled"
	ReasonFailed      Reason = "failed"
)

// PairSource is the part of linkage.Linker a session drives.
type PairSource interface {
	NextPair() (linkage.Pair, bool)
	RecordJudgment(pair linkage.Pair, judgment linkage.Judgment) error
}

// Checkpoint persists the training set mid-session.
type Checkpoint func(ctx context.Context, examples []linkage.LabeledExample) error

// Options configures a Session.
type Options struct {
	Source PairSource
	Judge  Judge
	Left   *linkage.Dataset
	Right  *linkage.Dataset
	Fields []linkage.FieldSpec
	// CheckpointEvery calls Checkpoint after every N recorded labels. Zero
	// disables checkpoints.
	CheckpointEvery int
	Checkpoint      Checkpoint
	// OnTransition observes state changes.
	OnTransition func(from, to State)
	Logger       *slog.Logger
	Now          func() time.Time
}

// Outcome is the result of a session. It is populated even when Run fails.
type Outcome struct {
	Examples  []linkage.LabeledExample
	NewLabels int
	Skipped   int
	Reason    Reason
}

// Session labels candidate pairs until the judge finishes, the candidates
// run out, or the judge becomes unavailable.
type Session struct {
	opts   Options
	logger *slog.Logger
	state  State
}

// NewSession validates opts and returns a session in the Ready state.
func NewSession(opts Options) (*Session, error) {
	if opts.Source == nil || opts.Judge == nil {
		return nil, fmt.Errorf("labeler: pair source and judge are required")
	}
	if opts.Left == nil || opts.Right == nil {
		return nil, fmt.Errorf("labeler: both datasets are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "labeler"),
		state:  StateReady,
	}, nil
}

// State returns the current state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.opts.OnTransition != nil && from != to {
		s.opts.OnTransition(from, to)
	}
}

// Run labels pairs, starting from the prior training set. The returned
// Outcome always holds prior plus every label recorded before termination.
func (s *Session) Run(ctx context.Context, prior []linkage.LabeledExample) (Outcome, error) {
	out := Outcome{Examples: append([]linkage.LabeledExample(nil), prior...)}
	if s.state == StateTerminated {
		out.Reason = ReasonFailed
		return out, fmt.Errorf("labeler: session already terminated")
	}
	matches, distincts := countJudgments(prior)

	finish := func(reason Reason, err error) (Outcome, error) {
		out.Reason = reason
		s.transition(StateTerminated)
		s.logger.Info("labeling session ended",
			logging.String("reason", string(reason)),
			logging.Int("new_labels", out.NewLabels),
			logging.Int("skipped", out.Skipped),
			logging.Int("total_labels", len(out.Examples)),
			logging.String(logging.FieldEventType, "labeling_ended"),
		)
		return out, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(ReasonCanceled, failure.Wrap(failure.ErrJudgeUnavailable, "label", "await judgment", "session canceled", err))
		}

		pair, ok := s.opts.Source.NextPair()
		if !ok {
			return finish(ReasonExhausted, nil)
		}
		left, okL := s.opts.Left.Record(pair.Left)
		right, okR := s.opts.Right.Record(pair.Right)
		if !okL || !okR {
			return finish(ReasonFailed, failure.Wrap(nil, "label", "next pair", fmt.Sprintf("linker offered unknown pair %s|%s", pair.Left, pair.Right), nil))
		}

		s.transition(StateAwaitingJudgment)
		judgment, err := s.opts.Judge.Judge(ctx, Prompt{
			Pair:      pair,
			Left:      left,
			Right:     right,
			Fields:    s.opts.Fields,
			Labeled:   len(out.Examples),
			Matches:   matches,
			Distincts: distincts,
			Skipped:   out.Skipped,
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(ReasonCanceled, failure.Wrap(failure.ErrJudgeUnavailable, "label", "await judgment", "session canceled", ctxErr))
		}
		if err != nil {
			return finish(ReasonJudgeFailed, failure.Wrap(failure.ErrJudgeUnavailable, "label", "await judgment", "", err))
		}

		switch judgment {
		case linkage.JudgmentFinish:
			return finish(ReasonFinished, nil)
		case linkage.JudgmentSkip, linkage.JudgmentMatch, linkage.JudgmentDistinct:
		default:
			return finish(ReasonJudgeFailed, failure.Wrap(failure.ErrJudgeUnavailable, "label", "await judgment", fmt.Sprintf("unknown judgment %q", judgment), nil))
		}

		s.transition(StateRecording)
		if judgment == linkage.JudgmentSkip {
			// Skipped pairs are discarded, never recorded.
			out.Skipped++
			s.logger.Debug("pair skipped", logging.Pair(pair))
			s.transition(StateReady)
			continue
		}
		out.Examples = append(out.Examples, linkage.LabeledExample{
			Left:        pair.Left,
			Right:       pair.Right,
			Judgment:    judgment,
			LeftRecord:  left,
			RightRecord: right,
			LabeledAt:   s.opts.Now().UTC(),
		})
		out.NewLabels++
		if judgment == linkage.JudgmentMatch {
			matches++
		} else {
			distincts++
		}
		if err := s.opts.Source.RecordJudgment(pair, judgment); err != nil {
			return finish(ReasonFailed, failure.Wrap(nil, "label", "record judgment", "", err))
		}
		s.logger.Debug("pair labeled",
			logging.Pair(pair),
			logging.String("judgment", string(judgment)),
		)
		s.maybeCheckpoint(ctx, out)
		s.transition(StateReady)
	}
}

func (s *Session) maybeCheckpoint(ctx context.Context, out Outcome) {
	every := s.opts.CheckpointEvery
	if every <= 0 || s.opts.Checkpoint == nil || out.NewLabels%every != 0 {
		return
	}
	if err := s.opts.Checkpoint(ctx, out.Examples); err != nil {
		logging.WarnWithContext(s.logger, "training checkpoint failed", "checkpoint_failed",
			logging.Error(err),
			logging.Int("labels", len(out.Examples)),
			logging.String(logging.FieldErrorHint, "check that the training file location is writable"),
			logging.String(logging.FieldImpact, "labels are kept in memory and saved when the session ends"),
		)
		return
	}
	s.logger.Debug("training checkpoint saved", logging.Int("labels", len(out.Examples)))
}

func countJudgments(examples []linkage.LabeledExample) (matches, distincts int) {
	for _, ex := range examples {
		switch ex.Judgment {
		case linkage.JudgmentMatch:
			matches++
		case linkage.JudgmentDistinct:
			distincts++
		}
	}
	return matches, distincts
}
