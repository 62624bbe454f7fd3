package labeler

import (
	"context"

	"reclink/internal/linkage"
)

// Prompt is everything a judge needs to decide one pair.
type Prompt struct {
	Pair   linkage.Pair
	Left   linkage.Record
	Right  linkage.Record
	Fields []linkage.FieldSpec
	// Progress counters for the running session; Labeled includes examples
	// carried over from earlier sessions.
	Labeled   int
	Matches   int
	Distincts int
	Skipped   int
}

// Judge answers candidate pairs. Implementations may block; they should
// return promptly once ctx is canceled.
type Judge interface {
	Judge(ctx context.Context, prompt Prompt) (linkage.Judgment, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, prompt Prompt) (linkage.Judgment, error)

func (f JudgeFunc) Judge(ctx context.Context, prompt Prompt) (linkage.Judgment, error) {
	return f(ctx, prompt)
}

// ScriptedJudge answers from a fixed list and then finishes.
type ScriptedJudge struct {
	answers []linkage.Judgment
	next    int
}

// NewScriptedJudge returns a judge replaying answers in order.
func NewScriptedJudge(answers ...linkage.Judgment) *ScriptedJudge {
	return &ScriptedJudge{answers: append([]linkage.Judgment(nil), answers...)}
}

func (s *ScriptedJudge) Judge(ctx context.Context, _ Prompt) (linkage.Judgment, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.answers) {
		return linkage.JudgmentFinish, nil
	}
	answer := s.answers[s.next]
	s.next++
	return answer, nil
}

// Asked reports how many answers have been consumed.
func (s *ScriptedJudge) Asked() int { return s.next }
