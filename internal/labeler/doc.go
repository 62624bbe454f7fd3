// Package labeler runs the interactive labeling session.
//
// A Session is a small state machine (Ready, AwaitingJudgment, Recording,
// Terminated) that pulls candidate pairs from the linker, asks a Judge for
// a decision, and appends match and distinct answers to the training set.
// Skip discards a pair without recording it; finish ends the session. Judge
// failures and cancellation end the session with failure.ErrJudgeUnavailable
// while still returning every label gathered so far.
package labeler
