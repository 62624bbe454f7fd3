// Package failure defines the error markers shared by every linkage stage.
//
// Stages wrap their errors with Wrap so the message carries stage and
// operation context while errors.Is still matches both the marker and the
// underlying cause. Kind and Hint turn a marker into structured log fields
// and an operator-facing next step.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedInput      = errors.New("malformed input")
	ErrFieldSpecMismatch   = errors.New("field spec mismatch")
	ErrCorruptSettings     = errors.New("corrupt settings")
	ErrDuplicateMembership = errors.New("duplicate cluster membership")
	ErrJudgeUnavailable    = errors.New("judge unavailable")
	ErrConfiguration       = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker. The marker should be one of the sentinels above;
// a nil marker leaves the error unclassified.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	switch {
	case marker == nil && err == nil:
		return errors.New(detail)
	case marker == nil:
		return fmt.Errorf("%s: %w", detail, err)
	case err == nil:
		return fmt.Errorf("%w: %s", marker, detail)
	default:
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
}

// Kind returns a short classification label for structured logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrFieldSpecMismatch):
		return "field_spec_mismatch"
	case errors.Is(err, ErrCorruptSettings):
		return "corrupt_settings"
	case errors.Is(err, ErrDuplicateMembership):
		return "duplicate_membership"
	case errors.Is(err, ErrJudgeUnavailable):
		return "judge_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// Hint returns the operator next step for a classified error.
func Hint(err error) string {
	switch Kind(err) {
	case "malformed_input":
		return "fix the input file so every row has the header's field count"
	case "field_spec_mismatch":
		return "check the [[fields]] names against the input headers"
	case "corrupt_settings":
		return "delete the settings artifact and rerun to retrain"
	case "duplicate_membership":
		return "the linker emitted overlapping clusters; report it or switch linker"
	case "judge_unavailable":
		return "labels recorded so far were saved; rerun to continue labeling"
	case "configuration":
		return "run 'reclink config validate' and fix the reported key"
	case "":
		return ""
	default:
		return "rerun with -vv for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "linkage failure"
	}
	return strings.Join(parts, ": ")
}
