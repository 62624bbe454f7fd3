package logging

const (
	// FieldComponent names the stage or package that emitted the line.
	FieldComponent = "component"
	// FieldRunID correlates every line of one CLI invocation.
	FieldRunID = "run_id"
	// FieldStage names the pipeline stage (load, label, train, cluster, write).
	FieldStage = "stage"
	// FieldSource is the input file a line concerns.
	FieldSource = "source"
	// FieldEventType classifies the line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldErrorKind is the failure.Kind of a logged error.
	FieldErrorKind = "error_kind"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType tags decision logs.
	FieldDecisionType = "decision_type"
)
