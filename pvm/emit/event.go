package emit

// Well-known event messages emitted by the runtime.
const (
	MsgActivityInstanceStart = "activity_instance_start"
	MsgActivityInstanceEnd   = "activity_instance_end"
	MsgTransitionTake        = "transition_take"
	MsgVariableUpdate        = "variable_update"
	MsgOperation             = "operation"
	MsgProcessStart          = "process_start"
	MsgProcessEnd            = "process_end"
	MsgStepChainFailed       = "step_chain_failed"
)

// Event represents an observability event emitted while an execution advances.
//
// Events describe a single atomic operation or boundary change:
//   - activity instance start/end
//   - transition take
//   - variable writes and their attribution
//   - failures that aborted a step chain
type Event struct {
	// ProcessInstanceID identifies the process instance (root execution).
	ProcessInstanceID string

	// Step is the sequence counter of the execution at the time of emission.
	Step int64

	// ExecutionID identifies the execution node the event happened on.
	ExecutionID string

	// ActivityID is the activity the execution occupied, if any.
	ActivityID string

	// ActivityInstanceID is the activity instance the event is attributed to.
	// Empty when the execution sits between activities.
	ActivityInstanceID string

	// Msg is the event kind, one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "operation": atomic operation name
	//   - "transition_id": transition taken
	//   - "variable": variable name for variable_update
	//   - "error": error text for failures
	Meta map[string]interface{}
}
