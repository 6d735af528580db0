// Package model defines the domain types shared across the recording,
// analysis, and persistence layers.
package model

// SessionState is the lifecycle of one capture session.
type SessionState string

const (
	// SessionIdle means no resources are held.
	SessionIdle SessionState = "idle"
	// SessionRecording means the engine is running and audio is flowing.
	SessionRecording SessionState = "recording"
	// SessionProcessing means input has ended and teardown is pending.
	SessionProcessing SessionState = "processing"
	// SessionCompleted means teardown finished and a recording snapshot exists.
	SessionCompleted SessionState = "completed"
	// SessionError means an unrecoverable failure forced teardown.
	SessionError SessionState = "error"
)

// RecordingStep is the user-observable state of the workflow.
type RecordingStep string

const (
	// StepIdle is the rest state; a new recording can begin.
	StepIdle RecordingStep = "idle"
	// StepRecording means the capture session is live.
	StepRecording RecordingStep = "recording"
	// StepProcessing means the session is finalizing its transcript.
	StepProcessing RecordingStep = "processing"
	// StepAnalyzing means the transcript is with the analysis backend.
	StepAnalyzing RecordingStep = "analyzing"
	// StepSelectingMultipleExpenses offers several candidates for multi-select.
	StepSelectingMultipleExpenses RecordingStep = "selecting_multiple_expenses"
	// StepConfirmingExpense offers a single candidate for confirmation.
	StepConfirmingExpense RecordingStep = "confirming_expense"
	// StepCompleted means all confirmed candidates were persisted.
	StepCompleted RecordingStep = "completed"
	// StepError is reachable from any step and auto-clears back to idle.
	StepError RecordingStep = "error"
)
