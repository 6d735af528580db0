// Package workflow sequences the capture session and the analysis client
// through a small set of user-observable steps, from recording to
// confirmed expense records.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/capture"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"
)

// defaultErrorClearDelay is how long the error step lingers before
// auto-returning to idle when the user takes no action.
const defaultErrorClearDelay = 5 * time.Second

// CaptureSession is the slice of the capture session the workflow needs.
type CaptureSession interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan capture.Event
}

// State is the published workflow state consumed by the confirmation/UI
// collaborator.
type State struct {
	Step          model.RecordingStep
	ProgressLabel string
	Transcript    string
	ErrorMessage  string
	Candidates    []model.ExpenseCandidate
}

// Workflow owns one recording-to-confirmation flow. All state mutation is
// serialized through one mutex; capture and analysis callbacks re-check
// the active request before acting, so results from a superseded session
// are ignored.
type Workflow struct {
	session  CaptureSession
	analyzer service.Analyzer
	storage  service.Storage
	prefs    *model.UserPreferences
	logger   *slog.Logger

	errorClearDelay time.Duration
	updates         chan State

	mu              sync.Mutex
	step            model.RecordingStep
	progressLabel   string
	transcript      string
	errorMessage    string
	candidates      []model.ExpenseCandidate
	activeRequestID uuid.UUID
	errorTimer      *time.Timer
	runCtx          context.Context
}

// New creates an idle workflow.
func New(session CaptureSession, analyzer service.Analyzer, storage service.Storage, prefs *model.UserPreferences, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		session:         session,
		analyzer:        analyzer,
		storage:         storage,
		prefs:           prefs,
		logger:          logger,
		errorClearDelay: defaultErrorClearDelay,
		updates:         make(chan State, 1),
		step:            model.StepIdle,
	}
}

// Run consumes capture session events until ctx is done. It must be
// running for recordings to make progress.
func (w *Workflow) Run(ctx context.Context) {
	w.mu.Lock()
	w.runCtx = ctx
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.session.Events():
			w.handleSessionEvent(ev)
		}
	}
}

// Updates delivers state snapshots, latest-wins.
func (w *Workflow) Updates() <-chan State {
	return w.updates
}

// Snapshot returns the current published state.
func (w *Workflow) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() State {
	return State{
		Step:          w.step,
		ProgressLabel: w.progressLabel,
		Transcript:    w.transcript,
		ErrorMessage:  w.errorMessage,
		Candidates:    append([]model.ExpenseCandidate(nil), w.candidates...),
	}
}

// StartRecording begins a new capture session. Allowed from idle,
// completed, and error.
func (w *Workflow) StartRecording(ctx context.Context) {
	w.mu.Lock()
	switch w.step {
	case model.StepIdle, model.StepCompleted, model.StepError:
	default:
		w.mu.Unlock()
		w.logger.Warn("ignoring start request", "step", w.step)
		return
	}
	w.resetLocked()
	w.setStepLocked(model.StepRecording)
	w.mu.Unlock()
	w.publish()

	if err := w.session.Start(ctx); err != nil {
		w.logger.Error("capture stage failed", "error", fmt.Errorf("failed to start recording: %w", err))
		w.toError(common.NewUserError(captureErrorMessage(err), err))
	}
}

// StopRecording ends the capture session; the session's terminal event
// drives the next transition.
func (w *Workflow) StopRecording() {
	w.mu.Lock()
	if w.step != model.StepRecording {
		w.mu.Unlock()
		return
	}
	w.setStepLocked(model.StepProcessing)
	w.mu.Unlock()
	w.publish()

	w.session.Stop()
}

// Confirm validates and persists a single candidate.
func (w *Workflow) Confirm(ctx context.Context, candidate model.ExpenseCandidate) {
	w.mu.Lock()
	if w.step != model.StepConfirmingExpense && w.step != model.StepSelectingMultipleExpenses {
		w.mu.Unlock()
		w.logger.Warn("ignoring confirm request", "step", w.step)
		return
	}
	w.mu.Unlock()

	if err := candidate.Validate(); err != nil {
		w.logger.Error("confirmation stage failed", "error", err)
		w.toError(common.NewUserError(msgCandidateInvalid, err))
		return
	}
	if err := w.storage.Save(ctx, candidate); err != nil {
		w.logger.Error("storage stage failed", "error", fmt.Errorf("failed to save candidate %s: %w", candidate.ID, err))
		w.toError(common.NewUserError(msgStorageFailed, err))
		return
	}

	w.mu.Lock()
	w.candidates = nil
	w.setStepLocked(model.StepCompleted)
	w.mu.Unlock()
	w.publish()
	w.logger.Info("expense confirmed", "id", candidate.ID, "amount", candidate.Amount, "category", candidate.Category)
}

// ConfirmMultiple validates and persists each candidate independently.
// Candidates already accepted by the storage collaborator are not rolled
// back when a later one fails; the failure is surfaced once at the end.
func (w *Workflow) ConfirmMultiple(ctx context.Context, candidates []model.ExpenseCandidate) {
	w.mu.Lock()
	if w.step != model.StepSelectingMultipleExpenses {
		w.mu.Unlock()
		w.logger.Warn("ignoring multi-confirm request", "step", w.step)
		return
	}
	w.mu.Unlock()

	var saved int
	var failures []string
	for _, candidate := range candidates {
		if err := candidate.Validate(); err != nil {
			w.logger.Error("confirmation stage failed", "id", candidate.ID, "error", err)
			failures = append(failures, candidate.Title)
			continue
		}
		if err := w.storage.Save(ctx, candidate); err != nil {
			w.logger.Error("storage stage failed", "id", candidate.ID, "error", err)
			failures = append(failures, candidate.Title)
			continue
		}
		saved++
	}

	if len(failures) > 0 {
		message := fmt.Sprintf("%s：%s（已保存 %d 笔）", msgCandidateInvalid, strings.Join(failures, "、"), saved)
		w.toError(common.NewUserError(message, nil))
		return
	}

	w.mu.Lock()
	w.candidates = nil
	w.setStepLocked(model.StepCompleted)
	w.mu.Unlock()
	w.publish()
	w.logger.Info("expenses confirmed", "count", saved)
}

// Cancel abandons the flow and returns to idle. A live capture session
// is stopped so no audio hardware stays allocated past the cancel.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	capturing := w.step == model.StepRecording || w.step == model.StepProcessing
	w.resetLocked()
	w.setStepLocked(model.StepIdle)
	w.mu.Unlock()

	if capturing {
		w.session.Stop()
	}
	w.publish()
}

// ResetFlow resets published state to idle. Safe to call at any time: it
// does not cancel an outstanding analysis, whose result is discarded when
// its request ID no longer matches.
func (w *Workflow) ResetFlow() {
	w.Cancel()
}

// handleSessionEvent processes capture session events.
func (w *Workflow) handleSessionEvent(ev capture.Event) {
	switch ev.Kind {
	case capture.EventTranscript:
		w.mu.Lock()
		if w.step != model.StepRecording && w.step != model.StepProcessing {
			w.mu.Unlock()
			return
		}
		w.transcript = ev.Transcript.Text
		w.mu.Unlock()
		w.publish()

	case capture.EventTerminal:
		if ev.Err != nil {
			w.mu.Lock()
			active := w.step == model.StepRecording || w.step == model.StepProcessing
			w.mu.Unlock()
			if !active {
				return
			}
			w.logger.Error("capture stage failed", "error", ev.Err)
			w.toError(common.NewUserError(msgRecognitionFailed, ev.Err))
			return
		}
		if ev.Recording != nil {
			w.handleRecordingComplete(*ev.Recording)
		}
	}
}

// handleRecordingComplete routes the finished recording: an empty
// transcript silently returns to idle (a false-start tap, not an error),
// anything else goes to analysis.
func (w *Workflow) handleRecordingComplete(rec model.VoiceRecording) {
	w.mu.Lock()
	if w.step != model.StepRecording && w.step != model.StepProcessing {
		w.mu.Unlock()
		return
	}

	text := strings.TrimSpace(rec.Text)
	if text == "" {
		w.resetLocked()
		w.setStepLocked(model.StepIdle)
		w.mu.Unlock()
		w.publish()
		w.logger.Debug("empty transcript, returning to idle")
		return
	}

	request := model.NewAnalysisRequest(text, w.prefs)
	w.activeRequestID = request.RequestID
	w.transcript = text
	w.setStepLocked(model.StepAnalyzing)
	w.progressLabel = labelConnecting
	w.mu.Unlock()
	w.publish()

	go w.analyze(request)
}

// analyze runs the analysis call off the owner lock and applies the
// result only if the request is still the active one.
func (w *Workflow) analyze(request model.AnalysisRequest) {
	w.setProgress(request.RequestID, labelInterpreting)

	w.mu.Lock()
	ctx := w.runCtx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := w.analyzer.Analyze(ctx, request)
	if err != nil {
		w.logger.Error("analysis stage failed", "request_id", request.RequestID, "error", err)
		w.failAnalysis(request.RequestID, common.NewUserError(analysisErrorMessage(err), err))
		return
	}

	w.setProgress(request.RequestID, labelExtracting)

	if !result.IsValid() {
		w.failAnalysis(request.RequestID, common.NewUserError(msgInvalidResult, nil))
		return
	}

	primary, err := model.NewCandidateFromResult(result)
	if err != nil {
		w.logger.Error("candidate stage failed", "request_id", request.RequestID, "error", err)
		w.failAnalysis(request.RequestID, common.NewUserError(msgCandidateInvalid, err))
		return
	}

	candidates := []model.ExpenseCandidate{primary}
	for _, alt := range result.Alternatives {
		candidate, altErr := model.NewCandidateFromAlternative(result, alt)
		if altErr != nil {
			w.logger.Warn("skipping invalid alternative interpretation", "error", altErr)
			continue
		}
		candidates = append(candidates, candidate)
	}

	w.mu.Lock()
	if w.activeRequestID != request.RequestID || w.step != model.StepAnalyzing {
		w.mu.Unlock()
		return
	}
	w.candidates = candidates
	w.progressLabel = ""
	if len(candidates) > 1 {
		w.setStepLocked(model.StepSelectingMultipleExpenses)
	} else {
		w.setStepLocked(model.StepConfirmingExpense)
	}
	w.mu.Unlock()
	w.publish()
}

func (w *Workflow) setProgress(requestID uuid.UUID, label string) {
	w.mu.Lock()
	if w.activeRequestID != requestID || w.step != model.StepAnalyzing {
		w.mu.Unlock()
		return
	}
	w.progressLabel = label
	w.mu.Unlock()
	w.publish()
}

// toError publishes the error step and arms the auto-return to idle. The
// displayed message comes from the UserError wrapper when present.
func (w *Workflow) toError(err error) {
	w.mu.Lock()
	w.toErrorLocked(err)
	w.mu.Unlock()
	w.publish()
}

func (w *Workflow) toErrorLocked(err error) {
	if w.errorTimer != nil {
		w.errorTimer.Stop()
	}
	message := err.Error()
	var uerr *common.UserError
	if errors.As(err, &uerr) {
		message = uerr.UserMessage
	}
	w.errorMessage = message
	w.candidates = nil
	w.progressLabel = ""
	w.setStepLocked(model.StepError)
	w.errorTimer = time.AfterFunc(w.errorClearDelay, w.clearError)
}

// failAnalysis surfaces an analysis-stage failure only while its request
// is still the active one. The guard and the transition share one lock
// acquisition so a cancel cannot slip in between and have a superseded
// failure land on the fresh flow.
func (w *Workflow) failAnalysis(requestID uuid.UUID, err error) {
	w.mu.Lock()
	if w.activeRequestID != requestID || w.step != model.StepAnalyzing {
		w.mu.Unlock()
		w.logger.Debug("discarding analysis failure for superseded request", "request_id", requestID)
		return
	}
	w.toErrorLocked(err)
	w.mu.Unlock()
	w.publish()
}

// clearError returns to idle if the user has taken no action since the
// error was published.
func (w *Workflow) clearError() {
	w.mu.Lock()
	if w.step != model.StepError {
		w.mu.Unlock()
		return
	}
	w.resetLocked()
	w.setStepLocked(model.StepIdle)
	w.mu.Unlock()
	w.publish()
}

// setStepLocked transitions the step and cancels any pending error timer.
func (w *Workflow) setStepLocked(step model.RecordingStep) {
	if w.errorTimer != nil && step != model.StepError {
		w.errorTimer.Stop()
		w.errorTimer = nil
	}
	w.step = step
}

// resetLocked clears per-flow state and invalidates the active request so
// any in-flight analysis result is discarded on arrival.
func (w *Workflow) resetLocked() {
	w.transcript = ""
	w.errorMessage = ""
	w.progressLabel = ""
	w.candidates = nil
	w.activeRequestID = uuid.Nil
}

// publish pushes a snapshot, replacing an unread one.
func (w *Workflow) publish() {
	state := w.Snapshot()
	select {
	case w.updates <- state:
	default:
		select {
		case <-w.updates:
		default:
		}
		select {
		case w.updates <- state:
		default:
		}
	}
}
