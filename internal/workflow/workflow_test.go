package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/capture"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"
)

// fakeSession scripts the capture collaborator.
type fakeSession struct {
	startErr error
	events   chan capture.Event

	mu     sync.Mutex
	starts int
	stops  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan capture.Event, 16)}
}

func (s *fakeSession) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSession) Events() <-chan capture.Event { return s.events }

func (s *fakeSession) emitRecording(text string) {
	s.events <- capture.Event{
		Kind:      capture.EventTerminal,
		Recording: &model.VoiceRecording{StartedAt: time.Now(), Text: text, Duration: 2 * time.Second},
	}
}

// fakeAnalyzer scripts the analysis collaborator.
type fakeAnalyzer struct {
	fn func(model.AnalysisRequest) (model.AnalysisResult, error)
}

func (a *fakeAnalyzer) Analyze(_ context.Context, request model.AnalysisRequest) (model.AnalysisResult, error) {
	return a.fn(request)
}

// fakeStorage saves in memory and fails for scripted titles.
type fakeStorage struct {
	mu        sync.Mutex
	saved     []model.ExpenseCandidate
	failTitle string
}

func (s *fakeStorage) Save(_ context.Context, candidate model.ExpenseCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTitle != "" && candidate.Title == s.failTitle {
		return errors.New("disk full")
	}
	s.saved = append(s.saved, candidate)
	return nil
}

func (s *fakeStorage) savedTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.saved))
	for _, c := range s.saved {
		titles = append(titles, c.Title)
	}
	return titles
}

func (s *fakeStorage) Update(_ context.Context, _ model.ExpenseCandidate) error { return nil }
func (s *fakeStorage) Delete(_ context.Context, _ uuid.UUID) error             { return nil }
func (s *fakeStorage) FetchAll(_ context.Context, _ service.ExpenseFilter) ([]model.ExpenseCandidate, error) {
	return nil, nil
}
func (s *fakeStorage) FetchRange(_ context.Context, _, _ time.Time) ([]model.ExpenseCandidate, error) {
	return nil, nil
}
func (s *fakeStorage) Search(_ context.Context, _ string) ([]model.ExpenseCandidate, error) {
	return nil, nil
}
func (s *fakeStorage) Migrate(_ context.Context) error { return nil }
func (s *fakeStorage) Close() error                    { return nil }

func singleExpenseResult(request model.AnalysisRequest) (model.AnalysisResult, error) {
	amount := decimal.RequireFromString("25.00")
	return model.AnalysisResult{
		OriginalText:    request.VoiceText,
		ExtractedAmount: &amount,
		Category:        model.CategoryFood,
		Title:           "午餐",
		Confidence:      0.95,
		Timestamp:       request.Timestamp,
	}, nil
}

func multiExpenseResult(request model.AnalysisRequest) (model.AnalysisResult, error) {
	result, _ := singleExpenseResult(request)
	altAmount := decimal.RequireFromString("15.00")
	result.Alternatives = []model.AlternativeInterpretation{
		{Amount: &altAmount, Category: model.CategoryTransport, Title: "打车", Confidence: 0.9},
	}
	return result, nil
}

// startWorkflow builds a workflow around the fakes and runs its event loop
// until the test ends.
func startWorkflow(t *testing.T, session *fakeSession, analyzer *fakeAnalyzer, storage *fakeStorage) *Workflow {
	t.Helper()
	w := New(session, analyzer, storage, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func waitForStep(t *testing.T, w *Workflow, step model.RecordingStep) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state := w.Snapshot()
		if state.Step == step {
			return state
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for step %v, currently %v", step, w.Snapshot().Step)
	return State{}
}

func TestWorkflowSingleExpenseFlow(t *testing.T) {
	session := newFakeSession()
	storage := &fakeStorage{}
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, storage)

	w.StartRecording(context.Background())
	waitForStep(t, w, model.StepRecording)

	w.StopRecording()
	waitForStep(t, w, model.StepProcessing)

	session.emitRecording("我今天花了25元买午餐")
	state := waitForStep(t, w, model.StepConfirmingExpense)

	require.Len(t, state.Candidates, 1)
	c := state.Candidates[0]
	assert.Equal(t, "25", c.Amount.String())
	assert.Equal(t, model.CategoryFood, c.Category)
	assert.Equal(t, "午餐", c.Title)
	assert.Equal(t, "我今天花了25元买午餐", c.OriginalVoiceText)
	assert.Empty(t, state.ErrorMessage)

	w.Confirm(context.Background(), c)
	waitForStep(t, w, model.StepCompleted)
	assert.Equal(t, []string{"午餐"}, storage.savedTitles())
}

func TestWorkflowEmptyTranscriptReturnsToIdle(t *testing.T) {
	session := newFakeSession()
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("   ")

	state := waitForStep(t, w, model.StepIdle)
	assert.Empty(t, state.ErrorMessage)
	assert.Empty(t, state.Candidates)
}

func TestWorkflowInvalidResultShowsError(t *testing.T) {
	session := newFakeSession()
	analyzer := &fakeAnalyzer{fn: func(request model.AnalysisRequest) (model.AnalysisResult, error) {
		// The fallback shape: no amount, low-stakes guess.
		return model.AnalysisResult{
			OriginalText: request.VoiceText,
			Category:     model.CategoryOther,
			Title:        "待补全支出",
			Confidence:   0.5,
		}, nil
	}}
	w := startWorkflow(t, session, analyzer, &fakeStorage{})

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("呃这个那个")

	state := waitForStep(t, w, model.StepError)
	assert.Equal(t, msgInvalidResult, state.ErrorMessage)
}

func TestWorkflowErrorAutoClears(t *testing.T) {
	session := newFakeSession()
	analyzer := &fakeAnalyzer{fn: func(model.AnalysisRequest) (model.AnalysisResult, error) {
		return model.AnalysisResult{}, common.ErrMissingAPIKey
	}}
	w := startWorkflow(t, session, analyzer, &fakeStorage{})
	w.errorClearDelay = 30 * time.Millisecond

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("午餐25元")

	state := waitForStep(t, w, model.StepError)
	assert.Equal(t, msgMissingAPIKey, state.ErrorMessage)

	state = waitForStep(t, w, model.StepIdle)
	assert.Empty(t, state.ErrorMessage)
}

func TestWorkflowMultipleExpenses(t *testing.T) {
	session := newFakeSession()
	storage := &fakeStorage{}
	w := startWorkflow(t, session, &fakeAnalyzer{fn: multiExpenseResult}, storage)

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("花了25元午餐，又花了15元打车")

	state := waitForStep(t, w, model.StepSelectingMultipleExpenses)
	require.Len(t, state.Candidates, 2)
	assert.Equal(t, "午餐", state.Candidates[0].Title)
	assert.Equal(t, "打车", state.Candidates[1].Title)

	w.ConfirmMultiple(context.Background(), state.Candidates)
	waitForStep(t, w, model.StepCompleted)
	assert.ElementsMatch(t, []string{"午餐", "打车"}, storage.savedTitles())
}

func TestWorkflowConfirmMultiplePartialFailure(t *testing.T) {
	session := newFakeSession()
	storage := &fakeStorage{failTitle: "打车"}
	w := startWorkflow(t, session, &fakeAnalyzer{fn: multiExpenseResult}, storage)

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("花了25元午餐，又花了15元打车")

	state := waitForStep(t, w, model.StepSelectingMultipleExpenses)
	require.Len(t, state.Candidates, 2)

	w.ConfirmMultiple(context.Background(), state.Candidates)
	state = waitForStep(t, w, model.StepError)

	// The first save sticks; there is no rollback on partial failure.
	assert.Equal(t, []string{"午餐"}, storage.savedTitles())
	assert.Contains(t, state.ErrorMessage, "打车")
	assert.Contains(t, state.ErrorMessage, "已保存 1 笔")
}

func TestWorkflowInvalidAlternativeSkipped(t *testing.T) {
	session := newFakeSession()
	analyzer := &fakeAnalyzer{fn: func(request model.AnalysisRequest) (model.AnalysisResult, error) {
		result, _ := singleExpenseResult(request)
		result.Alternatives = []model.AlternativeInterpretation{
			{Category: model.CategoryTransport, Title: "无金额"},
		}
		return result, nil
	}}
	w := startWorkflow(t, session, analyzer, &fakeStorage{})

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("午餐25元")

	// The lone invalid alternative drops out, leaving a single candidate.
	state := waitForStep(t, w, model.StepConfirmingExpense)
	assert.Len(t, state.Candidates, 1)
}

func TestWorkflowSupersededAnalysisDiscarded(t *testing.T) {
	session := newFakeSession()
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{fn: func(request model.AnalysisRequest) (model.AnalysisResult, error) {
		<-release
		return singleExpenseResult(request)
	}}
	w := startWorkflow(t, session, analyzer, &fakeStorage{})

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("午餐25元")
	waitForStep(t, w, model.StepAnalyzing)

	// The user abandons the flow while analysis is still in flight.
	w.Cancel()
	waitForStep(t, w, model.StepIdle)
	close(release)

	// The stale result must not resurrect the flow.
	time.Sleep(50 * time.Millisecond)
	state := w.Snapshot()
	assert.Equal(t, model.StepIdle, state.Step)
	assert.Empty(t, state.Candidates)
}

func TestWorkflowCancelStopsLiveSession(t *testing.T) {
	session := newFakeSession()
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	waitForStep(t, w, model.StepRecording)

	// Cancelling a live recording must release the microphone, not just
	// reset the published state.
	w.Cancel()
	waitForStep(t, w, model.StepIdle)

	session.mu.Lock()
	stops := session.stops
	session.mu.Unlock()
	assert.Equal(t, 1, stops)

	// The session's terminal event for the stopped recording must not
	// resurrect the flow.
	session.emitRecording("我今天花了25元买午餐")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, model.StepIdle, w.Snapshot().Step)
}

func TestWorkflowSupersededAnalysisFailureDiscarded(t *testing.T) {
	session := newFakeSession()
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{fn: func(model.AnalysisRequest) (model.AnalysisResult, error) {
		<-release
		return model.AnalysisResult{}, errors.New("connection reset")
	}}
	w := startWorkflow(t, session, analyzer, &fakeStorage{})

	w.StartRecording(context.Background())
	w.StopRecording()
	session.emitRecording("午餐25元")
	waitForStep(t, w, model.StepAnalyzing)

	w.Cancel()
	waitForStep(t, w, model.StepIdle)
	close(release)

	// The stale failure must not publish an error onto the fresh flow.
	time.Sleep(50 * time.Millisecond)
	state := w.Snapshot()
	assert.Equal(t, model.StepIdle, state.Step)
	assert.Empty(t, state.ErrorMessage)
}

func TestWorkflowCaptureErrorSurfaces(t *testing.T) {
	session := newFakeSession()
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	waitForStep(t, w, model.StepRecording)
	session.events <- capture.Event{Kind: capture.EventTerminal, Err: errors.New("stream torn down")}

	state := waitForStep(t, w, model.StepError)
	assert.Equal(t, msgRecognitionFailed, state.ErrorMessage)
}

func TestWorkflowStartFailureMapsMessage(t *testing.T) {
	session := newFakeSession()
	session.startErr = common.ErrPermissionDenied
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	state := waitForStep(t, w, model.StepError)
	assert.Equal(t, msgPermissionDenied, state.ErrorMessage)
}

func TestWorkflowStartIgnoredWhileBusy(t *testing.T) {
	session := newFakeSession()
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	waitForStep(t, w, model.StepRecording)

	// A second start while recording must not restart the session.
	w.StartRecording(context.Background())

	session.mu.Lock()
	starts := session.starts
	session.mu.Unlock()
	assert.Equal(t, 1, starts)
	assert.Equal(t, model.StepRecording, w.Snapshot().Step)
}

func TestWorkflowTranscriptUpdates(t *testing.T) {
	session := newFakeSession()
	w := startWorkflow(t, session, &fakeAnalyzer{fn: singleExpenseResult}, &fakeStorage{})

	w.StartRecording(context.Background())
	waitForStep(t, w, model.StepRecording)

	session.events <- capture.Event{Kind: capture.EventTranscript, Transcript: model.Transcript{Text: "我今天"}}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w.Snapshot().Transcript == "我今天" {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("transcript never updated, state %+v", w.Snapshot())
}

func TestAnalysisErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing api key", common.ErrMissingAPIKey, msgMissingAPIKey},
		{"invalid base url", common.ErrInvalidBaseURL, msgInvalidBaseURL},
		{"rate limited", common.ErrRateLimit, msgRateLimited},
		{"network failure", errors.New("connection refused"), msgNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analysisErrorMessage(tt.err))
		})
	}
}
