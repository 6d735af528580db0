// Package capture manages a single recording+transcription session
// end-to-end: hardware engine, buffer tap, and streaming recognition
// request, with deterministic teardown on every exit path.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/audio"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/recognizer"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"
)

// EventKind distinguishes session events.
type EventKind int

const (
	// EventTranscript carries a partial or final transcript revision.
	EventTranscript EventKind = iota
	// EventTerminal carries the session outcome: a recording or an error.
	EventTerminal
)

// Event is one session notification. Terminal events carry either a
// completed recording or the error that ended the session.
type Event struct {
	Err        error
	Recording  *model.VoiceRecording
	Transcript model.Transcript
	Kind       EventKind
}

// Config holds capture session settings.
type Config struct {
	// SaveAudioDir, when set, retains the captured PCM as a WAV file.
	SaveAudioDir string
	SampleRate   int
	// StopGrace bounds how long stop waits for the recognizer's final
	// transcript before tearing down anyway. The final (most accurate)
	// segment frequently arrives after input ends; without the grace
	// callers observe a truncated transcript.
	StopGrace time.Duration
	// LevelSmoothing is the weight of the newest RMS value in the
	// published audio level.
	LevelSmoothing float64
}

const (
	defaultStopGrace      = 300 * time.Millisecond
	defaultLevelSmoothing = 0.3
)

// Session owns the microphone pipeline and one streaming recognition
// request. The four resource flags mirror the underlying objects and are
// the single source of truth the session reasons about; callbacks
// re-validate them (and the generation counter) under the lock before
// acting, so late callbacks after teardown are no-ops.
type Session struct {
	engine Engine
	rec    recognizer.Recognizer
	perms  service.Permissions
	logger *slog.Logger
	cfg    Config

	events chan Event
	levels chan float64

	mu         sync.Mutex
	state      model.SessionState
	generation uint64

	engineRunning    bool
	tapInstalled     bool
	hasActiveRequest bool
	hasActiveTask    bool

	stream     recognizer.Stream
	transcript string
	finalized  bool
	startedAt  time.Time
	level      float64
	captured   []int16
	stopTimer  *time.Timer
}

// NewSession creates an idle capture session.
func NewSession(engine Engine, rec recognizer.Recognizer, perms service.Permissions, cfg Config, logger *slog.Logger) *Session {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	if cfg.LevelSmoothing <= 0 || cfg.LevelSmoothing >= 1 {
		cfg.LevelSmoothing = defaultLevelSmoothing
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		engine: engine,
		rec:    rec,
		perms:  perms,
		cfg:    cfg,
		logger: logger,
		state:  model.SessionIdle,
		events: make(chan Event, 16),
		levels: make(chan float64, 1),
	}
}

// Events delivers transcript revisions and the terminal outcome. The
// channel is never closed; a session can be started again after it
// completes.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Levels delivers the smoothed audio level in [0,1]. Values are
// latest-wins: a slow consumer sees only the most recent level.
func (s *Session) Levels() <-chan float64 {
	return s.levels
}

// State returns the current session state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start configures the audio pipeline, opens a streaming recognition
// request with partial results enabled, installs exactly one buffer tap,
// and starts the engine. If a previous session's resources are not fully
// torn down it forces a full cleanup first, so starting twice never
// produces two live taps. Any failure tears everything down before
// returning.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.engineRunning || s.tapInstalled || s.hasActiveRequest || s.hasActiveTask {
		s.logger.Warn("starting with leftover resources, forcing teardown",
			"engine_running", s.engineRunning,
			"tap_installed", s.tapInstalled)
		s.finalized = true
		refs := s.releaseLocked()
		s.mu.Unlock()
		// Release must finish before the engine reopens; a still-open
		// stream makes the new Open fail.
		refs.release(s.logger)
	} else {
		s.mu.Unlock()
	}

	if !s.perms.MicrophoneGranted() || !s.perms.SpeechGranted() {
		return fmt.Errorf("%w: microphone and speech permissions are both required", common.ErrPermissionDenied)
	}
	if !s.rec.Available() {
		return common.ErrRecognizerUnavailable
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.transcript = ""
	s.finalized = false
	s.captured = nil
	s.level = 0
	s.startedAt = time.Now()
	s.mu.Unlock()

	stream, err := s.rec.Open(ctx)
	if err != nil {
		s.teardown(gen)
		return fmt.Errorf("failed to open recognition request: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.hasActiveRequest = true
	s.hasActiveTask = true
	s.mu.Unlock()

	go s.pump(gen, stream)

	if err := s.engine.Open(func(samples []int16) { s.tap(gen, samples) }); err != nil {
		s.teardown(gen)
		return fmt.Errorf("failed to install buffer tap: %w", err)
	}
	s.mu.Lock()
	s.tapInstalled = true
	s.mu.Unlock()

	if err := s.engine.Start(); err != nil {
		s.teardown(gen)
		return fmt.Errorf("failed to start audio engine: %w", err)
	}

	s.mu.Lock()
	s.engineRunning = true
	s.state = model.SessionRecording
	s.mu.Unlock()

	s.logger.Info("capture session started", "generation", gen)
	return nil
}

// Stop ends the recognition request's input, then tears down after a
// bounded grace delay (or as soon as the final transcript lands). A
// second Stop is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != model.SessionRecording {
		s.mu.Unlock()
		return
	}
	s.state = model.SessionProcessing
	gen := s.generation
	stream := s.stream
	s.stopTimer = time.AfterFunc(s.cfg.StopGrace, func() {
		s.finalize(gen)
	})
	s.mu.Unlock()

	// Signal "no more audio" first so the recognizer can finish
	// processing buffered input.
	if stream != nil {
		stream.EndAudio()
	}
}

// tap is the engine buffer callback. It forwards buffers to the
// recognition request and publishes a smoothed audio level. It runs on
// the audio thread and must not block.
func (s *Session) tap(gen uint64, samples []int16) {
	s.mu.Lock()
	if gen != s.generation || s.state != model.SessionRecording {
		s.mu.Unlock()
		return
	}
	rms := rootMeanSquare(samples)
	s.level = s.cfg.LevelSmoothing*rms + (1-s.cfg.LevelSmoothing)*s.level
	level := s.level
	if s.cfg.SaveAudioDir != "" {
		s.captured = append(s.captured, samples...)
	}
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		stream.Feed(samples)
	}

	// Latest-wins publication: drop the stale value if nobody read it.
	select {
	case s.levels <- level:
	default:
		select {
		case <-s.levels:
		default:
		}
		select {
		case s.levels <- level:
		default:
		}
	}
}

// pump consumes recognition events for one generation.
func (s *Session) pump(gen uint64, stream recognizer.Stream) {
	for ev := range stream.Events() {
		if ev.Err != nil {
			if ClassifyError(ev.Err.Domain, ev.Err.Code) == Ignore {
				s.logger.Debug("ignoring transient recognition error",
					"domain", ev.Err.Domain,
					"code", ev.Err.Code,
					"message", ev.Err.Message)
				continue
			}
			s.fail(gen, ev.Err)
			return
		}
		s.onTranscript(gen, ev.Text, ev.Final)
	}
}

func (s *Session) onTranscript(gen uint64, text string, final bool) {
	s.mu.Lock()
	if gen != s.generation || s.finalized {
		s.mu.Unlock()
		return
	}
	s.transcript = text
	// A final revision completes the session: immediately when stop is
	// already waiting out its grace delay, and autonomously when the
	// recognizer decides the utterance ended on its own.
	finishNow := final && (s.state == model.SessionProcessing || s.state == model.SessionRecording)
	s.mu.Unlock()

	s.publish(Event{Kind: EventTranscript, Transcript: model.Transcript{Text: text, IsFinal: final}})

	// The final revision arrived; no reason to wait out the grace delay.
	if finishNow {
		s.finalize(gen)
	}
}

// finalize performs the full teardown and emits the completed recording.
// It is idempotent per generation.
func (s *Session) finalize(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	recording := model.VoiceRecording{
		StartedAt: s.startedAt,
		Text:      s.transcript,
		Duration:  time.Since(s.startedAt),
	}
	captured := s.captured
	s.captured = nil
	s.state = model.SessionCompleted
	refs := s.releaseLocked()
	s.mu.Unlock()

	refs.release(s.logger)
	s.saveAudio(captured)

	s.logger.Info("capture session completed",
		"generation", gen,
		"duration", recording.Duration,
		"transcript_length", len(recording.Text))
	s.publish(Event{Kind: EventTerminal, Recording: &recording})
}

// fail tears down and emits a terminal error. Teardown is unconditional
// on every error path.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation || s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.state = model.SessionError
	s.captured = nil
	refs := s.releaseLocked()
	s.mu.Unlock()

	refs.release(s.logger)

	s.logger.Error("capture session failed", "generation", gen, "error", err)
	s.publish(Event{Kind: EventTerminal, Err: err})
}

// teardown releases resources for a failed start without emitting events.
func (s *Session) teardown(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = model.SessionIdle
	refs := s.releaseLocked()
	s.mu.Unlock()
	refs.release(s.logger)
}

// resourceRefs collects handles cleared under the lock so the blocking
// release calls can run outside it.
type resourceRefs struct {
	engine        Engine
	stream        recognizer.Stream
	engineRunning bool
	tapInstalled  bool
}

func (s *Session) releaseLocked() resourceRefs {
	refs := resourceRefs{
		engine:        s.engine,
		stream:        s.stream,
		engineRunning: s.engineRunning,
		tapInstalled:  s.tapInstalled,
	}
	s.engineRunning = false
	s.tapInstalled = false
	s.hasActiveRequest = false
	s.hasActiveTask = false
	s.stream = nil
	return refs
}

func (r resourceRefs) release(logger *slog.Logger) {
	if r.engineRunning {
		if err := r.engine.Stop(); err != nil {
			logger.Warn("failed to stop audio engine", "error", err)
		}
	}
	if r.tapInstalled {
		if err := r.engine.Close(); err != nil {
			logger.Warn("failed to close audio engine", "error", err)
		}
	}
	if r.stream != nil {
		r.stream.Cancel()
	}
}

func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("dropping session event, subscriber too slow", "kind", ev.Kind)
	}
}

func (s *Session) saveAudio(samples []int16) {
	if s.cfg.SaveAudioDir == "" || len(samples) == 0 {
		return
	}
	if err := os.MkdirAll(s.cfg.SaveAudioDir, 0o750); err != nil {
		s.logger.Warn("failed to create audio directory", "error", err)
		return
	}
	path := filepath.Join(s.cfg.SaveAudioDir, fmt.Sprintf("recording-%s.wav", uuid.NewString()))
	f, err := os.Create(path) // #nosec G304 -- path built from config + uuid
	if err != nil {
		s.logger.Warn("failed to create audio file", "error", err)
		return
	}
	defer func() { _ = f.Close() }()
	if err := audio.WriteWAV(f, samples, s.cfg.SampleRate); err != nil {
		s.logger.Warn("failed to write audio file", "path", path, "error", err)
		return
	}
	s.logger.Debug("retained recording audio", "path", path, "samples", len(samples))
}

// rootMeanSquare computes the normalized RMS of one buffer, in [0,1].
func rootMeanSquare(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v) / math.MaxInt16
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
