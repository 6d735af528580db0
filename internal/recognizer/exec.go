package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/audio"
)

// ExecConfig configures a recognizer that shells out to a whisper-style
// transcription CLI.
type ExecConfig struct {
	// Command is the transcription command line, e.g. "whisper-cli --json".
	Command   string
	ModelPath string
	Language  string
	// PartialInterval sets how often buffered audio is re-transcribed for
	// partial results. Zero disables partials.
	PartialInterval time.Duration
	SampleRate      int
}

// ExecRecognizer transcribes by invoking an external command on the
// buffered audio: periodically for partial revisions and once more at
// end of input for the final revision.
type ExecRecognizer struct {
	logger *slog.Logger
	cfg    ExecConfig
	args   []string
}

// NewExecRecognizer parses the command line and returns the recognizer.
func NewExecRecognizer(cfg ExecConfig, logger *slog.Logger) (*ExecRecognizer, error) {
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcription command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcription command is empty")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRecognizer{cfg: cfg, args: args, logger: logger}, nil
}

// Available reports whether the transcription binary can be found.
func (r *ExecRecognizer) Available() bool {
	_, err := exec.LookPath(r.args[0])
	return err == nil
}

// Open starts a streaming request backed by repeated command invocations.
func (r *ExecRecognizer) Open(ctx context.Context) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &execStream{
		rec:    r,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}
	if r.cfg.PartialInterval > 0 {
		go s.partialLoop()
	}
	return s, nil
}

type execStream struct {
	rec    *ExecRecognizer
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu       sync.Mutex
	buf      []int16
	ended    bool
	inflight bool

	terminal sync.Once
}

func (s *execStream) Events() <-chan Event {
	return s.events
}

func (s *execStream) Feed(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.buf = append(s.buf, samples...)
}

func (s *execStream) EndAudio() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	samples := append([]int16(nil), s.buf...)
	s.mu.Unlock()

	go s.finalPass(samples)
}

func (s *execStream) Cancel() {
	s.cancel()
	s.emitTerminal(Event{Err: &Error{
		Domain:  DomainRecognition,
		Code:    CodeCanceled,
		Message: "recognition request canceled",
	}})
}

func (s *execStream) finalPass(samples []int16) {
	if len(samples) == 0 {
		s.emitTerminal(Event{Err: &Error{
			Domain:  DomainRecognition,
			Code:    CodeNoSpeech,
			Message: "no speech detected",
		}})
		return
	}

	text, err := s.rec.transcribe(s.ctx, samples)
	switch {
	case s.ctx.Err() != nil:
		s.emitTerminal(Event{Err: &Error{
			Domain:  DomainRecognition,
			Code:    CodeCanceled,
			Message: "recognition request canceled",
		}})
	case err != nil:
		s.emitTerminal(Event{Err: &Error{
			Domain:  DomainTransport,
			Code:    CodeBackendFailure,
			Message: err.Error(),
		}})
	case strings.TrimSpace(text) == "":
		s.emitTerminal(Event{Err: &Error{
			Domain:  DomainRecognition,
			Code:    CodeNoSpeech,
			Message: "no speech detected",
		}})
	default:
		s.emitTerminal(Event{Text: text, Final: true})
	}
}

func (s *execStream) partialLoop() {
	ticker := time.NewTicker(s.rec.cfg.PartialInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.ended || s.inflight || len(s.buf) == 0 {
			s.mu.Unlock()
			continue
		}
		s.inflight = true
		samples := append([]int16(nil), s.buf...)
		s.mu.Unlock()

		text, err := s.rec.transcribe(s.ctx, samples)

		s.mu.Lock()
		s.inflight = false
		ended := s.ended
		s.mu.Unlock()

		if err != nil {
			s.rec.logger.Debug("partial transcription pass failed", "error", err)
			continue
		}
		if ended || strings.TrimSpace(text) == "" {
			continue
		}
		select {
		case s.events <- Event{Text: text}:
		default:
		}
	}
}

func (s *execStream) emitTerminal(ev Event) {
	s.terminal.Do(func() {
		s.events <- ev
		close(s.events)
		s.cancel()
	})
}

// transcribe writes the samples to a temporary WAV file and runs the
// configured command against it.
func (r *ExecRecognizer) transcribe(ctx context.Context, samples []int16) (string, error) {
	file, err := os.CreateTemp("", "audexp_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	}()

	if err := audio.WriteWAV(file, samples, r.cfg.SampleRate); err != nil {
		return "", err
	}

	args := append([]string{}, r.args[1:]...)
	args = append(args, "--audio", file.Name())
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Language != "" {
		args = append(args, "--language", r.cfg.Language)
	}

	cmd := exec.CommandContext(ctx, r.args[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcription command failed: %w: %s", err, stderr.String())
	}

	// Prefer a JSON {"text": ...} payload; fall back to raw output.
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err == nil && resp.Text != "" {
		return strings.TrimSpace(resp.Text), nil
	}
	return strings.TrimSpace(stdout.String()), nil
}
