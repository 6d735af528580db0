package recognizer

import (
	"context"
	"sync"
	"time"
)

// MockRecognizer replays a scripted transcription. It backs tests and the
// --mock flag of the record command.
type MockRecognizer struct {
	FinalErr     *Error
	FinalText    string
	Partials     []string
	PartialDelay time.Duration
	Unavailable  bool
}

// Available reports the scripted availability.
func (m *MockRecognizer) Available() bool {
	return !m.Unavailable
}

// Open returns a stream that emits the scripted partials once audio ends,
// followed by the scripted final transcript or error.
func (m *MockRecognizer) Open(_ context.Context) (Stream, error) {
	return &mockStream{
		script: m,
		events: make(chan Event, len(m.Partials)+2),
	}, nil
}

type mockStream struct {
	script *MockRecognizer
	events chan Event

	mu     sync.Mutex
	closed bool
}

func (s *mockStream) Events() <-chan Event { return s.events }

func (s *mockStream) Feed(_ []int16) {}

func (s *mockStream) EndAudio() {
	go func() {
		for _, p := range s.script.Partials {
			if s.script.PartialDelay > 0 {
				time.Sleep(s.script.PartialDelay)
			}
			s.send(Event{Text: p})
		}
		if s.script.PartialDelay > 0 {
			time.Sleep(s.script.PartialDelay)
		}
		if s.script.FinalErr != nil {
			s.finish(Event{Err: s.script.FinalErr})
		} else {
			s.finish(Event{Text: s.script.FinalText, Final: true})
		}
	}()
}

func (s *mockStream) Cancel() {
	s.finish(Event{Err: &Error{
		Domain:  DomainRecognition,
		Code:    CodeCanceled,
		Message: "recognition request canceled",
	}})
}

func (s *mockStream) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func (s *mockStream) finish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.events <- ev
	close(s.events)
}
