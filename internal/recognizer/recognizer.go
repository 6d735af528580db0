// Package recognizer abstracts streaming speech-to-text backends.
package recognizer

import (
	"context"
	"fmt"
)

// Error domains reported alongside recognition events.
const (
	// DomainRecognition covers errors raised by the recognition backend itself.
	DomainRecognition = "recognition"
	// DomainTransport covers process or I/O failures reaching the backend.
	DomainTransport = "transport"
)

// Codes within DomainRecognition. Streaming recognizers emit some of these
// as part of normal shutdown; the capture layer decides which to surface.
const (
	// CodeCanceled is reported when the caller cancels its own request.
	CodeCanceled = 301
	// CodeNoSpeech is reported when no speech was detected, typically
	// after audio input has already ended.
	CodeNoSpeech = 1110
	// CodeServiceBusy is a documented transient backend condition.
	CodeServiceBusy = 1101
	// CodeBackendFailure is a non-transient backend failure.
	CodeBackendFailure = 1107
)

// Error is a structured recognition error with a domain and code the
// error classifier can reason about.
type Error struct {
	Domain  string
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Domain, e.Code, e.Message)
}

// Event is one callback from a recognition stream. Either Transcript
// fields are set or Err is set; Final marks the terminal transcript.
type Event struct {
	Err   *Error
	Text  string
	Final bool
}

// Stream is one live recognition request. Feed accepts audio buffers,
// EndAudio signals that no more audio will arrive (letting the backend
// finish processing buffered input), and Cancel aborts outright. Events
// delivers 0..N partial results and exactly one terminal event (final
// transcript or error), after which the channel is closed.
type Stream interface {
	Feed(samples []int16)
	EndAudio()
	Cancel()
	Events() <-chan Event
}

// Recognizer opens recognition streams.
type Recognizer interface {
	// Available reports whether the backend can serve requests right now.
	Available() bool
	// Open starts a new streaming request with partial results enabled.
	Open(ctx context.Context) (Stream, error)
}
