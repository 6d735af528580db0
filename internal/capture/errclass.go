package capture

import "github.com/BufaXiwang/AudioExpenseTracker/internal/recognizer"

// Decision is the outcome of classifying a recognition error.
type Decision int

const (
	// Ignore marks an expected transient error that is logged and absorbed.
	Ignore Decision = iota
	// Surface marks an error that must terminate the session.
	Surface
)

// ClassifyError decides whether a recognizer error is benign noise or a
// real failure. Streaming recognizers emit terminal errors as part of
// normal shutdown: the request's own cancellation, "no speech" reported
// after input already ended, and a documented transient busy condition.
func ClassifyError(domain string, code int) Decision {
	if domain != recognizer.DomainRecognition {
		return Surface
	}
	switch code {
	case recognizer.CodeCanceled, recognizer.CodeNoSpeech, recognizer.CodeServiceBusy:
		return Ignore
	default:
		return Surface
	}
}
