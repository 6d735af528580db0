package model

import "time"

// Transcript is one revision of the streaming recognizer output. Partial
// revisions arrive repeatedly during a session; exactly one final revision
// is produced at stop.
type Transcript struct {
	Text    string
	IsFinal bool
}

// VoiceRecording is the immutable snapshot of a finished capture session.
type VoiceRecording struct {
	StartedAt time.Time
	Text      string
	Duration  time.Duration
}
