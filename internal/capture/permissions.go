package capture

// StaticPermissions is a fixed permission grant, typically loaded from
// configuration. Both permissions are independently grantable; absence of
// either blocks recording and is not retried automatically.
type StaticPermissions struct {
	Microphone bool
	Speech     bool
}

// MicrophoneGranted reports the microphone permission.
func (p StaticPermissions) MicrophoneGranted() bool { return p.Microphone }

// SpeechGranted reports the speech transcription permission.
func (p StaticPermissions) SpeechGranted() bool { return p.Speech }
