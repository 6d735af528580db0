package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/recognizer"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		code   int
		want   Decision
	}{
		{"canceled request", recognizer.DomainRecognition, recognizer.CodeCanceled, Ignore},
		{"no speech detected", recognizer.DomainRecognition, recognizer.CodeNoSpeech, Ignore},
		{"service busy", recognizer.DomainRecognition, recognizer.CodeServiceBusy, Ignore},
		{"backend failure", recognizer.DomainRecognition, recognizer.CodeBackendFailure, Surface},
		{"unknown recognition code", recognizer.DomainRecognition, 9999, Surface},
		{"transport canceled code", recognizer.DomainTransport, recognizer.CodeCanceled, Surface},
		{"transport failure", recognizer.DomainTransport, recognizer.CodeBackendFailure, Surface},
		{"unknown domain", "SomeOtherDomain", recognizer.CodeNoSpeech, Surface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.domain, tt.code))
		})
	}
}
