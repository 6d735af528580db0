// Package audio provides small helpers for PCM sample handling.
package audio

import (
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

const bitsPerSample = 16

// WriteWAV encodes mono 16-bit PCM samples as a WAV stream.
func WriteWAV(w io.Writer, samples []int16, sampleRate int) error {
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), bitsPerSample)

	wavSamples := make([]wav.Sample, len(samples))
	for i, s := range samples {
		wavSamples[i].Values[0] = int(s)
	}

	if err := writer.WriteSamples(wavSamples); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}
