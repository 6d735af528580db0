package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	defaultSampleRate      = 16000
	defaultFramesPerBuffer = 1024
	inputChannels          = 1
)

// PortAudioEngine drives the default input device through PortAudio.
type PortAudioEngine struct {
	stream      *portaudio.Stream
	sampleRate  int
	frames      int
	initialized bool
	mu          sync.Mutex
}

// NewPortAudioEngine creates an engine for the default input device.
func NewPortAudioEngine(sampleRate, framesPerBuffer int) *PortAudioEngine {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &PortAudioEngine{sampleRate: sampleRate, frames: framesPerBuffer}
}

// Open initializes PortAudio and opens the default input stream with tap
// as the buffer callback.
func (e *PortAudioEngine) Open(tap func(samples []int16)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream != nil {
		return fmt.Errorf("audio stream already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	e.initialized = true

	stream, err := portaudio.OpenDefaultStream(inputChannels, 0, float64(e.sampleRate), e.frames, func(in []int16) {
		tap(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		e.initialized = false
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	e.stream = stream
	return nil
}

// Start begins buffer delivery.
func (e *PortAudioEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return fmt.Errorf("audio stream not open")
	}
	if err := e.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	return nil
}

// Stop halts buffer delivery.
func (e *PortAudioEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return nil
	}
	if err := e.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	return nil
}

// Close releases the stream and terminates PortAudio.
func (e *PortAudioEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	if e.stream != nil {
		if err := e.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audio stream: %w", err)
		}
		e.stream = nil
	}
	if e.initialized {
		if err := portaudio.Terminate(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to terminate PortAudio: %w", err)
		}
		e.initialized = false
	}
	return firstErr
}
