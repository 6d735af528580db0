package capture

// NullEngine is an Engine that produces no audio. It pairs with a scripted
// recognizer to exercise the recording flow on machines without a
// microphone.
type NullEngine struct{}

// Open accepts the tap and discards it.
func (NullEngine) Open(_ func(samples []int16)) error { return nil }

// Start is a no-op.
func (NullEngine) Start() error { return nil }

// Stop is a no-op.
func (NullEngine) Stop() error { return nil }

// Close is a no-op.
func (NullEngine) Close() error { return nil }
