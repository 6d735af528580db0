package capture

// Engine abstracts the hardware audio input pipeline. Open installs the
// buffer tap, Start begins delivering buffers to it, Stop halts delivery,
// and Close releases the device. Implementations deliver buffers on their
// own thread; the tap must not block.
type Engine interface {
	Open(tap func(samples []int16)) error
	Start() error
	Stop() error
	Close() error
}
