package audioio

// Framer re-chunks arbitrary device buffers into fixed-size frames.
//
// Devices do not always honor the requested period size, so bytes are
// carried over between callbacks until a full frame is available.
// Framer is not safe for concurrent use; it belongs to one callback.
type Framer struct {
	size    int
	pending []byte
	seq     uint64
}

// NewFramer creates a framer emitting frames of frameBytes bytes.
func NewFramer(frameBytes int) *Framer {
	if frameBytes <= 0 {
		frameBytes = DefaultFrameSamples * BytesPerSample
	}
	return &Framer{
		size:    frameBytes,
		pending: make([]byte, 0, frameBytes*2),
	}
}

// Write appends data and calls emit for each complete frame, in order.
// Every emitted frame owns its own copy of the bytes.
func (f *Framer) Write(data []byte, emit func(Frame)) {
	f.pending = append(f.pending, data...)
	for len(f.pending) >= f.size {
		out := make([]byte, f.size)
		copy(out, f.pending[:f.size])
		f.seq++
		emit(Frame{Data: out, Seq: f.seq})

		n := copy(f.pending, f.pending[f.size:])
		f.pending = f.pending[:n]
	}
}

// Pending returns the number of bytes waiting for a full frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset drops any partial frame and restarts sequence numbering.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
	f.seq = 0
}
