package util

import "sync"

// MaxFrameSize bounds a single transport payload.  It comfortably
// exceeds any session buffer the config validator accepts.
const MaxFrameSize = 64 * 1024

// FramePool provides reusable payload buffers for the transport, so a
// busy server does not allocate a fresh frame per request.
var FramePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, MaxFrameSize)
		return &buf
	},
}

// GetFrame retrieves a buffer from the pool.  Callers must return it
// with [PutFrame] when finished.
func GetFrame() *[]byte {
	return FramePool.Get().(*[]byte)
}

// PutFrame returns a buffer to the pool for reuse.
func PutFrame(buf *[]byte) {
	if buf == nil {
		return
	}
	FramePool.Put(buf)
}
