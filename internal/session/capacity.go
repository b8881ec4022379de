package session

// DefaultBufLen is the capacity of a session buffer unless configured
// otherwise.
const DefaultBufLen = 1024

// TerminatorReserve is the number of buffer bytes kept back as a string
// terminator slot.  Byte-oriented devices set Limits.Reserve to zero.
const TerminatorReserve = 1

// Limits fixes the size of every session buffer on a device.
type Limits struct {
	BufLen  int // allocated buffer size in bytes
	Reserve int // trailing bytes never handed out to writers
}

// DefaultLimits returns a 1024-byte buffer with one reserved byte.
func DefaultLimits() Limits {
	return Limits{BufLen: DefaultBufLen, Reserve: TerminatorReserve}
}

// Remaining returns how many more bytes a session that has stored
// written bytes may accept.  It never returns a negative value.
func (l Limits) Remaining(written int) int {
	n := l.BufLen - written - l.Reserve
	if n < 0 {
		return 0
	}
	return n
}

// Payload is the most bytes a single session can ever hold.
func (l Limits) Payload() int { return l.Remaining(0) }

// RemainingCapacity returns bufLen - written - 1, or 0 once the buffer
// is full.  It is the default Limits policy as a plain function.
func RemainingCapacity(bufLen, written int) int {
	return Limits{BufLen: bufLen, Reserve: TerminatorReserve}.Remaining(written)
}
