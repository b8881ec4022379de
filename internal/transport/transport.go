// Package transport exposes registered devices to other processes over
// a Unix socket.
//
// Every connection behaves like one open file descriptor: it may hold
// at most one session, and the session is closed when the connection
// goes away.  Messages are length-prefixed frames:
//
//	kind (1 byte) | length (uint32, big endian) | payload
//
// Requests use an operation letter as kind; replies use a status code
// from internal/errors (0 for success) and carry the error message as
// payload on failure.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"chrdev/util"
)

// Request kinds.
const (
	opOpen  byte = 'O' // payload: node path; reply: handle (uint64)
	opWrite byte = 'W' // payload: data; reply: count (uint32)
	opRead  byte = 'R' // payload: max count (uint32); reply: data
	opClose byte = 'C' // no payload
	opStats byte = 'S' // payload: node path; reply: totals as JSON
)

const headerSize = 5

// ErrFrameTooLarge is returned for frames longer than util.MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", util.MaxFrameSize)

func writeFrame(w io.Writer, kind byte, payload []byte) error {
	if len(payload) > util.MaxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [headerSize]byte
	hdr[0] = kind
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one frame into buf, which must hold
// util.MaxFrameSize bytes.  The returned payload aliases buf.
func readFrame(r io.Reader, buf []byte) (byte, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > util.MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	payload := buf[:n]
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return hdr[0], payload, nil
}

func putUint32(v int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

func putUint64(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}
