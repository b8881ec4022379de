package device

import (
	"io"
	"sync"

	"chrdev/internal/errors"
)

// File is an io.ReadWriteCloser over one session.
//
// Unlike Device.Read, File.Read reports end of stream as io.EOF, and
// File.Write reports a short write as io.ErrShortWrite, as the io
// interfaces require.
type File struct {
	dev *Device
	h   int64

	once sync.Once
	err  error
}

// OpenFile opens a session and wraps it in a File.
func (d *Device) OpenFile() (*File, error) {
	h, err := d.Open()
	if err != nil {
		return nil, err
	}
	return &File{dev: d, h: h}, nil
}

// Handle returns the session handle behind f.
func (f *File) Handle() int64 { return f.h }

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.dev.Read(f.h, p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	n, err := f.dev.Write(f.h, p)
	if err == nil && n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, err
}

// Close ends the session.  Later calls return the first result.
func (f *File) Close() error {
	f.once.Do(func() { f.err = f.dev.Close(f.h) })
	return f.err
}

var _ io.ReadWriteCloser = (*File)(nil)

// IsFull reports whether err means the session buffer cannot take more
// bytes, either because a write came up short or because it was
// rejected outright.
func IsFull(err error) bool {
	return errors.Is(err, io.ErrShortWrite) || errors.Is(err, errors.ErrOutOfSpace)
}
