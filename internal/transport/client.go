package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"chrdev/internal/errors"
	"chrdev/internal/retry"
	"chrdev/internal/session"
	"chrdev/util"
)

// Client is one connection to a Server.  It can hold one session at a
// time, mirroring a single open file descriptor.  Methods are safe for
// concurrent use but run one request at a time.
type Client struct {
	conn net.Conn

	mu   sync.Mutex
	buf  []byte
	open bool
}

// Dial connects to the Unix socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return NewClient(conn), nil
}

// DialRetry is Dial repeated under b, for a server that may still be
// starting.  A nil b means [retry.DialBackoff].
func DialRetry(ctx context.Context, path string, b *retry.Backoff) (*Client, error) {
	if b == nil {
		b = retry.DialBackoff()
	}
	var c *Client
	err := b.Do(ctx, func(int) error {
		var err error
		c, err = Dial(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, buf: make([]byte, util.MaxFrameSize)}
}

// roundTrip sends one request and returns the reply payload, which
// aliases c.buf until the next call.  c.mu must be held.
func (c *Client) roundTrip(kind byte, payload []byte) ([]byte, error) {
	if err := writeFrame(c.conn, kind, payload); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	code, reply, err := readFrame(c.conn, c.buf)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if code != errors.CodeOK {
		return nil, errors.FromCode(code, string(reply))
	}
	return reply, nil
}

// Open starts a session on the device exposed at node and returns the
// session handle.
func (c *Client) Open(node string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(opOpen, []byte(node))
	if err != nil {
		return 0, err
	}
	if len(reply) != 8 {
		return 0, fmt.Errorf("open: malformed reply")
	}
	c.open = true
	return int64(binary.BigEndian.Uint64(reply)), nil
}

// Write sends p to the session.  Like the device, it may store fewer
// bytes than given without an error.  Payloads longer than a frame are
// cut to one frame.
func (c *Client) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(p) > util.MaxFrameSize {
		p = p[:util.MaxFrameSize]
	}
	reply, err := c.roundTrip(opWrite, p)
	if err != nil {
		return 0, err
	}
	if len(reply) != 4 {
		return 0, fmt.Errorf("write: malformed reply")
	}
	return int(binary.BigEndian.Uint32(reply)), nil
}

// Read fills p from the session.  It returns 0 and a nil error at end
// of stream.
func (c *Client) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(opRead, putUint32(len(p)))
	if err != nil {
		return 0, err
	}
	return copy(p, reply), nil
}

// CloseSession ends the session but keeps the connection.
func (c *Client) CloseSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.roundTrip(opClose, nil)
	c.open = false
	return err
}

// Stats fetches the lifetime totals of the device at node.
func (c *Client) Stats(node string) (session.Totals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reply, err := c.roundTrip(opStats, []byte(node))
	if err != nil {
		return session.Totals{}, err
	}
	var t session.Totals
	if err := json.Unmarshal(reply, &t); err != nil {
		return session.Totals{}, fmt.Errorf("stats: %w", err)
	}
	return t, nil
}

// Close ends any open session and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	var err error
	if c.open {
		_, err = c.roundTrip(opClose, nil)
		c.open = false
	}
	c.mu.Unlock()
	return errors.Join(err, c.conn.Close())
}
