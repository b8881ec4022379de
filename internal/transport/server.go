package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"chrdev/internal/errors"
	"chrdev/internal/register"
	"chrdev/internal/session"
	"chrdev/util"
)

// Totaler is implemented by devices that can report lifetime totals.
type Totaler interface {
	Totals() session.Totals
}

// Server serves devices registered in a host.
type Server struct {
	host   register.Host
	logger *util.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns a Server resolving node paths through host.
func NewServer(host register.Host, logger *util.Logger) *Server {
	if logger == nil {
		logger = util.Discard()
	}
	return &Server{
		host:   host,
		logger: logger.With("transport"),
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on the Unix socket at path and serves until
// ctx is done.  A stale socket file from an earlier run is removed.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	os.Remove(path) //nolint:errcheck // stale socket cleanup
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer os.Remove(path) //nolint:errcheck
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every
// open connection and waits for their sessions to be closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.logger.Verbose("listening on %s", ln.Addr())

	// Shut the listener down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer s.closeAll()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.serveConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// connState is the per-connection view: the device it opened, if any.
type connState struct {
	ops    register.Operations
	handle int64
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	buf := util.GetFrame()
	defer util.PutFrame(buf)
	out := util.GetFrame()
	defer util.PutFrame(out)

	var st connState
	defer func() {
		if st.ops != nil {
			if err := st.ops.Close(st.handle); err != nil {
				s.logger.Warn("close on disconnect: %v", err)
			}
		}
	}()

	for {
		kind, payload, err := readFrame(conn, *buf)
		if err != nil {
			if !util.IsHarmless(err) {
				s.logger.Warn("read request: %v", err)
			}
			return
		}
		reply, err := s.handle(&st, kind, payload, *out)
		if err := writeFrame(conn, errors.Code(err), replyPayload(reply, err)); err != nil {
			if !util.IsHarmless(err) {
				s.logger.Warn("write reply: %v", err)
			}
			return
		}
	}
}

func replyPayload(reply []byte, err error) []byte {
	if err != nil {
		return []byte(err.Error())
	}
	return reply
}

// handle executes one request.  out is scratch space for read data.
func (s *Server) handle(st *connState, kind byte, payload, out []byte) ([]byte, error) {
	switch kind {
	case opOpen:
		if st.ops != nil {
			return nil, errors.Op("open", st.handle, errors.ErrContractViolation)
		}
		ops, err := s.host.Lookup(string(payload))
		if err != nil {
			return nil, errors.Op("open", 0, err)
		}
		h, err := ops.Open()
		if err != nil {
			return nil, err
		}
		st.ops, st.handle = ops, h
		return putUint64(h), nil

	case opWrite:
		if st.ops == nil {
			return nil, errors.Op("write", 0, errors.ErrContractViolation)
		}
		n, err := st.ops.Write(st.handle, payload)
		if err != nil {
			return nil, err
		}
		return putUint32(n), nil

	case opRead:
		if st.ops == nil {
			return nil, errors.Op("read", 0, errors.ErrContractViolation)
		}
		if len(payload) != 4 {
			return nil, fmt.Errorf("read: malformed request")
		}
		want := int(binary.BigEndian.Uint32(payload))
		want = min(want, len(out))
		n, err := st.ops.Read(st.handle, out[:want])
		if err != nil {
			return nil, err
		}
		return out[:n], nil

	case opClose:
		if st.ops == nil {
			return nil, errors.Op("close", 0, errors.ErrContractViolation)
		}
		err := st.ops.Close(st.handle)
		st.ops, st.handle = nil, 0
		return nil, err

	case opStats:
		ops, err := s.host.Lookup(string(payload))
		if err != nil {
			return nil, errors.Op("stats", 0, err)
		}
		dev, ok := ops.(Totaler)
		if !ok {
			return nil, errors.Op("stats", 0, errors.ErrNotFound)
		}
		return json.Marshal(dev.Totals())

	default:
		return nil, fmt.Errorf("unknown request %q", kind)
	}
}
