// Package channel implements a non-blocking socket adapter: a buffered
// outbound stream plus the connect/accept/read/write/close state
// machine that the reactor drives through readiness events.
package channel

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/anamul-dev/reactord/internal/netkit"
)

// DefaultChunkSize bounds how many outbound bytes a single writable
// event will attempt to drain.
const DefaultChunkSize = 64 * 1024

// Channel is the reactor's unit of registration: an fd, its lifecycle
// state, and an outbound byte buffer. It holds no reference back to
// the reactor or its arena (Design Note: "store channels in an arena
// keyed by fd; channels hold only the fd; the reactor owns the
// arena") — registration and removal are the reactor's job.
type Channel struct {
	fd         int
	state      state
	remote     string
	isListener bool
	outbound   []byte
	chunkSize  int
}

// New wraps an already-created, non-blocking fd.
func New(fd int) *Channel {
	return &Channel{fd: fd, chunkSize: DefaultChunkSize}
}

// CreateSocket allocates a new non-blocking socket and wraps it.
func CreateSocket(family, sotype int) (*Channel, error) {
	fd, err := createNonblockingSocket(family, sotype)
	if err != nil {
		return nil, err
	}
	return New(fd), nil
}

// FD returns the channel's file-descriptor identity.
func (c *Channel) FD() int { return c.fd }

// Remote returns the remote address, or "" for listeners and
// not-yet-connected channels.
func (c *Channel) Remote() string { return c.remote }

// SetReuseAddr is best-effort; failures are ignored.
func (c *Channel) SetReuseAddr() { setReuseAddr(c.fd) }

// Bind binds the channel's socket to addr.
func (c *Channel) Bind(sa unix.Sockaddr) error {
	if err := unix.Bind(c.fd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

// Listen marks the channel as an accepting (listening) channel.
func (c *Channel) Listen(backlog int) error {
	if err := unix.Listen(c.fd, listenBacklog(backlog)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.state.markAccepting()
	c.isListener = true
	return nil
}

// IsListener reports whether this channel was created via Listen, for
// the reactor's shutdown-quiescence check (Design Note 5).
func (c *Channel) IsListener() bool { return c.isListener }

// WrapListener adopts an already-bound, already-listening,
// non-blocking fd as a listener channel without re-issuing bind/listen:
// each prefork worker inherits the parent's listening socket rather
// than creating its own.
func WrapListener(fd int) *Channel {
	c := New(fd)
	c.state.markAccepting()
	c.isListener = true
	return c
}

// Accept accepts one pending connection. It returns (nil, nil) on
// EWOULDBLOCK/EAGAIN/ECONNABORTED; any other error propagates.
func (c *Channel) Accept() (*Channel, error) {
	nfd, sa, err := unix.Accept(c.fd)
	if err != nil {
		switch netkit.Classify(err) {
		case netkit.ErrWouldBlock:
			return nil, nil
		default:
			if err == unix.ECONNABORTED {
				return nil, nil
			}
			return nil, fmt.Errorf("accept: %w", err)
		}
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	conn := New(nfd)
	conn.remote = remoteAddrString(sa)
	conn.state.markConnected()
	return conn, nil
}

// MarkConnecting transitions the channel into the connecting state
// (used by client-role channels; unused by this server's listener/
// accepted-connection channels but kept for a complete C2 contract).
func (c *Channel) MarkConnecting() { c.state.markConnecting() }

// IsConnecting reports whether a connect() is in flight.
func (c *Channel) IsConnecting() bool { return c.state.connecting }

// CompleteConnect queries SO_ERROR and, if clear, finishes the
// connect/connected transition.
func (c *Channel) CompleteConnect() error {
	if err := soError(c.fd); err != nil {
		return err
	}
	c.state.markConnected()
	return nil
}

// Refuse transitions a listening channel into the refusing state used
// during graceful shutdown: stop accepting, keep draining existing
// work.
func (c *Channel) Refuse() { c.state.markRefusing() }

// Refusing reports whether the channel is refusing new work.
func (c *Channel) Refusing() bool { return c.state.refusing }

// Closing reports whether the channel is closing after its next
// drain.
func (c *Channel) Closing() bool { return c.state.closing }

// MarkClosing schedules the channel to close once its outbound buffer
// has fully drained.
func (c *Channel) MarkClosing() { c.state.closing = true }

// Readable reports whether the reactor should poll this channel for
// read readiness.
func (c *Channel) Readable() bool { return c.state.Readable() }

// Writable reports whether the reactor should poll this channel for
// write readiness.
func (c *Channel) Writable() bool { return c.state.Writable(len(c.outbound)) }

// Recv reads up to n bytes. It returns (nil, false, nil) on
// EWOULDBLOCK; on end-of-data or a disconnect it returns closed=true,
// and the caller closes the channel.
func (c *Channel) Recv(n int) (data []byte, closed bool, err error) {
	buf := make([]byte, n)
	nr, rerr := unix.Read(c.fd, buf)
	if rerr != nil {
		switch netkit.Classify(rerr) {
		case netkit.ErrWouldBlock:
			return nil, false, nil
		case netkit.ErrDisconnected:
			return nil, true, nil
		default:
			return nil, false, fmt.Errorf("recv: %w", rerr)
		}
	}
	if nr == 0 {
		return nil, true, nil
	}
	return buf[:nr], false, nil
}

// Send attempts one send of bytes. On EWOULDBLOCK it returns (0, nil).
// On a disconnect it reports closed=true so the caller can tear the
// channel down.
func (c *Channel) Send(b []byte) (n int, closed bool, err error) {
	if len(b) == 0 {
		return 0, false, nil
	}
	nw, werr := unix.Write(c.fd, b)
	if werr != nil {
		switch netkit.Classify(werr) {
		case netkit.ErrWouldBlock:
			return 0, false, nil
		case netkit.ErrDisconnected:
			return 0, true, nil
		default:
			return 0, false, fmt.Errorf("send: %w", werr)
		}
	}
	return nw, false, nil
}

// Write appends part to the outbound buffer. If buffered is false the
// buffer is immediately drained (up to sendSize bytes) via SendAll.
func (c *Channel) Write(part []byte, buffered bool, sendSize int) (closed bool, err error) {
	c.outbound = append(c.outbound, part...)
	if buffered {
		return false, nil
	}
	return c.SendAll(sendSize)
}

// SendAll drains up to max bytes of the outbound buffer in a bounded
// loop: each iteration sends the remaining chunk and advances by
// bytes written, stopping at the first would-block.
func (c *Channel) SendAll(max int) (closed bool, err error) {
	for len(c.outbound) > 0 {
		end := len(c.outbound)
		if max > 0 && end > max {
			end = max
		}
		n, didClose, serr := c.Send(c.outbound[:end])
		if serr != nil {
			return false, serr
		}
		if didClose {
			return true, nil
		}
		if n == 0 {
			return false, nil
		}
		c.outbound = c.outbound[n:]
		if max > 0 {
			max -= n
			if max <= 0 {
				break
			}
		}
	}
	return false, nil
}

// Buffered reports how many outbound bytes are still queued.
func (c *Channel) Buffered() int { return len(c.outbound) }

// ChunkSize returns the high-water chunk size controlling how much is
// flushed per writable event.
func (c *Channel) ChunkSize() int { return c.chunkSize }

// SetChunkSize overrides the high-water chunk size.
func (c *Channel) SetChunkSize(n int) { c.chunkSize = n }

// SOError queries the socket-level pending error (used for the
// reactor's exceptional-event handling).
func (c *Channel) SOError() error { return soError(c.fd) }

// Close clears all lifecycle flags and closes the underlying socket.
// Double-close is a no-op: once fd is -1 there's nothing left to
// release.
func (c *Channel) Close() error {
	if c.fd < 0 {
		return nil
	}
	fd := c.fd
	c.fd = -1
	c.state.markClosed()
	c.outbound = nil
	err := unix.Close(fd)
	if err != nil {
		switch netkit.Classify(err) {
		case netkit.ErrDisconnected:
			return nil
		}
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Closed reports whether Close has already run.
func (c *Channel) Closed() bool { return c.fd < 0 }
