// Package netkit classifies the errno values the reactor and channel
// layers see back from the kernel into the small set of outcomes the
// dispatch loop actually cares about, replacing exceptions-as-control-flow
// with an explicit, switchable result.
package netkit

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrKind is the outcome of classifying an error returned by a socket
// syscall.
type ErrKind int

const (
	// ErrNone means the error is nil, or not actually an error condition.
	ErrNone ErrKind = iota
	// ErrWouldBlock means the call would have blocked; the caller should
	// retry on the next readiness notification.
	ErrWouldBlock
	// ErrInterrupted means the call was interrupted by a signal and
	// should simply be retried.
	ErrInterrupted
	// ErrDisconnected means the remote end is gone; the channel owning
	// the socket should close silently.
	ErrDisconnected
	// ErrFatal is anything else: unexpected, neither retried nor treated
	// as a disconnect. The channel layer returns it as an error and the
	// caller decides (a connection handler closes its channel; a
	// poller failure ends Run).
	ErrFatal
)

func (k ErrKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrWouldBlock:
		return "would-block"
	case ErrInterrupted:
		return "interrupted"
	case ErrDisconnected:
		return "disconnected"
	default:
		return "fatal"
	}
}

// disconnectErrnos is the set of errno values treated as a
// client-initiated disconnect: recovered by a silent channel close.
var disconnectErrnos = map[syscall.Errno]struct{}{
	unix.ECONNRESET:   {},
	unix.ENOTCONN:     {},
	unix.ESHUTDOWN:    {},
	unix.ECONNABORTED: {},
	unix.EPIPE:        {},
	unix.EBADF:        {},
}

// Classify maps an error returned from a socket syscall to an ErrKind.
// A nil error classifies as ErrNone.
func Classify(err error) ErrKind {
	if err == nil {
		return ErrNone
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ErrFatal
	}

	// EAGAIN and EWOULDBLOCK share the same value on every platform this
	// package targets; a switch case cannot list both without tripping
	// "duplicate case", so would-block is tested separately.
	if errno == unix.EWOULDBLOCK {
		return ErrWouldBlock
	}
	if errno == unix.EINTR {
		return ErrInterrupted
	}
	if _, ok := disconnectErrnos[errno]; ok {
		return ErrDisconnected
	}
	return ErrFatal
}

// IsWouldBlock is a convenience predicate used at call sites that only
// care about distinguishing "try again" from everything else.
func IsWouldBlock(err error) bool {
	return Classify(err) == ErrWouldBlock
}
