package reactor

import (
	"context"
	"time"
)

// wantSet is what the reactor asks the poller to wait for on one fd.
type wantSet struct {
	fd    int
	read  bool
	write bool
}

// readyEvent is what the poller reports back for one fd.
type readyEvent struct {
	fd          int
	readable    bool
	writable    bool
	exceptional bool
}

// pollSliceCap bounds how long a single underlying wait syscall blocks
// so the loop can notice context cancellation (a user interrupt)
// promptly even when the caller asked for a long or indefinite
// timeout.
const pollSliceCap = 250 * time.Millisecond

// poller abstracts the readiness-interface choice: epoll where the
// platform offers it, a three-set select fallback otherwise.
type poller interface {
	// Wait blocks until one of the fds in want is ready, timeout
	// elapses, or ctx is cancelled (a user interrupt: returns a nil
	// slice and nil error). An empty want behaves like a plain sleep of
	// one wait slice: timeout, capped at pollSliceCap (pollSliceCap when
	// timeout <= 0).
	Wait(ctx context.Context, want []wantSet, timeout time.Duration) ([]readyEvent, error)
	Close() error
}
