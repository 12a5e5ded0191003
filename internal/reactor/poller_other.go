//go:build !linux

package reactor

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

// selectWordBits is the width of one unix.FdSet word on the BSD-family
// platforms this fallback targets (darwin, freebsd, ...): unlike
// Linux's int64-backed fd_set, x/sys/unix represents FdSet.Bits as
// int32 words there.
const selectWordBits = 32

// selectPoller is the three-set readiness selector the reactor falls
// back to when the platform has no scalable polling interface.
type selectPoller struct{}

func newPlatformPoller() (poller, error) {
	return &selectPoller{}, nil
}

func (p *selectPoller) Close() error { return nil }

func fdSetBit(set *unix.FdSet, fd int) {
	set.Bits[fd/selectWordBits] |= 1 << uint(fd%selectWordBits)
}

func fdIsSetBit(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/selectWordBits]&(1<<uint(fd%selectWordBits)) != 0
}

func (p *selectPoller) Wait(ctx context.Context, want []wantSet, timeout time.Duration) ([]readyEvent, error) {
	slice := timeout
	if slice <= 0 || slice > pollSliceCap {
		slice = pollSliceCap
	}

	deadline := time.Now().Add(timeout)

	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if len(want) == 0 {
			time.Sleep(slice)
			return nil, nil
		}

		var rfds, wfds, efds unix.FdSet
		maxFD := 0
		for _, w := range want {
			if w.read {
				fdSetBit(&rfds, w.fd)
			}
			if w.write {
				fdSetBit(&wfds, w.fd)
			}
			fdSetBit(&efds, w.fd)
			if w.fd > maxFD {
				maxFD = w.fd
			}
		}

		tv := unix.NsecToTimeval(slice.Nanoseconds())
		n, err := unix.Select(maxFD+1, &rfds, &wfds, &efds, &tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n > 0 {
			return translateSelect(want, &rfds, &wfds, &efds), nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return nil, nil
		}
	}
}

func translateSelect(want []wantSet, rfds, wfds, efds *unix.FdSet) []readyEvent {
	out := make([]readyEvent, 0, len(want))
	for _, w := range want {
		r := fdIsSetBit(rfds, w.fd)
		wr := fdIsSetBit(wfds, w.fd)
		e := fdIsSetBit(efds, w.fd)
		if r || wr || e {
			out = append(out, readyEvent{fd: w.fd, readable: r, writable: wr, exceptional: e})
		}
	}
	return out
}
