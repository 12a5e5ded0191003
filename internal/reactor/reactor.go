// Package reactor implements a readiness-driven event loop: it owns an
// fd-keyed arena of channels, polls for readiness via an epoll or
// select backend, and dispatches events to each channel's registered
// Handler while preserving cooperative fairness and the
// graceful-shutdown protocol.
package reactor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anamul-dev/reactord/internal/channel"
	"github.com/anamul-dev/reactord/internal/netkit"
)

type entry struct {
	ch      *channel.Channel
	handler Handler
}

// Reactor owns one process-local arena of channels and drives them
// through readiness events. It is not safe for concurrent use from
// more than one goroutine; each worker process runs exactly one
// reactor on its own goroutine, single-threaded and cooperative.
type Reactor struct {
	arena    map[int]entry
	poller   poller
	log      *logrus.Entry
	stopping bool
}

// New constructs a Reactor using the platform's preferred poller.
func New(log *logrus.Entry) (*Reactor, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		arena:  make(map[int]entry),
		poller: p,
		log:    log,
	}, nil
}

// Register adds ch to the arena under handler. Insertion happens only
// on the reactor's own goroutine.
func (r *Reactor) Register(ch *channel.Channel, h Handler) {
	r.arena[ch.FD()] = entry{ch: ch, handler: h}
}

// Len reports how many channels are currently registered.
func (r *Reactor) Len() int { return len(r.arena) }

// closeChannel runs the handler's close hook, closes the underlying
// socket, and removes the channel from the arena exactly once.
func (r *Reactor) closeChannel(e entry) {
	if e.ch.Closed() {
		// The handler already closed the socket, so FD() is -1: find
		// the arena slot by channel identity instead.
		for fd, cur := range r.arena {
			if cur.ch == e.ch {
				e.handler.HandleClose(e.ch)
				delete(r.arena, fd)
			}
		}
		return
	}
	fd := e.ch.FD()
	e.handler.HandleClose(e.ch)
	if err := e.ch.Close(); err != nil && r.log != nil {
		r.log.WithError(err).WithField("fd", fd).Debug("close reported an error")
	}
	delete(r.arena, fd)
}

// Run polls and dispatches until the arena is empty or count
// iterations have elapsed (count <= 0 means unbounded). ctx
// cancellation is treated as a user interrupt: the reactor enters
// graceful shutdown rather than stopping immediately.
func (r *Reactor) Run(ctx context.Context, timeout time.Duration, count int) error {
	iterations := 0
	for len(r.arena) > 0 {
		if count > 0 && iterations >= count {
			return nil
		}
		iterations++

		if ctx.Err() != nil && !r.stopping {
			r.beginShutdown()
		}

		// Once stopping, the poller must keep reporting readiness so
		// in-flight connections can drain; the cancelled ctx would make
		// every Wait return empty.
		waitCtx := ctx
		if r.stopping {
			waitCtx = context.Background()
		}
		want := r.buildWantSet()
		events, err := r.poller.Wait(waitCtx, want, timeout)
		if err != nil {
			if netkit.Classify(err) == netkit.ErrInterrupted {
				continue
			}
			return err
		}

		for _, ev := range events {
			e, ok := r.arena[ev.fd]
			if !ok {
				continue
			}
			r.dispatch(e, ev)
		}

		if r.stopping {
			r.finishShutdownIfQuiescent()
		}
	}
	return nil
}

func (r *Reactor) buildWantSet() []wantSet {
	want := make([]wantSet, 0, len(r.arena))
	for fd, e := range r.arena {
		read := e.ch.Readable()
		write := e.ch.Writable()
		if !read && !write {
			continue
		}
		want = append(want, wantSet{fd: fd, read: read, write: write})
	}
	return want
}

// dispatch runs the read/write/exceptional handlers for one ready
// channel, in that order, and recovers from handler panics so one
// misbehaving connection cannot take down the whole reactor.
func (r *Reactor) dispatch(e entry, ev readyEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.handleUnexpected(e, rec)
		}
	}()

	if ev.readable {
		r.dispatchReadable(e)
		if e.ch.Closed() {
			e.handler.HandleClose(e.ch)
			delete(r.arena, ev.fd)
			return
		}
	}
	if ev.writable {
		r.dispatchWritable(e)
		if e.ch.Closed() {
			e.handler.HandleClose(e.ch)
			delete(r.arena, ev.fd)
			return
		}
	}
	if ev.exceptional {
		r.dispatchExceptional(e)
	}
}

func (r *Reactor) dispatchReadable(e entry) {
	switch {
	case e.ch.IsConnecting():
		if err := r.completeConnect(e); err != nil {
			return
		}
		e.handler.HandleConnect(e.ch)
	case e.ch.IsListener():
		e.handler.HandleAccept(e.ch)
	case !e.ch.Refusing():
		e.handler.HandleRead(e.ch)
	}
}

func (r *Reactor) dispatchWritable(e entry) {
	if e.ch.IsListener() {
		return
	}
	if e.ch.IsConnecting() {
		if err := r.completeConnect(e); err != nil {
			return
		}
		e.handler.HandleConnect(e.ch)
	}
	e.handler.HandleWrite(e.ch)
}

func (r *Reactor) dispatchExceptional(e entry) {
	if err := e.ch.SOError(); err != nil {
		r.closeChannel(e)
		return
	}
	e.handler.HandleExpt(e.ch)
}

func (r *Reactor) completeConnect(e entry) error {
	if err := e.ch.CompleteConnect(); err != nil {
		r.closeOnSocketError(e, err)
		return err
	}
	return nil
}

// closeOnSocketError closes the channel; known disconnect errnos close
// silently, anything else goes through the channel's error hook first.
func (r *Reactor) closeOnSocketError(e entry, err error) {
	if netkit.Classify(err) != netkit.ErrDisconnected {
		e.handler.HandleError(e.ch, err)
	}
	r.closeChannel(e)
}

func (r *Reactor) handleUnexpected(e entry, rec any) {
	if r.log != nil {
		r.log.WithField("fd", e.ch.FD()).WithField("panic", rec).Error("handler panicked")
	}
	e.handler.HandleError(e.ch, asError(rec))
	r.closeChannel(e)
}

func asError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return &unexpectedPanic{rec}
}

type unexpectedPanic struct{ v any }

func (p *unexpectedPanic) Error() string {
	return "handler panic"
}

// beginShutdown delivers "stopping" to every channel: listening
// channels stop accepting new work (refusing=true, accepting=false);
// everything else is left to drain normally.
func (r *Reactor) beginShutdown() {
	r.stopping = true
	for _, e := range r.arena {
		if e.ch.IsListener() {
			e.ch.Refuse()
		}
		e.handler.HandleStopping(e.ch)
	}
	if r.log != nil {
		r.log.Info("graceful shutdown: refusing new connections")
	}
}

// finishShutdownIfQuiescent implements the cleaner quiescence
// formulation from Design Note 5: once no non-listener channels
// remain, any refusing listener channels are closed and the loop
// exits on the next len(arena)==0 check.
func (r *Reactor) finishShutdownIfQuiescent() {
	nonListeners := 0
	var listeners []entry
	for _, e := range r.arena {
		if e.ch.IsListener() {
			listeners = append(listeners, e)
		} else {
			nonListeners++
		}
	}
	if nonListeners > 0 {
		return
	}
	for _, e := range listeners {
		if e.ch.Refusing() {
			r.closeChannel(e)
		}
	}
}

// Close releases the poller's own resources (e.g. the epoll fd).
func (r *Reactor) Close() error {
	return r.poller.Close()
}
