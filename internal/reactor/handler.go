package reactor

import "github.com/anamul-dev/reactord/internal/channel"

// Handler is the capability set the reactor dispatches readiness
// events to. A channel is registered together with the Handler that
// owns it; the reactor itself never inspects payloads, only lifecycle
// state.
type Handler interface {
	// HandleAccept is invoked when an accepting channel is readable.
	HandleAccept(ch *channel.Channel)
	// HandleConnect is invoked once a pending connect finishes
	// (SO_ERROR clear).
	HandleConnect(ch *channel.Channel)
	// HandleRead is invoked when a connected, non-refusing channel is
	// readable.
	HandleRead(ch *channel.Channel)
	// HandleWrite is invoked when a connected channel is writable.
	HandleWrite(ch *channel.Channel)
	// HandleClose is invoked once, as the channel is removed from the
	// reactor's arena. When the reactor itself closes the channel this
	// runs before the fd is released; when the handler already closed
	// it, this runs right after that.
	HandleClose(ch *channel.Channel)
	// HandleExpt is invoked on an exceptional readiness event once
	// SO_ERROR has been confirmed clear (a genuine out-of-band
	// condition). The default server handlers treat this as
	// not-implemented.
	HandleExpt(ch *channel.Channel)
	// HandleStopping is invoked on every channel when the reactor
	// begins graceful shutdown; a listening channel should refuse new
	// work.
	HandleStopping(ch *channel.Channel)
	// HandleError is the channel's error hook: invoked for an
	// unexpected (non-disconnect) failure surfaced from a handler
	// call or a syscall. It runs before the reactor closes the
	// channel, giving the handler a chance to emit a response (e.g.
	// a 500) if nothing has been sent yet.
	HandleError(ch *channel.Channel, err error)
}

// BaseHandler supplies no-op defaults for the rarely-overridden
// capabilities so concrete handlers (the HTTP connection, the
// listener) only need to implement what they actually use.
type BaseHandler struct{}

func (BaseHandler) HandleAccept(*channel.Channel)   {}
func (BaseHandler) HandleConnect(*channel.Channel)  {}
func (BaseHandler) HandleRead(*channel.Channel)     {}
func (BaseHandler) HandleWrite(*channel.Channel)    {}
func (BaseHandler) HandleClose(*channel.Channel)    {}
func (BaseHandler) HandleExpt(*channel.Channel)     {}
func (BaseHandler) HandleStopping(*channel.Channel) {}
func (BaseHandler) HandleError(*channel.Channel, error) {}
