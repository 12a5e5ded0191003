package httpd

import (
	"github.com/sirupsen/logrus"

	"github.com/anamul-dev/reactord/internal/channel"
	"github.com/anamul-dev/reactord/internal/reactor"
)

// registrar is the subset of *reactor.Reactor the listener needs: it
// registers newly accepted connections without otherwise depending on
// the reactor's internals.
type registrar interface {
	Register(ch *channel.Channel, h reactor.Handler)
}

// Listener is the Handler for the bound, accepting channel: on a
// readable listener it accepts a connection and registers a new HTTP
// connection handler for it.
type Listener struct {
	reactor.BaseHandler

	root string
	log  *logrus.Entry
	reg  registrar
}

// NewListener constructs the listener-side handler. reg is the
// reactor the listener registers newly accepted connections with.
func NewListener(root string, log *logrus.Entry, reg registrar) *Listener {
	return &Listener{root: root, log: log, reg: reg}
}

// HandleAccept drains every pending connection (level-triggered
// readiness can report more than one queued connection per event)
// until Accept reports nothing left.
func (l *Listener) HandleAccept(listenerCh *channel.Channel) {
	for {
		conn, err := listenerCh.Accept()
		if err != nil {
			l.log.WithError(err).Warn("accept failed")
			return
		}
		if conn == nil {
			return
		}
		l.log.WithField("remote", conn.Remote()).Debug("accepted connection")
		l.reg.Register(conn, NewConnection(conn, l.root, l.log))
	}
}

// HandleStopping is delivered to the listener when the reactor begins
// graceful shutdown; the channel layer already flips refusing/
// accepting, this hook only logs the transition.
func (l *Listener) HandleStopping(*channel.Channel) {
	l.log.Debug("listener refusing new connections")
}
