// Package httpd implements an HTTP/1.x request/response pipeline
// layered on a channel: incremental request-line parsing, method
// dispatch, header emission, and a static-file responder covering URL
// decoding, directory index resolution, content-type mapping, HEAD
// handling, and chunked transfer encoding.
package httpd

import (
	"bytes"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anamul-dev/reactord/internal/channel"
	"github.com/anamul-dev/reactord/internal/reactor"
)

// readBufSize bounds a single recv() call while draining the socket
// in HandleRead.
const readBufSize = 8192

// methodHandler is the per-method responder signature: method dispatch
// goes through this static table rather than reflection or a naming
// convention.
type methodHandler func(c *Connection)

var methodTable = map[string]methodHandler{
	"GET":  (*Connection).serveGet,
	"HEAD": (*Connection).serveHead,
}

// Connection is a single-use HTTP request/response exchange layered
// over one accepted channel. It is created when the listener accepts
// a socket and destroyed when the channel closes.
type Connection struct {
	reactor.BaseHandler

	ch   *channel.Channel
	root string
	log  *logrus.Entry
	id   string

	raw        []byte
	parsed     bool
	hasVersion bool
	command    string
	path       string
	reqVersion version

	responded bool
	stream    *fileStream
}

// NewConnection wraps a freshly accepted channel.
func NewConnection(ch *channel.Channel, root string, log *logrus.Entry) *Connection {
	return &Connection{
		ch:   ch,
		root: root,
		log:  log,
		id:   uuid.NewString()[:8],
	}
}

func (c *Connection) entry() *logrus.Entry {
	if c.log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return c.log.WithField("conn", c.id)
}

// HandleRead drains the socket until recv reports would-block or
// disconnect, accumulating bytes into raw and attempting to parse the
// request line once enough has arrived.
func (c *Connection) HandleRead(ch *channel.Channel) {
	for {
		data, closed, err := ch.Recv(readBufSize)
		if err != nil {
			c.entry().WithError(err).Debug("recv failed")
			_ = ch.Close()
			return
		}
		if closed {
			_ = ch.Close()
			return
		}
		if len(data) == 0 {
			break
		}
		c.raw = append(c.raw, data...)
	}
	if len(c.raw) > 0 {
		c.handleRequest()
	}
}

// handleRequest parses only the request line; headers and body are
// ignored.
func (c *Connection) handleRequest() {
	if c.parsed {
		return
	}
	for {
		idx := bytes.IndexByte(c.raw, '\n')
		if idx < 0 {
			return // await more bytes
		}
		line := bytes.TrimSuffix(c.raw[:idx], []byte("\r"))
		c.raw = c.raw[idx+1:]

		tokens := bytes.Fields(line)
		if len(tokens) == 0 {
			if len(c.raw) == 0 {
				return // await more bytes
			}
			continue // blank line ahead of the real request line
		}

		c.parsed = true
		c.dispatchRequestLine(tokens)
		return
	}
}

func (c *Connection) dispatchRequestLine(tokens [][]byte) {
	switch len(tokens) {
	case 3:
		c.command = string(tokens[0])
		c.path = string(tokens[1])
		c.hasVersion = true
		v, ok := parseVersion(string(tokens[2]))
		if !ok {
			c.respondError(400)
			return
		}
		if v.atLeastHTTP2() {
			c.respondError(505)
			return
		}
		c.reqVersion = v
		c.dispatchMethod()
	case 2:
		c.command = string(tokens[0])
		c.path = string(tokens[1])
		if c.command != "GET" {
			c.respondError(400)
			return
		}
		c.hasVersion = false
		c.dispatchMethod()
	default:
		c.respondError(400)
	}
}

func (c *Connection) dispatchMethod() {
	h, ok := methodTable[c.command]
	if !ok {
		c.respondError(405)
		return
	}
	c.entry().WithFields(logrus.Fields{"method": c.command, "path": c.path}).Debug("dispatching")
	h(c)
}

// HandleWrite drains the outbound buffer and, once it is empty, pulls
// the next frame from any file stream the response is serving: one
// chunk is enqueued per writable event.
func (c *Connection) HandleWrite(ch *channel.Channel) {
	if ch.Buffered() > 0 {
		closed, err := ch.SendAll(ch.ChunkSize())
		if err != nil {
			c.fail(err)
			return
		}
		if closed {
			c.closeStream()
			_ = ch.Close()
			return
		}
		if ch.Buffered() > 0 {
			return // still draining; wait for the next writable event
		}
	}

	if c.stream == nil {
		if ch.Closing() {
			_ = ch.Close()
		}
		return
	}

	frame, final, err := c.stream.Next()
	if err != nil {
		c.fail(err)
		return
	}
	if final {
		ch.MarkClosing()
	}
	if len(frame) == 0 {
		if final {
			c.closeStream()
			if ch.Buffered() == 0 {
				_ = ch.Close()
			}
		}
		return
	}
	closed, werr := ch.Write(frame, true, ch.ChunkSize())
	if werr != nil {
		c.fail(werr)
		return
	}
	if closed {
		c.closeStream()
		_ = ch.Close()
	}
}

// HandleClose releases the file stream if the connection closes
// before a streaming response finished.
func (c *Connection) HandleClose(*channel.Channel) {
	c.closeStream()
}

// HandleError is the channel's error hook: respond 500 if nothing has
// gone out yet, then let the reactor close the channel.
func (c *Connection) HandleError(ch *channel.Channel, err error) {
	c.entry().WithError(err).Error("unhandled connection error")
	if !c.responded {
		c.respondError(500)
	}
}

func (c *Connection) closeStream() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}

func (c *Connection) fail(err error) {
	c.entry().WithError(err).Debug("write failed")
	c.closeStream()
	_ = c.ch.Close()
}

// beginResponse writes the status line (skipped for HTTP/0.9),
// standard headers, and the blank line terminator.
func (c *Connection) beginResponse(code int, contentType string, contentLength int64, chunked bool) {
	var b bytes.Buffer
	if c.hasVersion {
		short, _ := statusMessages(code)
		b.WriteString(responseProtocol)
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(code))
		b.WriteByte(' ')
		b.WriteString(short)
		b.WriteString("\r\n")
	}
	b.WriteString("Server: " + serverHeaderValue() + "\r\n")
	b.WriteString("Date: " + rfc1123Date(time.Now()) + "\r\n")
	if chunked {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	}
	if contentType != "" {
		b.WriteString("Content-Type: " + contentType + "\r\n")
	}
	if !chunked && contentLength >= 0 {
		b.WriteString("Content-Length: " + strconv.FormatInt(contentLength, 10) + "\r\n")
	}
	b.WriteString("\r\n")

	c.responded = true
	if _, err := c.ch.Write(b.Bytes(), true, c.ch.ChunkSize()); err != nil {
		c.fail(err)
	}
}

// respondError renders the default HTML error body and writes it
// unbuffered immediately, then marks the channel closing.
func (c *Connection) respondError(code int) {
	body := renderErrorBody(code)
	c.beginResponse(code, "text/html", int64(len(body)), false)
	if c.command == "HEAD" {
		c.ch.MarkClosing()
		return
	}
	closed, err := c.ch.Write(body, false, c.ch.ChunkSize())
	if err != nil {
		c.fail(err)
		return
	}
	if closed {
		_ = c.ch.Close()
		return
	}
	c.ch.MarkClosing()
}
