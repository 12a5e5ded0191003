package httpd

// serveHead writes the status line and headers with Content-Length
// equal to the resolved file's true size, no body.
func (c *Connection) serveHead() {
	res, rerr := resolvePath(c.root, c.path)
	if rerr != nil {
		c.respondError(rerr.(*resolveError).status)
		return
	}
	c.beginResponse(200, res.contentType, res.size, false)
	c.ch.MarkClosing()
}

// serveGet writes the file body: either a single Content-Length-framed
// write (small files) or chunked transfer (files over chunkThreshold).
func (c *Connection) serveGet() {
	res, rerr := resolvePath(c.root, c.path)
	if rerr != nil {
		c.respondError(rerr.(*resolveError).status)
		return
	}

	chunked := res.size > chunkThreshold
	stream, err := openFileStream(res.absPath, chunked)
	if err != nil {
		c.respondError(404)
		return
	}

	c.beginResponse(200, res.contentType, res.size, chunked)
	c.stream = stream
}
