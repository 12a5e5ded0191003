package httpd

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// chunkThreshold is the file-size cutoff above which a GET response
// switches from a single Content-Length-framed body to chunked
// transfer encoding.
const chunkThreshold = 64 * 1024

// streamBufSize is how much of the file is read per writable event,
// for both the Content-Length and the chunked path, so back-pressure
// never buffers more than one chunk regardless of file size.
const streamBufSize = 64 * 1024

// fileStream is the stateful iterator a static GET response owns: one
// Next() call per writable event yields the next frame, and Close
// releases the underlying file handle exactly once.
type fileStream struct {
	f       *os.File
	chunked bool
	done    bool
}

// openFileStream opens path for streaming. chunked selects whether
// Next's output is wrapped in chunk framing or returned as raw body
// bytes.
func openFileStream(path string, chunked bool) (*fileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &fileStream{f: f, chunked: chunked}, nil
}

// Next reads one buffer's worth of the file and returns the bytes to
// write to the channel. final is true once this is the last frame
// (a short read, i.e. EOF) — the caller should mark the channel
// closing once it has drained this frame.
func (s *fileStream) Next() (frame []byte, final bool, err error) {
	if s.done {
		return nil, true, nil
	}

	buf := make([]byte, streamBufSize)
	n, rerr := s.f.Read(buf)
	if rerr != nil && rerr != io.EOF {
		return nil, false, rerr
	}
	data := buf[:n]
	final = n < streamBufSize || rerr == io.EOF
	if final {
		s.done = true
	}

	if !s.chunked {
		return data, final, nil
	}
	return chunkFrame(data, final), final, nil
}

// chunkFrame renders data as one chunked-transfer frame:
// "<hex-length>\r\n<data>\r\n", appending the terminating
// "0\r\n\r\n" marker when final is set. The terminator is always
// written literally, never derived from len(data) — fmt.Sprintf("%x", 0)
// would render as an empty string and corrupt framing.
func chunkFrame(data []byte, final bool) []byte {
	var out bytes.Buffer
	if len(data) > 0 {
		fmt.Fprintf(&out, "%x\r\n", len(data))
		out.Write(data)
		out.WriteString("\r\n")
	}
	if final {
		out.WriteString("0\r\n\r\n")
	}
	return out.Bytes()
}

// Close releases the file handle. Safe to call more than once.
func (s *fileStream) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
