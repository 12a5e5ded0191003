package httpd

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/anamul-dev/reactord/internal/channel"
)

// connPair returns a Connection wired to one end of a non-blocking
// unix socketpair, plus the raw peer fd for writing requests and
// reading responses directly, without going through a full reactor.
func connPair(t *testing.T, root string) (*Connection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	ch := channel.New(fds[0])
	c := NewConnection(ch, root, nil)
	t.Cleanup(func() {
		_ = ch.Close()
		_ = unix.Close(fds[1])
	})
	return c, fds[1]
}

func sendRequest(t *testing.T, peer int, line string) {
	t.Helper()
	if _, err := unix.Write(peer, []byte(line)); err != nil {
		t.Fatalf("peer write: %v", err)
	}
}

func drainPeer(t *testing.T, peer int) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 4096)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := unix.Read(peer, buf)
		if err != nil {
			if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
				if out.Len() > 0 {
					return out.Bytes()
				}
				time.Sleep(time.Millisecond)
				continue
			}
			t.Fatalf("peer read: %v", err)
		}
		if n == 0 {
			return out.Bytes()
		}
		out.Write(buf[:n])
	}
	return out.Bytes()
}

// pumpWrites drives HandleWrite until the channel has nothing left to
// send, simulating however many writable events a real reactor would
// deliver while a streamed response drains.
func pumpWrites(c *Connection, ch *channel.Channel, max int) {
	for i := 0; i < max; i++ {
		c.HandleWrite(ch)
		if ch.Buffered() == 0 && c.stream == nil {
			return
		}
	}
}

func TestConnectionMissingFileIs404(t *testing.T) {
	root := t.TempDir()
	c, peer := connPair(t, root)

	sendRequest(t, peer, "GET /missing.html HTTP/1.1\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 4)

	resp := string(drainPeer(t, peer))
	if !strings.HasPrefix(resp, "HTTP/1.1 404") {
		t.Fatalf("expected 404 status line, got %q", resp)
	}
	if !strings.Contains(resp, "Not Found") {
		t.Fatalf("expected reason phrase in response: %q", resp)
	}
}

func TestConnectionIndexFallbackIs200(t *testing.T) {
	root := t.TempDir()
	body := "<html>hi</html>"
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, peer := connPair(t, root)

	sendRequest(t, peer, "GET / HTTP/1.1\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 4)

	resp := string(drainPeer(t, peer))
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("expected 200 status line, got %q", resp)
	}
	if !strings.HasSuffix(resp, body) {
		t.Fatalf("expected body to be appended, got %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: "+strconv.Itoa(len(body))) {
		t.Fatalf("expected matching content-length, got %q", resp)
	}
}

func TestConnectionHeadHasNoBody(t *testing.T) {
	root := t.TempDir()
	body := "0123456789"
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, peer := connPair(t, root)

	sendRequest(t, peer, "HEAD /f.txt HTTP/1.1\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 4)

	resp := string(drainPeer(t, peer))
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("expected 200 status line, got %q", resp)
	}
	if strings.Contains(resp, body) {
		t.Fatalf("HEAD response must not include the body: %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: 10") {
		t.Fatalf("expected true file size in Content-Length, got %q", resp)
	}
}

func TestConnectionUnsupportedMethodIs405(t *testing.T) {
	root := t.TempDir()
	c, peer := connPair(t, root)

	sendRequest(t, peer, "POST /f.txt HTTP/1.1\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 4)

	resp := string(drainPeer(t, peer))
	if !strings.HasPrefix(resp, "HTTP/1.1 405") {
		t.Fatalf("expected 405 status line, got %q", resp)
	}
}

func TestConnectionUnsupportedVersionIs505(t *testing.T) {
	root := t.TempDir()
	c, peer := connPair(t, root)

	sendRequest(t, peer, "GET /f.txt HTTP/3.0\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 4)

	resp := string(drainPeer(t, peer))
	if !strings.HasPrefix(resp, "HTTP/1.1 505") {
		t.Fatalf("expected 505 status line, got %q", resp)
	}
}

func TestConnectionLargeFileIsChunked(t *testing.T) {
	root := t.TempDir()
	size := chunkThreshold + 1000
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(filepath.Join(root, "big.txt"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	c, peer := connPair(t, root)

	sendRequest(t, peer, "GET /big.txt HTTP/1.1\r\n\r\n")
	c.HandleRead(c.ch)
	pumpWrites(c, c.ch, 16)

	resp := drainPeer(t, peer)
	if !bytes.Contains(resp, []byte("Transfer-Encoding: chunked")) {
		t.Fatalf("expected chunked transfer-encoding header")
	}
	if !bytes.HasSuffix(resp, []byte("0\r\n\r\n")) {
		t.Fatalf("expected chunked body to end with the terminator")
	}
}

func TestConnectionPartialRequestLineWaitsForMoreBytes(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, peer := connPair(t, root)

	sendRequest(t, peer, "GET / HTTP/1.")
	c.HandleRead(c.ch)
	if c.parsed {
		t.Fatalf("request line must not parse before the newline arrives")
	}

	sendRequest(t, peer, "1\r\n\r\n")
	c.HandleRead(c.ch)
	if !c.parsed {
		t.Fatalf("request line should parse once the newline arrives")
	}
}

