package httpd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drainStream(t *testing.T, s *fileStream) []byte {
	t.Helper()
	var out bytes.Buffer
	for {
		frame, final, err := s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out.Write(frame)
		if final {
			return out.Bytes()
		}
	}
}

func TestFileStreamNonChunkedRoundTrip(t *testing.T) {
	path := writeTempFile(t, 10)
	want, _ := os.ReadFile(path)

	s, err := openFileStream(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := drainStream(t, s)
	if !bytes.Equal(got, want) {
		t.Fatalf("non-chunked round trip mismatch")
	}
}

func TestFileStreamChunkedFramingSingleFrame(t *testing.T) {
	path := writeTempFile(t, 10)
	want, _ := os.ReadFile(path)

	s, err := openFileStream(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame, final, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !final {
		t.Fatalf("a file smaller than one buffer should finish in one frame")
	}

	expected := []byte("a\r\n")
	expected = append(expected, want...)
	expected = append(expected, []byte("\r\n0\r\n\r\n")...)
	if !bytes.Equal(frame, expected) {
		t.Fatalf("chunk framing mismatch:\ngot  %q\nwant %q", frame, expected)
	}
}

func TestFileStreamChunkedMultiFrameBoundary(t *testing.T) {
	size := streamBufSize*2 + 100
	path := writeTempFile(t, size)

	s, err := openFileStream(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frameCount := 0
	for {
		frame, final, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		frameCount++
		if bytes.IndexByte(frame, '\n') < 0 {
			t.Fatalf("frame missing CRLF header: %q", frame)
		}
		if final {
			if !bytes.HasSuffix(frame, []byte("0\r\n\r\n")) {
				t.Fatalf("final frame must end with the literal terminator, got %q", frame)
			}
			break
		}
	}
	if frameCount < 2 {
		t.Fatalf("expected more than one frame for a %d-byte file with %d buffer size", size, streamBufSize)
	}
}

func TestFileStreamEmptyFileEmitsOnlyTerminator(t *testing.T) {
	path := writeTempFile(t, 0)

	s, err := openFileStream(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame, final, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !final {
		t.Fatalf("empty file must finish on the first Next call")
	}
	if string(frame) != "0\r\n\r\n" {
		t.Fatalf("expected bare terminator for empty file, got %q", frame)
	}
}

func TestFileStreamNextAfterDoneReturnsFinalNil(t *testing.T) {
	path := writeTempFile(t, 4)
	s, err := openFileStream(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, final, err := s.Next()
	if err != nil || !final {
		t.Fatalf("expected immediate final frame for a tiny file")
	}

	frame, final, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if !final || len(frame) != 0 {
		t.Fatalf("Next after done must return (nil, true, nil)")
	}
}

func TestFileStreamCloseIsIdempotent(t *testing.T) {
	path := writeTempFile(t, 4)
	s, err := openFileStream(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}
