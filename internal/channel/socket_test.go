package channel

import (
	"runtime"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCreateNonblockingSocketIsUsable(t *testing.T) {
	fd, err := createNonblockingSocket(unix.AF_INET, unix.SOCK_STREAM)
	if err != nil {
		t.Fatalf("createNonblockingSocket: %v", err)
	}
	defer unix.Close(fd)

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("fcntl: %v", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		t.Fatalf("expected O_NONBLOCK to be set")
	}
}

func TestListenBacklogCapsOnWindows(t *testing.T) {
	got := listenBacklog(128)
	if runtime.GOOS == "windows" {
		if got != 5 {
			t.Fatalf("expected backlog capped to 5 on windows, got %d", got)
		}
		return
	}
	if got != 128 {
		t.Fatalf("expected backlog passed through unchanged, got %d", got)
	}
}

func TestSockaddrToIP4Format(t *testing.T) {
	sa := &unix.SockaddrInet4{Port: 8080, Addr: [4]byte{127, 0, 0, 1}}
	if got := sockaddrToIP4(sa); got != "127.0.0.1:8080" {
		t.Fatalf("got %q", got)
	}
}

func TestRemoteAddrStringUnknownSockaddr(t *testing.T) {
	if got := remoteAddrString(&unix.SockaddrUnix{Name: "/tmp/x"}); got != "" {
		t.Fatalf("expected empty string for unrecognized sockaddr, got %q", got)
	}
}

func TestSOErrorOnCleanSocket(t *testing.T) {
	fd, err := createNonblockingSocket(unix.AF_INET, unix.SOCK_STREAM)
	if err != nil {
		t.Fatalf("createNonblockingSocket: %v", err)
	}
	defer unix.Close(fd)

	if err := soError(fd); err != nil {
		t.Fatalf("expected no pending error on a fresh socket, got %v", err)
	}
}
