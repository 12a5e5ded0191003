package channel

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// createNonblockingSocket allocates a non-blocking socket of the given
// family/type.
func createNonblockingSocket(family, sotype int) (int, error) {
	fd, err := unix.Socket(family, sotype, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// setReuseAddr is best-effort: failures are ignored.
func setReuseAddr(fd int) {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// listenBacklog caps the backlog at 5 on Windows, matching the historic
// Winsock SOMAXCONN limit; everywhere else the caller's value passes
// through untouched.
func listenBacklog(n int) int {
	if runtime.GOOS == "windows" && n > 5 {
		return 5
	}
	return n
}

func soError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func sockaddrToIP4(sa *unix.SockaddrInet4) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3], sa.Port)
}

func sockaddrToIP6(sa *unix.SockaddrInet6) string {
	return fmt.Sprintf("[%x]:%d", sa.Addr, sa.Port)
}

// remoteAddrString renders a raw sockaddr from accept(2) as a printable
// address; used for the (optional) remote-address attribute on a
// channel.
func remoteAddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return sockaddrToIP4(v)
	case *unix.SockaddrInet6:
		return sockaddrToIP6(v)
	default:
		return ""
	}
}
