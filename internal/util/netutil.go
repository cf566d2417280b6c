package util

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

const (
	// ListenFdsEnvKey is the environment variable carrying the number of
	// listening sockets handed over by a supervisor (systemd-style socket
	// activation).
	ListenFdsEnvKey = "LISTEN_FDS"
	// ListenPidEnvKey names the process the inherited sockets are meant for.
	ListenPidEnvKey = "LISTEN_PID"
)

// listenFdsStart is the first inherited descriptor number. Tests point it at
// a descriptor they own.
var listenFdsStart = 3

// ParseInheritedListenerFDs returns the file descriptors passed to this
// process through LISTEN_FDS/LISTEN_PID. It returns nil when nothing was
// passed or the sockets were meant for another process.
func ParseInheritedListenerFDs(getenv func(string) string, pid int) ([]uintptr, error) {
	countStr := getenv(ListenFdsEnvKey)
	if countStr == "" {
		return nil, nil
	}
	if pidStr := getenv(ListenPidEnvKey); pidStr != "" {
		want, err := strconv.Atoi(pidStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", ListenPidEnvKey, pidStr, err)
		}
		if want != pid {
			return nil, nil
		}
	}
	n, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", ListenFdsEnvKey, countStr, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid negative %s value %d", ListenFdsEnvKey, n)
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(listenFdsStart + i)
	}
	return fds, nil
}

// NewListenerFromFD wraps an inherited listening socket.
func NewListenerFromFD(fd uintptr) (net.Listener, error) {
	file := os.NewFile(fd, fmt.Sprintf("listener-from-fd-%d", fd))
	if file == nil {
		return nil, fmt.Errorf("os.NewFile returned nil for FD %d", fd)
	}
	// net.FileListener dups the descriptor, so the inherited one can be closed.
	defer file.Close()

	listener, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("net.FileListener failed for FD %d: %w", fd, err)
	}
	return listener, nil
}

// Listen returns the first socket inherited from a supervisor if there is
// one, and otherwise opens a new TCP listener on address.
func Listen(address string) (net.Listener, error) {
	fds, err := ParseInheritedListenerFDs(os.Getenv, os.Getpid())
	if err != nil {
		return nil, err
	}
	if len(fds) > 0 {
		for _, extra := range fds[1:] {
			os.NewFile(extra, "unused-inherited-listener").Close()
		}
		return NewListenerFromFD(fds[0])
	}

	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return l, nil
}
