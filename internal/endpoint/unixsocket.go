package endpoint

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
)

// unixSocketEndpoint implements the "unix:<path>" pseudo-serial kind: a
// Unix domain socket standing in for a real serial line, commonly paired
// with a pty or socat bridge during development (spec.md §1, §4.1).
type unixSocketEndpoint struct {
	id   string
	path string
	conn net.Conn

	mu     sync.Mutex
	closed bool
	alive  bool
}

// DialUnixSocket connects to a Unix domain socket acting as a pseudo-serial
// device.
func DialUnixSocket(path string) (Endpoint, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindDeviceOpen, "endpoint.DialUnixSocket", err)
	}
	return &unixSocketEndpoint{id: newID(), path: path, conn: conn, alive: true}, nil
}

func (u *unixSocketEndpoint) ID() string { return u.id }

func (u *unixSocketEndpoint) Read(p []byte) (int, error) {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return 0, nil
	}
	n, err := u.conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil
		}
		u.mu.Lock()
		u.alive = false
		u.mu.Unlock()
		return 0, nil
	}
	return n, nil
}

func (u *unixSocketEndpoint) Write(p []byte) (int, error) {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if closed {
		return 0, nil
	}
	n, err := writeAll(u.conn, p)
	if err != nil {
		u.mu.Lock()
		u.alive = false
		u.mu.Unlock()
		return n, bridgeerr.New(bridgeerr.KindIO, "unixSocketEndpoint.Write", err)
	}
	return n, nil
}

func (u *unixSocketEndpoint) SetReadDeadline(t time.Time) error  { return u.conn.SetReadDeadline(t) }
func (u *unixSocketEndpoint) SetWriteDeadline(t time.Time) error { return u.conn.SetWriteDeadline(t) }

func (u *unixSocketEndpoint) Alive() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.alive && !u.closed
}

func (u *unixSocketEndpoint) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	u.alive = false
	return u.conn.Close()
}
