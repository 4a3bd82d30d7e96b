package endpoint

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
)

// tcpEndpoint is the C2 TCP client transport: dial the server, then behave
// as a plain Endpoint with per-operation deadlines and distinct signaling
// of orderly close vs. deadline expiry.
type tcpEndpoint struct {
	id   string
	conn net.Conn

	mu     sync.Mutex
	closed bool
	alive  bool
}

// Dial opens a TCP connection to host:port, failing fast per spec.md §4.2's
// error taxonomy (Timeout, Refused, Unreachable, Resolve).
func Dial(host, port string, connectDeadline time.Duration) (Endpoint, error) {
	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, connectDeadline)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindDialFailed, "endpoint.Dial", err)
	}
	return &tcpEndpoint{id: newID(), conn: conn, alive: true}, nil
}

// DialPort is a convenience wrapper accepting an integer port.
func DialPort(host string, port int, connectDeadline time.Duration) (Endpoint, error) {
	return Dial(host, strconv.Itoa(port), connectDeadline)
}

func (t *tcpEndpoint) ID() string { return t.id }

func (t *tcpEndpoint) Read(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, nil
	}
	n, err := t.conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil
		}
		// Any other read error (EOF, reset, closed pipe) means the peer
		// is gone: report it as an orderly close rather than surfacing
		// the error, per the Endpoint.Read contract.
		t.mu.Lock()
		t.alive = false
		t.mu.Unlock()
		return 0, nil
	}
	return n, nil
}

func (t *tcpEndpoint) Write(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, nil
	}
	n, err := writeAll(t.conn, p)
	if err != nil {
		t.mu.Lock()
		t.alive = false
		t.mu.Unlock()
		return n, bridgeerr.New(bridgeerr.KindIO, "tcpEndpoint.Write", err)
	}
	return n, nil
}

func (t *tcpEndpoint) SetReadDeadline(tm time.Time) error  { return t.conn.SetReadDeadline(tm) }
func (t *tcpEndpoint) SetWriteDeadline(tm time.Time) error { return t.conn.SetWriteDeadline(tm) }

// Alive reports the last-observed liveness. For the TCP kind this is
// updated by Read/Write rather than a destructive peek, since those calls
// already run on the same deadline cadence the bridge engine uses.
func (t *tcpEndpoint) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive && !t.closed
}

func (t *tcpEndpoint) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.alive = false
	return t.conn.Close()
}
