package endpoint

import (
	"os"
	"sync"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
)

// serialEndpoint wraps an *os.File open on a character device, configured
// for the requested baud rate by openSerialFile (platform-specific).
// Deadlines ride on os.File's own SetReadDeadline/SetWriteDeadline, which
// the Go runtime supports for non-blocking character devices the same way
// it does for pipes and ttys.
type serialEndpoint struct {
	id     string
	device string
	f      *os.File

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens the named physical serial device at baudRate 8N1,
// classifying failures per spec.md §4.1 (NotFound, Busy, PermissionDenied,
// InvalidConfig).
func OpenSerial(device string, baudRate int) (Endpoint, error) {
	if busy, holder := probeBusy(device); busy {
		return nil, bridgeerr.New(bridgeerr.KindDeviceOpen, "endpoint.OpenSerial", busyErr(device+" is already in use by "+holder))
	}
	f, err := openSerialFile(device, baudRate)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindDeviceOpen, "endpoint.OpenSerial", err)
	}
	return &serialEndpoint{id: newID(), device: device, f: f}, nil
}

type busyErr string

func (e busyErr) Error() string { return string(e) }

func (s *serialEndpoint) ID() string { return s.id }

func (s *serialEndpoint) Read(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, nil
	}
	n, err := s.f.Read(p)
	if err != nil {
		if os.IsTimeout(err) {
			return 0, nil
		}
		// Device gone (unplugged, pty peer closed): treat like a closed
		// endpoint rather than surfacing the error.
		s.Close()
		return 0, nil
	}
	return n, nil
}

func (s *serialEndpoint) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, nil
	}
	total := 0
	for total < len(p) {
		n, err := s.f.Write(p[total:])
		total += n
		if err != nil {
			return total, bridgeerr.New(bridgeerr.KindIO, "serialEndpoint.Write", err)
		}
	}
	return total, nil
}

func (s *serialEndpoint) SetReadDeadline(t time.Time) error  { return s.f.SetReadDeadline(t) }
func (s *serialEndpoint) SetWriteDeadline(t time.Time) error { return s.f.SetWriteDeadline(t) }

// Alive uses is_open plus, for device paths that look like pseudo-terminals
// (/dev/pts/* and /dev/ptmx), a filesystem-existence probe —
// deliberately avoiding a destructive read/peek on a real serial line, per
// spec.md §4.1 and §9.
func (s *serialEndpoint) Alive() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	if looksLikePseudoTerminal(s.device) {
		if _, err := os.Stat(s.device); err != nil {
			return false
		}
	}
	return true
}

func (s *serialEndpoint) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

func looksLikePseudoTerminal(device string) bool {
	return len(device) >= 9 && (device[:9] == "/dev/pts/" || device == "/dev/ptmx")
}
