// Package endpoint implements the byte-stream contract shared by physical
// serial ports, Unix-domain-socket-backed pseudo-serial devices, and
// outbound TCP connections (spec.md §4.1 C1). The bridge engine and the
// modem state machine only ever see the Endpoint interface.
package endpoint

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
)

// Endpoint is an opaque bidirectional byte stream.
//
// Read returns an empty slice (not an error) both on deadline expiry and on
// orderly peer close; the two are distinguished by Alive(): a deadline
// leaves Alive() true, an orderly close flips it to false. Write retries
// partial writes internally so that a successful call always reports
// len(p) written. After Close, every Read returns empty and every Write
// returns zero; Alive never becomes true again.
type Endpoint interface {
	// ID identifies this endpoint instance for logging/correlation.
	ID() string
	// Read reads up to len(p) bytes, blocking until data arrives or the
	// current read deadline elapses. Returns (0, nil) on deadline expiry.
	Read(p []byte) (int, error)
	// Write writes all of p, retrying partial writes, blocking up to the
	// current write deadline.
	Write(p []byte) (int, error)
	// SetReadDeadline sets the deadline for the next Read call(s).
	SetReadDeadline(t time.Time) error
	// SetWriteDeadline sets the deadline for the next Write call(s).
	SetWriteDeadline(t time.Time) error
	// Alive performs a best-effort, non-destructive liveness probe.
	Alive() bool
	// Close releases the underlying resource. Idempotent.
	Close() error
}

// Kind identifies which of the three concrete Endpoint implementations a
// device string selects.
type Kind int

const (
	KindSerial Kind = iota
	KindUnixSocket
	KindTCP
)

// ParseDevice classifies a device string per spec.md §6's grammar:
// COM<n> | /dev/<name> | unix:<path> | tcp:<host>:<port>. The bare-name
// (no prefix) form is also accepted as a physical serial device, matching
// the original source's acceptance of arbitrary device paths.
func ParseDevice(device string) (kind Kind, target string, err error) {
	switch {
	case strings.HasPrefix(device, "unix:"):
		return KindUnixSocket, strings.TrimPrefix(device, "unix:"), nil
	case strings.HasPrefix(device, "tcp:"):
		return KindTCP, strings.TrimPrefix(device, "tcp:"), nil
	case device == "":
		return KindSerial, device, bridgeerr.New(bridgeerr.KindDeviceOpen, "endpoint.ParseDevice", errEmptyDevice)
	default:
		return KindSerial, device, nil
	}
}

var errEmptyDevice = deviceErr("device string is empty")

type deviceErr string

func (e deviceErr) Error() string { return string(e) }

// Open opens the Endpoint named by device at the given baud rate (ignored
// for non-serial kinds) using dialDeadline for the TCP kind.
func Open(device string, baudRate int, dialDeadline time.Duration) (Endpoint, error) {
	kind, target, err := ParseDevice(device)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindUnixSocket:
		return DialUnixSocket(target)
	case KindTCP:
		host, port, splitErr := splitHostPort(target)
		if splitErr != nil {
			return nil, bridgeerr.New(bridgeerr.KindDeviceOpen, "endpoint.Open", splitErr)
		}
		return Dial(host, port, dialDeadline)
	default:
		return OpenSerial(target, baudRate)
	}
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return "", "", deviceErr("expected host:port, got " + hostport)
	}
	return hostport[:idx], hostport[idx+1:], nil
}

func newID() string { return uuid.NewString() }
