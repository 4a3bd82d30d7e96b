// Package bridge implements the concurrent copy engine that turns a serial
// (or pseudo-serial) endpoint and a TCP endpoint into a single full-duplex
// PPP conduit, with escape-sequence sniffing, LCP-terminate detection and
// an inactivity watchdog (spec.md §4.4 C4).
package bridge

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fogwraith/crossbridge/internal/endpoint"
	"github.com/fogwraith/crossbridge/internal/logging"
)

// Outcome is the single reason the engine stopped.
type Outcome int

const (
	OutcomeIOError Outcome = iota
	OutcomeEscapeToCommand
	OutcomeClientHangup
	OutcomeLCPTerminate
	OutcomePeerClosed
	OutcomeInactivity
	OutcomeServerSilent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEscapeToCommand:
		return "ESCAPE_TO_COMMAND"
	case OutcomeClientHangup:
		return "CLIENT_HANGUP"
	case OutcomeLCPTerminate:
		return "LCP_TERMINATE"
	case OutcomePeerClosed:
		return "PEER_CLOSED"
	case OutcomeInactivity:
		return "INACTIVITY"
	case OutcomeServerSilent:
		return "SERVER_SILENT"
	default:
		return "IO_ERROR"
	}
}

const noCarrier = "\r\nNO CARRIER\r\n"

var lcpTerminatePatterns = [][]byte{
	{0xFF, 0x03, 0xC0, 0x21, 0x05},
	{0xFF, 0x03, 0xC0, 0x21, 0x06},
}

// Codec is the optional injectable compression hook. An engine with a nil
// Codec is pure passthrough.
type Codec interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

// Options configures one Run. Zero value is not valid; use DefaultOptions
// and override individual fields.
type Options struct {
	// SniffEscape enables +++ and ~. detection on the A (serial) side.
	// Direct mode leaves this false: it is fully transparent except for
	// LCP-terminate and the watchdog.
	SniffEscape bool

	ReadDeadline      time.Duration
	WriteDeadline     time.Duration
	InactivityTimeout time.Duration

	// Codec, if non-nil, wraps A->B writes with Compress and B->A writes
	// with Decompress.
	Codec Codec
}

// DefaultOptions matches spec.md §5's suspension model: 100ms reads, 5s
// writes, 300s inactivity.
func DefaultOptions() Options {
	return Options{
		ReadDeadline:      100 * time.Millisecond,
		WriteDeadline:     5 * time.Second,
		InactivityTimeout: 300 * time.Second,
	}
}

// engine holds the state shared between the two copy directions and the
// watchdog: a one-shot stop signal and per-direction last-activity clocks.
// No lock is needed beyond what sync.Once and atomic give us, per spec.md
// §5: reads are single-writer, the stop signal is write-once.
type engine struct {
	a, b endpoint.Endpoint
	opts Options

	stopCh    chan struct{}
	stopOnce  sync.Once
	outcome   Outcome

	lastA atomic.Int64 // unix nano, direction A->B
	lastB atomic.Int64 // unix nano, direction B->A
}

// Run bridges a (serial side) and b (TCP side) until one of the stop
// conditions in spec.md §4.4 fires, and returns the outcome. Run does not
// close either endpoint; the caller (the modem state machine or the
// supervisor) owns that decision per spec.md §4.6.
func Run(a, b endpoint.Endpoint, opts Options) Outcome {
	e := &engine{a: a, b: b, opts: opts, stopCh: make(chan struct{})}
	now := time.Now().UnixNano()
	e.lastA.Store(now)
	e.lastB.Store(now)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.copyAtoB() }()
	go func() { defer wg.Done(); e.copyBtoA() }()
	go func() { defer wg.Done(); e.watchdog() }()
	wg.Wait()

	return e.outcome
}

func (e *engine) stop(o Outcome) {
	e.stopOnce.Do(func() {
		e.outcome = o
		close(e.stopCh)
	})
}

func (e *engine) stopped() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

func (e *engine) writeNoCarrier() {
	if err := e.a.SetWriteDeadline(time.Now().Add(e.opts.WriteDeadline)); err != nil {
		logging.Debug("bridge: failed setting NO CARRIER write deadline: %v", err)
		return
	}
	if _, err := e.a.Write([]byte(noCarrier)); err != nil {
		logging.Debug("bridge: failed writing NO CARRIER: %v", err)
	}
}

// copyAtoB is the serial->TCP direction. When SniffEscape is set it
// maintains a bounded trailing window over the bytes it has seen (not
// consumed — the same bytes are still forwarded) to detect the Hayes
// escape sequence and the client-hangup shorthand.
func (e *engine) copyAtoB() {
	buf := make([]byte, 4096)
	var ring []byte
	var pending []byte

	for !e.stopped() {
		var chunk []byte
		if len(pending) > 0 {
			chunk, pending = pending, nil
		} else {
			if err := e.a.SetReadDeadline(time.Now().Add(e.opts.ReadDeadline)); err != nil {
				e.stop(OutcomeIOError)
				return
			}
			n, _ := e.a.Read(buf)
			if n == 0 {
				if !e.a.Alive() {
					e.stop(OutcomeIOError)
					return
				}
				continue
			}
			chunk = append([]byte(nil), buf[:n]...)
		}

		e.lastA.Store(time.Now().UnixNano())

		if e.opts.SniffEscape {
			ring = appendCapped(ring, chunk, 20)

			if bytes.Contains(ring, []byte("~.")) {
				e.stop(OutcomeClientHangup)
				return
			}

			if bytes.HasSuffix(ring, []byte("+++")) {
				more, quiet := e.awaitQuiet()
				if quiet {
					e.stop(OutcomeEscapeToCommand)
					return
				}
				// Not quiet: the +++ was ordinary data in flight. Forward
				// the chunk that triggered the check, then process
				// whatever arrived during the quiet window next.
				if err := e.forwardToB(chunk); err != nil {
					e.stop(OutcomeIOError)
					return
				}
				pending = more
				continue
			}
		}

		if err := e.forwardToB(chunk); err != nil {
			e.stop(OutcomeIOError)
			return
		}
	}
}

// awaitQuiet waits up to 1 second for further serial data after a trailing
// +++ is observed, per spec.md §4.4 and the open-question resolution in
// §9(b): only a trailing quiet interval is required, no leading guard time.
func (e *engine) awaitQuiet() (data []byte, quiet bool) {
	if err := e.a.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		return nil, true
	}
	buf := make([]byte, 4096)
	n, _ := e.a.Read(buf)
	if n == 0 {
		return nil, true
	}
	return append([]byte(nil), buf[:n]...), false
}

func (e *engine) forwardToB(p []byte) error {
	if e.opts.Codec != nil {
		compressed, err := e.opts.Codec.Compress(p)
		if err != nil {
			return err
		}
		p = compressed
	}
	if err := e.b.SetWriteDeadline(time.Now().Add(e.opts.WriteDeadline)); err != nil {
		return err
	}
	_, err := e.b.Write(p)
	return err
}

// copyBtoA is the TCP->serial direction: transparent forwarding with a
// sniff for the PPP LCP Terminate-Request/Ack byte patterns.
func (e *engine) copyBtoA() {
	buf := make([]byte, 4096)
	for !e.stopped() {
		if err := e.b.SetReadDeadline(time.Now().Add(e.opts.ReadDeadline)); err != nil {
			e.stop(OutcomeIOError)
			return
		}
		n, _ := e.b.Read(buf)
		if n == 0 {
			if !e.b.Alive() {
				e.writeNoCarrier()
				e.stop(OutcomePeerClosed)
				return
			}
			continue
		}

		chunk := buf[:n]
		e.lastB.Store(time.Now().UnixNano())

		terminate := false
		for _, pattern := range lcpTerminatePatterns {
			if bytes.Contains(chunk, pattern) {
				terminate = true
				break
			}
		}

		if err := e.forwardToA(chunk); err != nil {
			e.stop(OutcomeIOError)
			return
		}

		if terminate {
			time.Sleep(500 * time.Millisecond)
			e.writeNoCarrier()
			e.stop(OutcomeLCPTerminate)
			return
		}
	}
}

func (e *engine) forwardToA(p []byte) error {
	if e.opts.Codec != nil {
		plain, err := e.opts.Codec.Decompress(p)
		if err != nil {
			return err
		}
		p = plain
	}
	if err := e.a.SetWriteDeadline(time.Now().Add(e.opts.WriteDeadline)); err != nil {
		return err
	}
	_, err := e.a.Write(p)
	return err
}

// watchdog enforces the two inactivity rules from spec.md §4.4: an overall
// 300s silence on both directions, and a secondary rule catching a server
// that has gone silent for 60s while the client is still actively sending.
func (e *engine) watchdog() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
		}

		now := time.Now()
		lastA := time.Unix(0, e.lastA.Load())
		lastB := time.Unix(0, e.lastB.Load())
		last := lastA
		if lastB.After(last) {
			last = lastB
		}

		if now.Sub(last) > e.opts.InactivityTimeout {
			e.writeNoCarrier()
			e.stop(OutcomeInactivity)
			return
		}
		if now.Sub(lastB) > 60*time.Second && now.Sub(lastA) < 30*time.Second {
			e.writeNoCarrier()
			e.stop(OutcomeServerSilent)
			return
		}
	}
}

func appendCapped(ring, data []byte, cap int) []byte {
	ring = append(ring, data...)
	if len(ring) > cap {
		ring = ring[len(ring)-cap:]
	}
	return ring
}
