// Package handshake implements the two-step text protocol the server
// expects immediately after a TCP dial: a credential line, followed by a
// NEGOTIATE (or ERROR) line giving the connect speed and type (spec.md
// §4.3 C3).
package handshake

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
	"github.com/fogwraith/crossbridge/internal/endpoint"
)

const (
	credentialsDeadline = 2 * time.Second
	negotiationDeadline = 10 * time.Second
	readChunk           = 1024

	// FallbackType is recorded when negotiation times out and the caller
	// falls back to the configured connect_speed (spec.md §4.3 step 2).
	FallbackType = "V.34+"
)

// Result is the (speed, type) pair taken from the server's NEGOTIATE line.
type Result struct {
	Speed int
	Type  string
}

type lineErr string

func (e lineErr) Error() string { return string(e) }

var (
	errAuthRejected      = lineErr("server reported authentication failure")
	errNegotiationTimeout = lineErr("timed out waiting for NEGOTIATE line")
)

// Run sends credentials and then negotiates speed, returning the recorded
// result. Negotiation timeout is reported as a bridgeerr of kind
// NegotiationTimeout; callers in emulation mode may choose to fall back to
// fallbackSpeed/FallbackType instead of treating it as fatal (spec.md §7).
func Run(ep endpoint.Endpoint, username, password string, fallbackSpeed int) (*Result, error) {
	if err := Authenticate(ep, username, password); err != nil {
		return nil, err
	}
	return Negotiate(ep, fallbackSpeed)
}

// Authenticate sends "<username>:<password>\r\n" and classifies the
// server's immediate response. A read timeout is treated as tentative
// success, since the server frequently stays silent on a successful login.
func Authenticate(ep endpoint.Endpoint, username, password string) error {
	if _, err := ep.Write([]byte(username + ":" + password + "\r\n")); err != nil {
		return err
	}
	if err := ep.SetReadDeadline(time.Now().Add(credentialsDeadline)); err != nil {
		return err
	}
	buf := make([]byte, 1024)
	n, err := ep.Read(buf)
	if err != nil {
		return err
	}
	if bytes.Contains(buf[:n], []byte("Authentication failed")) {
		return bridgeerr.New(bridgeerr.KindAuthRejected, "handshake.Authenticate", errAuthRejected)
	}
	return nil
}

// Negotiate reads LF-terminated lines until one begins with "NEGOTIATE:" or
// "ERROR:", or the overall deadline elapses. Per spec.md §4.3, the handshake
// owns its own read buffer and discards everything up to and including the
// matched line; bytes following it in the same read are deliberately
// dropped rather than spliced into the caller's subsequent reads from the
// same endpoint, keeping the handshake/PPP boundary clean (see design
// notes on the source's occasional splicing).
func Negotiate(ep endpoint.Endpoint, fallbackSpeed int) (*Result, error) {
	return negotiateWithin(ep, fallbackSpeed, negotiationDeadline)
}

func negotiateWithin(ep endpoint.Endpoint, fallbackSpeed int, timeout time.Duration) (*Result, error) {
	deadline := time.Now().Add(timeout)
	var acc []byte
	for {
		if time.Now().After(deadline) {
			return nil, bridgeerr.New(bridgeerr.KindNegotiationTimeout, "handshake.Negotiate", errNegotiationTimeout)
		}
		if err := ep.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		buf := make([]byte, readChunk)
		n, err := ep.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if !ep.Alive() {
				return nil, bridgeerr.New(bridgeerr.KindNegotiationTimeout, "handshake.Negotiate", errNegotiationTimeout)
			}
			continue
		}
		acc = append(acc, buf[:n]...)
		for {
			idx := bytes.IndexByte(acc, '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(string(acc[:idx]))
			acc = acc[idx+1:]
			switch {
			case strings.HasPrefix(line, "NEGOTIATE:"):
				return parseNegotiateLine(line, fallbackSpeed)
			case strings.HasPrefix(line, "ERROR:"):
				return nil, bridgeerr.New(bridgeerr.KindNegotiationRejected, "handshake.Negotiate", lineErr(line))
			}
		}
	}
}

func parseNegotiateLine(line string, fallbackSpeed int) (*Result, error) {
	fields := strings.SplitN(line, ":", 3)
	if len(fields) != 3 {
		return nil, bridgeerr.New(bridgeerr.KindNegotiationRejected, "handshake.Negotiate", lineErr("malformed NEGOTIATE line: "+line))
	}
	speed, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return &Result{Speed: fallbackSpeed, Type: FallbackType}, nil
	}
	return &Result{Speed: speed, Type: strings.TrimSpace(fields[2])}, nil
}
