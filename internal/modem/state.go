package modem

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridge"
	"github.com/fogwraith/crossbridge/internal/bridgeerr"
	"github.com/fogwraith/crossbridge/internal/endpoint"
	"github.com/fogwraith/crossbridge/internal/handshake"
	"github.com/fogwraith/crossbridge/internal/logging"
)

// Mode is the modem's COMMAND/DATA state (spec.md §3 "Modem state").
type Mode int

const (
	ModeCommand Mode = iota
	ModeData
)

// Dialer opens the TCP session to the VesperNet server. Production code
// uses DialServer (endpoint.DialPort); tests substitute a fake.
type Dialer func(host string, port int, deadline time.Duration) (endpoint.Endpoint, error)

// DialServer is the default Dialer.
func DialServer(host string, port int, deadline time.Duration) (endpoint.Endpoint, error) {
	return endpoint.DialPort(host, port, deadline)
}

// Config are the fields of the external configuration the modem state
// machine consults (spec.md §6).
type Config struct {
	Username string
	Password string

	ServerHost string
	ServerPort int

	BaudRate     int // DTE speed; cosmetic only, reported by ATI1
	ConnectSpeed int // fallback DCE speed when negotiation doesn't run

	DialDeadline      time.Duration
	InactivityTimeout time.Duration

	// SuppressBanners skips the cosmetic Dialing.../Ringing.../Protocol:
	// lines emitted during a dial (spec.md §4.6: "MAY be suppressed per
	// platform"). Tests set this to avoid the real-time sleeps between
	// banner lines.
	SuppressBanners bool
}

// DefaultConfig fills in spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		BaudRate:          38400,
		ConnectSpeed:      33600,
		DialDeadline:      30 * time.Second,
		InactivityTimeout: 300 * time.Second,
	}
}

// State is the Hayes modem state machine (C6). It owns the serial endpoint
// for the process lifetime and, while connected, an owned TCP endpoint.
// State is driven from a single goroutine (spec.md §5: C5+C6 run as one
// task), so apart from connected/tcp (guarded by statusMu, below) its
// fields need no synchronization of their own.
type State struct {
	serial endpoint.Endpoint
	cfg    Config
	dial   Dialer
	parser Parser

	mode      Mode
	connected bool
	tcp       endpoint.Endpoint

	// statusMu guards connected/tcp against the supervisor's heartbeat
	// goroutine, which reads them via Connected/Alive concurrently with
	// Run's own single-goroutine writes.
	statusMu sync.Mutex

	sregs   [256]byte
	echo    bool
	verbose bool

	negotiatedSpeed int
	negotiatedType  string
}

// NewState constructs a modem bound to serial, with the default S-register
// values from spec.md §3.
func NewState(serial endpoint.Endpoint, cfg Config, dial Dialer) *State {
	if dial == nil {
		dial = DialServer
	}
	s := &State{
		serial:  serial,
		cfg:     cfg,
		dial:    dial,
		verbose: true,
	}
	s.sregs[0] = 0
	s.sregs[2] = '+'
	s.sregs[3] = 13
	s.sregs[4] = 10
	s.sregs[5] = 8
	s.sregs[6] = 2
	s.sregs[7] = 50
	s.sregs[12] = 50
	return s
}

// reset restores ATZ's defaults in place. It must not struct-copy over s
// (statusMu guards connected/tcp against the heartbeat goroutine, and a
// struct copy both duplicates the lock value and overwrites those fields
// outside it), so every field is reset individually instead, closing any
// live TCP endpoint through closeTCP the same way a hangup would.
func (s *State) reset() {
	s.closeTCP()
	s.mode = ModeCommand
	s.parser.Reset()
	s.sregs = [256]byte{}
	s.sregs[2] = '+'
	s.sregs[3] = 13
	s.sregs[4] = 10
	s.sregs[5] = 8
	s.sregs[6] = 2
	s.sregs[7] = 50
	s.sregs[12] = 50
	s.echo = false
	s.verbose = true
	s.negotiatedSpeed = 0
	s.negotiatedType = ""
}

// Run drives serial I/O in COMMAND mode, dispatching AT commands, until
// stopCh is closed. While connected it blocks synchronously inside the
// bridge engine (spec.md §5: "C5+C6 run in a single task ... transfers
// ownership of the serial endpoint to C4").
func (s *State) Run(stopCh <-chan struct{}) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		if err := s.serial.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return err
		}
		n, _ := s.serial.Read(buf)
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)

		if s.Connected() && s.mode == ModeCommand && hasPPPEscapeHatch(chunk) {
			s.enterDataViaEscapeHatch(chunk)
			continue
		}

		for _, cmd := range s.parser.Feed(chunk) {
			s.dispatch(cmd)
		}
	}
}

// Connected reports whether a TCP session is currently active. Safe to
// call concurrently with Run: the supervisor's heartbeat job is the only
// other reader.
func (s *State) Connected() bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.connected
}

// Alive reports the connected session's endpoint liveness, or false if
// there is no active session.
func (s *State) Alive() bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if !s.connected || s.tcp == nil {
		return false
	}
	return s.tcp.Alive()
}

// setStatus updates connected/tcp under statusMu. Run's goroutine is the
// only writer; it must call this instead of assigning the fields directly
// at every connect/disconnect transition.
func (s *State) setStatus(connected bool, tcp endpoint.Endpoint) {
	s.statusMu.Lock()
	s.connected = connected
	s.tcp = tcp
	s.statusMu.Unlock()
}

// currentTCP returns the active TCP endpoint, or nil if there is none.
func (s *State) currentTCP() endpoint.Endpoint {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.tcp
}

// hasPPPEscapeHatch implements spec.md §4.6's "PPP-in-command-mode escape
// hatch": a tilde (0x7E, which also covers the two-byte "~}" flag) or the
// PPP address/control prefix FF 03 arriving before any CR means the client
// skipped ATO and is already speaking PPP.
func hasPPPEscapeHatch(chunk []byte) bool {
	search := chunk
	if idx := bytes.IndexByte(chunk, '\r'); idx >= 0 {
		search = chunk[:idx]
	}
	return bytes.IndexByte(search, 0x7E) >= 0 || bytes.Contains(search, []byte{0xFF, 0x03})
}

func (s *State) enterDataViaEscapeHatch(chunk []byte) {
	tcp := s.currentTCP()
	if tcp == nil {
		return
	}
	logging.Info("modem: PPP bytes seen in command mode, entering data mode without ATO")
	if _, err := tcp.Write(chunk); err != nil {
		logging.Warn("modem: failed forwarding escape-hatch bytes: %v", err)
	}
	s.parser.Reset()
	s.mode = ModeData
	outcome := bridge.Run(s.serial, tcp, s.bridgeOptions(true))
	s.reactToBridgeOutcome(outcome)
}

func (s *State) bridgeOptions(sniffEscape bool) bridge.Options {
	opts := bridge.DefaultOptions()
	opts.SniffEscape = sniffEscape
	if s.cfg.InactivityTimeout > 0 {
		opts.InactivityTimeout = s.cfg.InactivityTimeout
	}
	return opts
}

// dispatch executes one parsed command and writes its response(s) to the
// serial endpoint.
func (s *State) dispatch(cmd Command) {
	logging.Debug("modem: command %s", cmd.Raw)
	switch cmd.Family {
	case FamilyNoOp:
		s.respond("OK")
	case FamilyReset:
		s.reset()
		s.respond("OK")
	case FamilyIdentity:
		s.handleIdentity(cmd)
	case FamilyEcho:
		s.echo = cmd.On
		s.respond("OK")
	case FamilyVerbose:
		s.verbose = cmd.On
		s.respond("OK")
	case FamilySpeaker:
		s.respond("OK")
	case FamilySRegister:
		s.handleSRegister(cmd)
	case FamilyAnswer:
		s.respond("NO CARRIER")
	case FamilyAmpersand, FamilyPercent, FamilyExtended:
		s.respond("OK")
	case FamilyStar:
		s.handleStar(cmd)
	case FamilyDial:
		s.handleDial(cmd)
	case FamilyOnline:
		s.handleOnline()
	case FamilyHangup:
		s.handleHangup()
	default:
		s.respond("OK")
	}
}

func (s *State) handleIdentity(cmd Command) {
	switch cmd.Identity {
	case 0:
		s.writeLine("VesperNet Hayes Compatible Modem v2.0")
	case 1:
		if s.Connected() && s.negotiatedSpeed != 0 {
			s.writeLine(fmt.Sprintf("Connected at %d bps (%s)", s.negotiatedSpeed, s.negotiatedType))
			s.writeLine(fmt.Sprintf("DTE Speed: %d bps", s.cfg.BaudRate))
			s.writeLine(fmt.Sprintf("DCE Speed: %d bps", s.negotiatedSpeed))
		} else {
			s.writeLine("Not connected")
		}
	case 4:
		if s.negotiatedSpeed != 0 {
			s.writeLine(fmt.Sprintf("Line Speed: %d bps", s.negotiatedSpeed))
			s.writeLine(fmt.Sprintf("Protocol: %s", s.negotiatedType))
		} else {
			s.writeLine("No active connection")
		}
	}
	s.respond("OK")
}

func (s *State) handleStar(cmd Command) {
	if strings.HasPrefix(strings.TrimPrefix(cmd.Raw, "AT*"), "N") {
		if s.negotiatedSpeed != 0 {
			s.writeLine(fmt.Sprintf("*N: %d bps via %s", s.negotiatedSpeed, s.negotiatedType))
		} else {
			s.writeLine("*N: No negotiation")
		}
	}
	s.respond("OK")
}

func (s *State) handleSRegister(cmd Command) {
	if cmd.Register < 0 || cmd.Register > 255 {
		s.respond("ERROR")
		return
	}
	switch {
	case cmd.Query:
		s.writeLine(fmt.Sprintf("%03d", s.sregs[cmd.Register]))
		s.respond("OK")
	default:
		if cmd.HasValue {
			s.sregs[cmd.Register] = byte(((cmd.Value % 256) + 256) % 256)
		}
		s.respond("OK")
	}
}

// handleDial implements spec.md §4.6's Dial behaviour.
func (s *State) handleDial(cmd Command) {
	s.closeTCP()

	tcp, err := s.dial(s.cfg.ServerHost, s.cfg.ServerPort, s.cfg.DialDeadline)
	if err != nil {
		logging.Warn("modem: dial failed: %v", err)
		s.respond("NO CARRIER")
		return
	}

	result, err := handshake.Run(tcp, s.cfg.Username, s.cfg.Password, s.cfg.ConnectSpeed)
	if err != nil {
		switch {
		case bridgeerr.Is(err, bridgeerr.KindNegotiationTimeout):
			logging.Warn("modem: negotiation timed out, falling back to configured speed")
			result = &handshake.Result{Speed: s.cfg.ConnectSpeed, Type: handshake.FallbackType}
		default:
			logging.Warn("modem: handshake failed: %v", err)
			tcp.Close()
			s.respond("NO CARRIER")
			return
		}
	}

	s.negotiatedSpeed = result.Speed
	s.negotiatedType = result.Type

	s.emitHandshakeBanner()
	s.writeLine(connectLine(s.negotiatedSpeed, s.negotiatedType))

	s.setStatus(true, tcp)
	s.mode = ModeData
	s.parser.Reset()

	outcome := bridge.Run(s.serial, tcp, s.bridgeOptions(true))
	s.reactToBridgeOutcome(outcome)
}

func (s *State) handleOnline() {
	tcp := s.currentTCP()
	if !s.Connected() || tcp == nil {
		s.respond("NO CARRIER")
		return
	}
	s.writeLine(connectLine(s.negotiatedSpeed, s.negotiatedType))
	s.mode = ModeData
	s.parser.Reset()

	outcome := bridge.Run(s.serial, tcp, s.bridgeOptions(true))
	s.reactToBridgeOutcome(outcome)
}

func (s *State) handleHangup() {
	s.closeTCP()
	s.respond("OK")
	s.mode = ModeCommand
}

// reactToBridgeOutcome implements the "On bridge return" table in
// spec.md §4.6.
func (s *State) reactToBridgeOutcome(outcome bridge.Outcome) {
	s.mode = ModeCommand
	switch outcome {
	case bridge.OutcomeEscapeToCommand:
		s.respond("OK")
		return
	case bridge.OutcomeClientHangup, bridge.OutcomeIOError:
		// The engine only emits NO CARRIER itself for the network-side
		// outcomes; these two are client/IO-originated so the modem
		// emits it here.
		s.writeLine("NO CARRIER")
	}
	s.closeTCP()
}

func (s *State) closeTCP() {
	tcp := s.currentTCP()
	if tcp != nil {
		tcp.Close()
	}
	s.setStatus(false, nil)
}

func (s *State) emitHandshakeBanner() {
	if s.cfg.SuppressBanners {
		return
	}
	isISDN := strings.Contains(s.negotiatedType, "ISDN")
	if isISDN {
		s.writeLine("Dialing ISDN number...")
		time.Sleep(800 * time.Millisecond)
		s.writeLine("ISDN call setup...")
		time.Sleep(time.Second)
		s.writeLine("B-channel connected")
		time.Sleep(500 * time.Millisecond)
		s.writeLine(isdnProtocolLine(s.negotiatedType))
		time.Sleep(500 * time.Millisecond)
		s.writeLine("Compression: STAC/LZS")
		time.Sleep(300 * time.Millisecond)
		s.writeLine("Error Correction: LAPD")
		time.Sleep(300 * time.Millisecond)
		return
	}

	s.writeLine("Dialing...")
	time.Sleep(time.Second)
	s.writeLine("Ringing...")
	time.Sleep(1500 * time.Millisecond)
	s.writeLine("Carrier detected")
	time.Sleep(800 * time.Millisecond)
	s.writeLine("Protocol: " + s.negotiatedType)
	time.Sleep(500 * time.Millisecond)
	if s.negotiatedSpeed >= 9600 {
		s.writeLine("Compression: V.42bis")
		time.Sleep(300 * time.Millisecond)
	}
	if s.negotiatedSpeed >= 2400 {
		s.writeLine("Error Correction: LAP-M")
		time.Sleep(300 * time.Millisecond)
	}
}

func isdnProtocolLine(modemType string) string {
	switch {
	case strings.Contains(modemType, "64"):
		return "Protocol: ISDN 64k (1B)"
	case strings.Contains(modemType, "112"):
		return "Protocol: ISDN 112k (2B)"
	case strings.Contains(modemType, "128"):
		return "Protocol: ISDN 128k (2B+D)"
	case strings.Contains(modemType, "192"):
		return "Protocol: ISDN 192k (3B)"
	case strings.Contains(modemType, "256"):
		return "Protocol: ISDN 256k (4B)"
	default:
		return "Protocol: " + modemType
	}
}

// connectLine builds the mandatory "CONNECT <speed>[/ARQ[/V42BIS|/V90]]"
// line per spec.md §4.6/§6.
func connectLine(speed int, modemType string) string {
	if strings.Contains(modemType, "ISDN") {
		switch {
		case strings.Contains(modemType, "64"):
			return "CONNECT ISDN 64000"
		case strings.Contains(modemType, "112"):
			return "CONNECT ISDN 112000/2B"
		case strings.Contains(modemType, "128"):
			return "CONNECT ISDN 128000/2B+D"
		case strings.Contains(modemType, "192"):
			return "CONNECT ISDN 192000/3B"
		case strings.Contains(modemType, "256"):
			return "CONNECT ISDN 256000/4B"
		default:
			return fmt.Sprintf("CONNECT ISDN %d", speed)
		}
	}
	switch {
	case speed <= 2400:
		return fmt.Sprintf("CONNECT %d", speed)
	case speed <= 9600:
		return fmt.Sprintf("CONNECT %d/ARQ", speed)
	case speed <= 33600:
		return fmt.Sprintf("CONNECT %d/ARQ/V42BIS", speed)
	case speed <= 56000:
		return fmt.Sprintf("CONNECT %d/ARQ/V90", speed)
	default:
		return fmt.Sprintf("CONNECT %d/ARQ", speed)
	}
}

var nonVerboseCode = map[string]int{
	"OK":          0,
	"ERROR":       4,
	"NO CARRIER":  3,
	"BUSY":        7,
	"NO DIALTONE": 6,
}

// respond writes a result word in verbose or non-verbose form (spec.md
// §4.6). CONNECT lines go through writeLine directly, not respond, since
// their wire format is mandatory regardless of verbose mode (spec.md §6).
func (s *State) respond(word string) {
	if s.verbose {
		s.writeLine(word)
		return
	}
	code, ok := nonVerboseCode[word]
	if !ok {
		code = 0
	}
	s.write([]byte(strconv.Itoa(code) + "\r"))
}

func (s *State) writeLine(text string) {
	s.write(encodeCP437("\r\n" + text + "\r\n"))
}

func (s *State) write(p []byte) {
	if err := s.serial.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		logging.Warn("modem: set write deadline: %v", err)
		return
	}
	if _, err := s.serial.Write(p); err != nil {
		logging.Warn("modem: write to serial failed: %v", err)
	}
}
