package endpoint

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fogwraith/crossbridge/internal/bridgeerr"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name       string
		device     string
		wantKind   Kind
		wantTarget string
		wantErr    bool
	}{
		{"bare serial path", "/dev/ttyUSB0", KindSerial, "/dev/ttyUSB0", false},
		{"com port", "COM3", KindSerial, "COM3", false},
		{"unix socket", "unix:/tmp/modem.sock", KindUnixSocket, "/tmp/modem.sock", false},
		{"tcp", "tcp:127.0.0.1:9000", KindTCP, "127.0.0.1:9000", false},
		{"empty", "", KindSerial, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, target, err := ParseDevice(tt.device)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if kind != tt.wantKind || target != tt.wantTarget {
				t.Fatalf("got (%v, %q), want (%v, %q)", kind, target, tt.wantKind, tt.wantTarget)
			}
		})
	}
}

func TestOpenDispatchesToUnixSocket(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "modem.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	ep, err := Open("unix:"+sockPath, 0, time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ep.Close()

	if ep.ID() == "" {
		t.Fatal("ID() is empty")
	}
}

func TestOpenDispatchesToTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}

	ep, err := Open("tcp:"+net.JoinHostPort(host, port), 0, time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ep.Close()
}

func TestOpenRejectsEmptyDevice(t *testing.T) {
	if _, err := Open("", 9600, time.Second); !bridgeerr.Is(err, bridgeerr.KindDeviceOpen) {
		t.Fatalf("err = %v, want KindDeviceOpen", err)
	}
}

func TestDialUnixSocketReadWriteAndClose(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "modem.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	ep, err := DialUnixSocket(sockPath)
	if err != nil {
		t.Fatalf("DialUnixSocket: %v", err)
	}
	defer ep.Close()

	if _, err := ep.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ep.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := ep.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("echoed = %q, want %q", buf[:n], "ping")
	}

	<-srvDone
	if !ep.Alive() {
		t.Fatal("Alive() = false before any Read observed the peer close")
	}

	ep.Close()
	if ep.Alive() {
		t.Fatal("Alive() = true after Close")
	}
	if n, err := ep.Read(buf); n != 0 || err != nil {
		t.Fatalf("Read after Close = (%d, %v), want (0, nil)", n, err)
	}
}

func TestDialUnixSocketDetectsPeerClose(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "modem.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	ep, err := DialUnixSocket(sockPath)
	if err != nil {
		t.Fatalf("DialUnixSocket: %v", err)
	}
	defer ep.Close()

	peer := <-accepted
	peer.Close()

	ep.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := ep.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("Read after peer close = (%d, %v), want (0, nil)", n, err)
	}
	if ep.Alive() {
		t.Fatal("Alive() = true after peer closed")
	}
}

func TestTCPDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}

	ep, err := Dial(host, portStr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ep.Close()
}

func TestTCPDialFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	ln.Close() // nothing listening now

	if _, err := DialPort(host, mustAtoi(t, port), time.Second); !bridgeerr.Is(err, bridgeerr.KindDialFailed) {
		t.Fatalf("err = %v, want KindDialFailed", err)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func TestOpenSerialRejectsMissingDevice(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist")
	if _, err := os.Stat(missing); err == nil {
		t.Fatal("test setup: file unexpectedly exists")
	}
	if _, err := OpenSerial(missing, 9600); !bridgeerr.Is(err, bridgeerr.KindDeviceOpen) {
		t.Fatalf("err = %v, want KindDeviceOpen", err)
	}
}
