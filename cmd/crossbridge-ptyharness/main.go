// Command crossbridge-ptyharness opens a PTY pair and prints the slave's
// device path, then copies bytes between its own stdin/stdout and the PTY
// master. Set the device field of crossbridge's configuration file to the
// printed path to drive a
// real serial-framed session from a terminal with no physical hardware,
// the same way the teacher's door handler gives a DOS emulator a "real"
// COM1 without a physical UART.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

func main() {
	rows := flag.Int("rows", 25, "PTY row count")
	cols := flag.Int("cols", 80, "PTY column count")
	flag.Parse()

	ptmx, tty, err := pty.Open()
	if err != nil {
		log.Fatalf("ERROR: opening pty: %v", err)
	}
	defer ptmx.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(*rows), Cols: uint16(*cols)}); err != nil {
		log.Printf("WARN: setting pty size: %v", err)
	}

	fmt.Fprintf(os.Stderr, "crossbridge-ptyharness: serial device is %s\n", tty.Name())
	fmt.Fprintln(os.Stderr, "crossbridge-ptyharness: type AT commands below; ^C to exit")
	// The harness only talks through the master side, but keeps the slave
	// open: once every slave descriptor is closed, reads on the master fail
	// with EIO and the copy loop below would end at once.
	defer tty.Close()

	stdinFd := int(os.Stdin.Fd())
	if oldState, err := term.MakeRaw(stdinFd); err == nil {
		defer term.Restore(stdinFd, oldState)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(os.Stdout, ptmx)
	}()
	go func() {
		io.Copy(ptmx, os.Stdin)
	}()

	select {
	case <-sigCh:
	case <-done:
	}
}
