//go:build windows

package endpoint

import "os"

// openSerialFile is not implemented for Windows. The bridge's physical
// serial kind targets the Unix COM-port-over-tty deployments this codebase
// actually ships against; Windows hosts are expected to use the unix: or
// tcp: pseudo-serial kinds instead (spec.md §6).
func openSerialFile(device string, baudRate int) (*os.File, error) {
	return nil, deviceErr("physical serial devices are not supported on windows; use a unix: or tcp: device string")
}
