//go:build unix

package endpoint

import (
	"os/exec"
	"strings"
)

// probeBusy shells out to lsof the same way the original source's
// check_serial helper did, to turn an EBUSY-style failure into a clearer
// "device already in use by <command>" message before the open syscall
// itself fails. Best-effort: a missing lsof binary or any exec error is
// treated as "not busy" rather than blocking the open attempt.
func probeBusy(device string) (bool, string) {
	out, err := exec.Command("lsof", device).Output()
	if err != nil {
		return false, ""
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return false, ""
	}
	fields := strings.Fields(lines[1])
	if len(fields) == 0 {
		return false, ""
	}
	return true, fields[0]
}
