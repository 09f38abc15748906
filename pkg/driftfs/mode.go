package driftfs

import (
	"fmt"
	"strings"

	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// modeOp is the primary operation of an open mode.
type modeOp int

const (
	opRead   modeOp = iota // existing file, read only
	opWrite                // create or truncate, write only
	opAppend               // create if missing, writes at end
	opCreate               // exclusive create, write only
)

// fileMode is the validated form of a POSIX-style mode string. The native
// client has no combined read/write descriptors, so update ("+") modes and
// multi-op combinations are rejected at parse time, before any native call.
type fileMode struct {
	op   modeOp
	text bool
}

func (m fileMode) readable() bool { return m.op == opRead }
func (m fileMode) writable() bool { return m.op != opRead }

func (m fileMode) String() string {
	var s string
	switch m.op {
	case opRead:
		s = "r"
	case opWrite:
		s = "w"
	case opAppend:
		s = "a"
	case opCreate:
		s = "x"
	}
	if m.text {
		return s + "t"
	}
	return s + "b"
}

// parseMode validates a mode string such as "rb", "w", "at" or "xb".
// Binary is the default; "t" selects text mode. Anything the native client
// cannot honor fails with UNSUPPORTED_MODE.
func parseMode(mode string) (fileMode, error) {
	seen := map[rune]bool{}
	var m fileMode
	ops := 0
	binary := false
	for _, r := range mode {
		if seen[r] {
			return m, badMode(mode, "duplicate flag")
		}
		seen[r] = true
		switch r {
		case 'r':
			m.op = opRead
			ops++
		case 'w':
			m.op = opWrite
			ops++
		case 'a':
			m.op = opAppend
			ops++
		case 'x':
			m.op = opCreate
			ops++
		case 'b':
			binary = true
		case 't':
			m.text = true
		case '+':
			return m, badMode(mode, "update modes are not supported by the native client")
		default:
			return m, badMode(mode, fmt.Sprintf("unknown flag %q", r))
		}
	}
	if ops != 1 {
		return m, badMode(mode, "exactly one of r/w/a/x is required")
	}
	if binary && m.text {
		return m, badMode(mode, "cannot combine binary and text")
	}
	return m, nil
}

func badMode(mode, reason string) error {
	return fserrors.New(fserrors.ErrCodeUnsupportedMode, "open", "",
		fmt.Sprintf("mode %q: %s", strings.TrimSpace(mode), reason))
}
