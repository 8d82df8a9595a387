package daemon

import (
	"syscall"

	"github.com/kdalton/escrowd/internal/wire"
)

// Reply codes are negated POSIX-like errno values, per spec.md §4.3's
// reply convention ("rc is 0 on success or a negated POSIX-like error
// code").
const (
	rcEINVAL = -int16(syscall.EINVAL)
	rcENOENT = -int16(syscall.ENOENT)
	rcEPROTO = -int16(syscall.EPROTO)
)

// okReply builds the REP{rc: 0} frame escrow.c's ok() sends on success,
// with an empty (NUL-only) description.
func okReply() wire.Message {
	return wire.Rep{Rc: 0, Data: []byte{0}}
}

// errReply builds a REP frame carrying a negative rc and a NUL-terminated
// human-readable description, matching escrow.c's reply().
func errReply(rc int16, descr string) wire.Message {
	return wire.Rep{Rc: rc, Data: append([]byte(descr), 0)}
}
