package escrow

import (
	"net"

	"github.com/kdalton/escrowd/internal/transport"
	"github.com/kdalton/escrowd/internal/wire"
)

// Handle is one client session against an escrowd daemon. It is not safe
// for concurrent use from multiple goroutines (spec.md §4.5: "not safe for
// concurrent use from multiple threads of one process").
type Handle struct {
	conn *net.UnixConn
	path string
}

// Open connects to the daemon listening at path, spawning one on demand if
// none is (see bootstrap.go). If path is empty, the ESCROW_PATH
// environment variable is used instead. nrTags is only consulted when this
// call ends up spawning a new daemon.
func Open(path string, flags Flags, nrTags int) (*Handle, error) {
	resolvedPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	conn, err := dialOrSpawn(resolvedPath, flags, nrTags)
	if err != nil {
		return nil, err
	}
	return &Handle{conn: conn, path: resolvedPath}, nil
}

// Close ends the session. It does not affect any slot the daemon is
// holding on the handle's behalf.
func (h *Handle) Close() error {
	return h.conn.Close()
}

// Add escrows fd (or no descriptor, if fd < 0) and payload at (tag, idx),
// overwriting and closing whatever the daemon held there before.
func (h *Handle) Add(tag int16, idx int32, fd int, payload []byte) error {
	// Ufd is advisory, client-supplied metadata and must be non-negative
	// (spec.md §4.3) independent of fd, the real descriptor: a caller
	// passing fd < 0 for a payload-only entry still needs a valid Ufd.
	ufd := int32(fd)
	if ufd < 0 {
		ufd = 0
	}
	req := wire.Add{Tag: tag, Idx: idx, Ufd: ufd, Data: payload}
	reply, _, err := h.roundTrip(req, fd)
	if err != nil {
		return err
	}
	rep, ok := reply.(wire.Rep)
	if !ok {
		return WrapError("Add", &Error{Code: ErrCodeProtocol, Msg: "unexpected reply shape"})
	}
	if rep.Rc != 0 {
		return rcToError("Add", rep.Rc, trimNUL(rep.Data))
	}
	return nil
}

// Get retrieves the descriptor and payload stored at (tag, idx), without
// removing it from the daemon. buf receives up to len(buf) bytes of the
// payload; nob is always the full stored length, so a caller can detect
// truncation by comparing nob against len(buf).
func (h *Handle) Get(tag int16, idx int32, buf []byte) (fd int, nob int32, err error) {
	req := wire.Get{Tag: tag, Idx: idx}
	reply, replyFD, err := h.roundTrip(req, -1)
	if err != nil {
		return -1, 0, err
	}
	switch r := reply.(type) {
	case wire.Add:
		copy(buf, r.Data)
		return replyFD, int32(len(r.Data)), nil
	case wire.Rep:
		return -1, 0, rcToError("Get", r.Rc, trimNUL(r.Data))
	default:
		return -1, 0, WrapError("Get", &Error{Code: ErrCodeProtocol, Msg: "unexpected reply shape"})
	}
}

// Del removes and closes whatever is stored at (tag, idx).
func (h *Handle) Del(tag int16, idx int32) error {
	req := wire.Del{Tag: tag, Idx: idx}
	reply, _, err := h.roundTrip(req, -1)
	if err != nil {
		return err
	}
	rep, ok := reply.(wire.Rep)
	if !ok {
		return WrapError("Del", &Error{Code: ErrCodeProtocol, Msg: "unexpected reply shape"})
	}
	if rep.Rc != 0 {
		return rcToError("Del", rep.Rc, trimNUL(rep.Data))
	}
	return nil
}

// Tag returns the maximum populated index plus one and the sum of the
// payload lengths of every present slot for the given tag.
func (h *Handle) Tag(tag int16) (nr, total int32, err error) {
	req := wire.TagQuery{Tag: tag}
	reply, _, err := h.roundTrip(req, -1)
	if err != nil {
		return 0, 0, err
	}
	switch r := reply.(type) {
	case wire.Inf:
		return r.Nr, r.Total, nil
	case wire.Rep:
		return 0, 0, rcToError("Tag", r.Rc, trimNUL(r.Data))
	default:
		return 0, 0, WrapError("Tag", &Error{Code: ErrCodeProtocol, Msg: "unexpected reply shape"})
	}
}

// roundTrip performs exactly one send followed by exactly one receive, per
// spec.md §4.5: the (N+1)th send cannot occur until the Nth reply arrives.
// The returned fd is only meaningful for a GET's Add-shaped reply; every
// other reply carries none (-1).
func (h *Handle) roundTrip(req wire.Message, fd int) (wire.Message, int, error) {
	if err := transport.Send(h.conn, req, fd); err != nil {
		return nil, -1, WrapError(req.Opcode().String(), err)
	}
	reply, replyFD, err := transport.Recv(h.conn)
	if err != nil {
		return nil, -1, WrapError(req.Opcode().String(), err)
	}
	return reply, replyFD, nil
}

func trimNUL(b []byte) string {
	if i := indexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
