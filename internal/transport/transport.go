// Package transport carries one wire.Message plus, optionally, one file
// descriptor across a single session's net.UnixConn. Unlike a byte stream,
// escrowd's protocol has no length prefix: each side reads a fixed-size
// receive buffer per call and trusts the opcode embedded in the reply to
// determine how many of those bytes are significant (see wire.Decode).
//
// Grounded in the nydus-snapshotter supervisor's send/recv over
// net.UnixConn + golang.org/x/sys/unix SCM_RIGHTS plumbing, generalised
// from "send one blob of state plus one fd, once" to "send and receive
// one wire.Message plus at most one fd, many times over the same
// connection."
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"

	pkgerrors "github.com/pkg/errors"

	"golang.org/x/sys/unix"

	"github.com/kdalton/escrowd/internal/bufpool"
	"github.com/kdalton/escrowd/internal/wire"
)

// ErrPeerClosed is returned by Recv when the peer has cleanly closed its
// end of the connection (read returns io.EOF with no bytes).
var ErrPeerClosed = errors.New("transport: peer closed the connection")

// ErrMalformedAncillaryData is returned by Recv when the control message
// riding along with a frame cannot be parsed as a single SCM_RIGHTS
// descriptor.
var ErrMalformedAncillaryData = errors.New("transport: malformed ancillary data")

// IsProtocolViolation reports whether err from Recv reflects a malformed
// frame or ancillary data rather than a genuine I/O failure. Per spec.md
// §7, this class of error gets a REP{rc: -EPROTO} reply and the session
// continues; everything else terminates it.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, wire.ErrShortFrame) ||
		errors.Is(err, wire.ErrMalformed) ||
		errors.Is(err, wire.ErrUnknownOpcode) ||
		errors.Is(err, ErrMalformedAncillaryData)
}

// maxFDsPerMessage bounds the control-message buffer; escrowd's protocol
// never carries more than one descriptor per message.
const maxFDsPerMessage = 1

var oobSpace = unix.CmsgSpace(4) * maxFDsPerMessage

// Send encodes msg and writes it to conn in a single WriteMsgUnix call,
// attaching fd as ancillary data when fd >= 0. A negative fd sends no
// control message at all, matching the original protocol's convention that
// only ADD (request direction) and ADD (GET reply direction) ever carry
// one.
func Send(conn *net.UnixConn, msg wire.Message, fd int) error {
	body, err := wire.Encode(msg)
	if err != nil {
		return pkgerrors.Wrapf(err, "encode %s", msg.Opcode())
	}

	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}

	for len(body) > 0 || len(oob) > 0 {
		n, oobn, err := conn.WriteMsgUnix(body, oob, nil)
		if err != nil {
			return pkgerrors.Wrapf(err, "send %s (datan %d oobn %d)", msg.Opcode(), n, oobn)
		}
		body = body[n:]
		oob = oob[oobn:]
	}
	return nil
}

// Recv reads one message from conn. It returns the decoded message and the
// descriptor that rode along with it, or -1 if none did. The data buffer is
// drawn from bufpool and returned to it before Recv returns, so the
// decoded message's own []byte fields (already copied out by wire.Decode)
// are the only slices callers should retain.
func Recv(conn *net.UnixConn) (wire.Message, int, error) {
	dataBuf := bufpool.GetBuffer(wire.MaxMessageSize)
	defer bufpool.PutBuffer(dataBuf)
	oobBuf := bufpool.GetBuffer(oobSpace)
	defer bufpool.PutBuffer(oobBuf)

	n, oobn, _, _, err := conn.ReadMsgUnix(dataBuf, oobBuf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, -1, ErrPeerClosed
		}
		return nil, -1, pkgerrors.Wrap(err, "receive message")
	}
	if n == 0 {
		return nil, -1, ErrPeerClosed
	}

	msg, err := wire.Decode(dataBuf[:n])
	if err != nil {
		return nil, -1, pkgerrors.Wrap(err, "decode frame")
	}

	fd, err := extractFD(oobBuf[:oobn])
	if err != nil {
		return nil, -1, pkgerrors.Wrap(err, "extract descriptor")
	}
	return msg, fd, nil
}

func extractFD(oob []byte) (int, error) {
	if len(oob) == 0 {
		return -1, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("%w: parse control message: %v", ErrMalformedAncillaryData, err)
	}
	if len(scms) == 0 {
		return -1, nil
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, fmt.Errorf("%w: parse unix rights: %v", ErrMalformedAncillaryData, err)
	}
	if len(fds) == 0 {
		return -1, nil
	}
	return fds[0], nil
}
