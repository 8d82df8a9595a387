// Package wire implements escrowd's request/reply message schema: a tagged
// union of fixed-layout variants carried over the session socket, with
// explicit little-endian encoding per field (no length prefix — see
// internal/transport for the framing this relies on).
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/kdalton/escrowd/internal/constants"
)

// Opcode identifies a message variant. It occupies the first two bytes of
// every frame on the wire.
type Opcode int16

const (
	OpHel Opcode = iota
	OpAdd
	OpDel
	OpRep
	OpTag
	OpInf
	OpGet
)

func (o Opcode) String() string {
	switch o {
	case OpHel:
		return "HEL"
	case OpAdd:
		return "ADD"
	case OpDel:
		return "DEL"
	case OpRep:
		return "REP"
	case OpTag:
		return "TAG"
	case OpInf:
		return "INF"
	case OpGet:
		return "GET"
	default:
		return fmt.Sprintf("OPCODE(%d)", int16(o))
	}
}

// Message is implemented by every wire variant. A sum type in place of the
// original C code's overlapping-union struct, per design note §9: each
// variant determines its own wire size instead of sharing one oversize
// buffer.
type Message interface {
	Opcode() Opcode
}

// Hel is the reserved handshake variant. escrowd never sends one; a client
// that sends one gets back REP{rc: -EPROTO} like any other unexpected
// opcode (see scenario 6, protocol violation recovery).
type Hel struct {
	NrTags int16
	Flags  int32
	Key    int64
}

func (Hel) Opcode() Opcode { return OpHel }

// Add carries a descriptor and its payload, both client→daemon (escrowing a
// descriptor) and daemon→client (returning one from a successful GET).
type Add struct {
	Tag  int16
	Idx  int32
	Ufd  int32
	Data []byte
}

func (Add) Opcode() Opcode { return OpAdd }

// Del requests the slot at (Tag, Idx) be destroyed.
type Del struct {
	Tag int16
	Idx int32
}

func (Del) Opcode() Opcode { return OpDel }

// Rep is the daemon's reply for everything except a successful GET (ADD-
// shaped) or a successful TAG (INF-shaped). Rc is 0 on success or a negated
// POSIX-like error code; Data is a NUL-terminated human-readable
// description.
type Rep struct {
	Rc   int16
	Data []byte
}

func (Rep) Opcode() Opcode { return OpRep }

// TagQuery requests aggregate information about one tag. Named TagQuery,
// not Tag, to avoid colliding with the tag identifier type used elsewhere.
type TagQuery struct {
	Tag int16
}

func (TagQuery) Opcode() Opcode { return OpTag }

// Inf answers a TagQuery: Nr is the maximal populated index plus one
// (sparse.Sequence.Size), Total is the sum of payload lengths over every
// slot currently present in the tag.
type Inf struct {
	Nr    int32
	Total int32
}

func (Inf) Opcode() Opcode { return OpInf }

// Get requests the slot at (Tag, Idx) be returned, non-destructively.
type Get struct {
	Tag int16
	Idx int32
}

func (Get) Opcode() Opcode { return OpGet }

// Wire offsets and sizes. Field widths follow spec.md §4.3 exactly.
const (
	opcodeSize = 2

	helSize = opcodeSize + 2 + 4 + 8 // nr_tags, flags, key
	addHdr  = opcodeSize + 2 + 4 + 4 + 4
	delSize = opcodeSize + 2 + 4
	repHdr  = opcodeSize + 2 + 2
	tagSize = opcodeSize + 2
	infSize = opcodeSize + 2 + 4 + 4
	getSize = opcodeSize + 2 + 4
)

// MaxMessageSize is the largest frame either side ever sends or must be
// prepared to receive: an ADD carrying the maximum payload.
const MaxMessageSize = addHdr + constants.MaxPayload

// Encode renders m as its wire bytes, sized exactly to this variant's
// significant prefix (see spec.md §4.3, "wire size on send").
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Hel:
		buf := make([]byte, helSize)
		putOpcode(buf, OpHel)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.NrTags))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Flags))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(v.Key))
		return buf, nil

	case Add:
		if len(v.Data) > constants.MaxPayload {
			return nil, fmt.Errorf("wire: ADD payload of %d bytes exceeds MaxPayload", len(v.Data))
		}
		buf := make([]byte, addHdr+len(v.Data))
		putOpcode(buf, OpAdd)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.Tag))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Idx))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(v.Ufd))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(len(v.Data)))
		copy(buf[addHdr:], v.Data)
		return buf, nil

	case Del:
		buf := make([]byte, delSize)
		putOpcode(buf, OpDel)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.Tag))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Idx))
		return buf, nil

	case Rep:
		if len(v.Data) > constants.MaxReply {
			return nil, fmt.Errorf("wire: REP description of %d bytes exceeds MaxReply", len(v.Data))
		}
		buf := make([]byte, repHdr+len(v.Data))
		putOpcode(buf, OpRep)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.Rc))
		binary.LittleEndian.PutUint16(buf[4:6], uint16(len(v.Data)))
		copy(buf[repHdr:], v.Data)
		return buf, nil

	case TagQuery:
		buf := make([]byte, tagSize)
		putOpcode(buf, OpTag)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.Tag))
		return buf, nil

	case Inf:
		buf := make([]byte, infSize)
		putOpcode(buf, OpInf)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Nr))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(v.Total))
		return buf, nil

	case Get:
		buf := make([]byte, getSize)
		putOpcode(buf, OpGet)
		binary.LittleEndian.PutUint16(buf[2:4], uint16(v.Tag))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Idx))
		return buf, nil

	default:
		return nil, fmt.Errorf("wire: %T is not a valid message to send", m)
	}
}

func putOpcode(buf []byte, op Opcode) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(op))
}

// Decode parses a frame of exactly n significant bytes (buf[:n] from the
// transport's receive call) into its Message. Any opcode other than the
// seven defined here, or a frame too short or malformed for its opcode, is
// reported via one of the Err* sentinels above so the daemon can reply
// REP{rc: -EPROTO} and keep the session alive instead of the call
// panicking or the session being torn down.
func Decode(buf []byte) (Message, error) {
	if len(buf) < opcodeSize {
		return nil, ErrShortFrame
	}
	op := Opcode(int16(binary.LittleEndian.Uint16(buf[0:2])))
	switch op {
	case OpHel:
		if len(buf) < helSize {
			return nil, ErrShortFrame
		}
		return Hel{
			NrTags: int16(binary.LittleEndian.Uint16(buf[2:4])),
			Flags:  int32(binary.LittleEndian.Uint32(buf[4:8])),
			Key:    int64(binary.LittleEndian.Uint64(buf[8:16])),
		}, nil

	case OpAdd:
		if len(buf) < addHdr {
			return nil, ErrShortFrame
		}
		nob := int32(binary.LittleEndian.Uint32(buf[12:16]))
		if nob < 0 || int(nob) > constants.MaxPayload || addHdr+int(nob) > len(buf) {
			return nil, ErrMalformed
		}
		data := make([]byte, nob)
		copy(data, buf[addHdr:addHdr+int(nob)])
		return Add{
			Tag:  int16(binary.LittleEndian.Uint16(buf[2:4])),
			Idx:  int32(binary.LittleEndian.Uint32(buf[4:8])),
			Ufd:  int32(binary.LittleEndian.Uint32(buf[8:12])),
			Data: data,
		}, nil

	case OpDel:
		if len(buf) < delSize {
			return nil, ErrShortFrame
		}
		return Del{
			Tag: int16(binary.LittleEndian.Uint16(buf[2:4])),
			Idx: int32(binary.LittleEndian.Uint32(buf[4:8])),
		}, nil

	case OpRep:
		if len(buf) < repHdr {
			return nil, ErrShortFrame
		}
		nob := int16(binary.LittleEndian.Uint16(buf[4:6]))
		if nob < 0 || int(nob) > constants.MaxReply || repHdr+int(nob) > len(buf) {
			return nil, ErrMalformed
		}
		data := make([]byte, nob)
		copy(data, buf[repHdr:repHdr+int(nob)])
		return Rep{
			Rc:   int16(binary.LittleEndian.Uint16(buf[2:4])),
			Data: data,
		}, nil

	case OpTag:
		if len(buf) < tagSize {
			return nil, ErrShortFrame
		}
		return TagQuery{Tag: int16(binary.LittleEndian.Uint16(buf[2:4]))}, nil

	case OpInf:
		if len(buf) < infSize {
			return nil, ErrShortFrame
		}
		return Inf{
			Nr:    int32(binary.LittleEndian.Uint32(buf[4:8])),
			Total: int32(binary.LittleEndian.Uint32(buf[8:12])),
		}, nil

	case OpGet:
		if len(buf) < getSize {
			return nil, ErrShortFrame
		}
		return Get{
			Tag: int16(binary.LittleEndian.Uint16(buf[2:4])),
			Idx: int32(binary.LittleEndian.Uint32(buf[4:8])),
		}, nil

	default:
		return nil, ErrUnknownOpcode
	}
}
