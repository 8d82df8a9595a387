package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kdalton/escrowd/internal/constants"
)

func TestHelRoundTrip(t *testing.T) {
	in := Hel{NrTags: 32, Flags: 1, Key: 0x0102030405060708}
	buf, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, buf, helSize)

	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestAddRoundTrip(t *testing.T) {
	in := Add{Tag: 3, Idx: 1024, Ufd: 7, Data: []byte("hello world")}
	buf, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, buf, addHdr+len(in.Data))

	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestAddEmptyPayload(t *testing.T) {
	in := Add{Tag: 0, Idx: 0, Ufd: -1, Data: nil}
	buf, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, buf, addHdr)

	out, err := Decode(buf)
	require.NoError(t, err)
	got := out.(Add)
	require.Equal(t, in.Tag, got.Tag)
	require.Equal(t, in.Idx, got.Idx)
	require.Equal(t, in.Ufd, got.Ufd)
	require.Empty(t, got.Data)
}

func TestAddAtMaxPayloadEncodes(t *testing.T) {
	in := Add{Tag: 1, Idx: 1, Ufd: 5, Data: make([]byte, constants.MaxPayload)}
	buf, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, buf, MaxMessageSize)

	out, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, out.(Add).Data, constants.MaxPayload)
}

func TestAddOverMaxPayloadRejectedOnEncode(t *testing.T) {
	in := Add{Tag: 1, Idx: 1, Ufd: 5, Data: make([]byte, constants.MaxPayload+1)}
	_, err := Encode(in)
	require.Error(t, err)
}

func TestAddOverMaxPayloadRejectedOnDecode(t *testing.T) {
	buf := make([]byte, addHdr)
	putOpcode(buf, OpAdd)
	// Declare a length field larger than MaxPayload; decode must reject this
	// before trusting it as a slice length.
	buf[12], buf[13], buf[14], buf[15] = 0, 0, 1, 0 // nob = 1<<16 > MaxPayload
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestAddDeclaredLengthExceedsBufferRejected(t *testing.T) {
	buf := make([]byte, addHdr)
	putOpcode(buf, OpAdd)
	buf[12], buf[13], buf[14], buf[15] = 10, 0, 0, 0 // nob = 10 but no data follows
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDelRoundTrip(t *testing.T) {
	in := Del{Tag: 5, Idx: 99}
	buf, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestRepRoundTrip(t *testing.T) {
	in := Rep{Rc: -2, Data: []byte("no such slot\x00")}
	buf, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestRepOverMaxReplyRejected(t *testing.T) {
	in := Rep{Rc: 0, Data: make([]byte, constants.MaxReply+1)}
	_, err := Encode(in)
	require.Error(t, err)
}

func TestTagQueryRoundTrip(t *testing.T) {
	in := TagQuery{Tag: 11}
	buf, err := Encode(in)
	require.NoError(t, err)
	require.Len(t, buf, tagSize)
	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestInfRoundTrip(t *testing.T) {
	in := Inf{Nr: 1025, Total: 4096}
	buf, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestGetRoundTrip(t *testing.T) {
	in := Get{Tag: 2, Idx: 1023}
	buf, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeShortFrameRejected(t *testing.T) {
	_, err := Decode([]byte{0})
	require.ErrorIs(t, err, ErrShortFrame)

	buf := make([]byte, getSize-1)
	putOpcode(buf, OpGet)
	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestDecodeUnknownOpcodeRejected(t *testing.T) {
	buf := make([]byte, 8)
	putOpcode(buf, Opcode(99))
	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrUnknownOpcode)
}

func TestEncodeUnsupportedTypeRejected(t *testing.T) {
	_, err := Encode(struct{ Message }{})
	require.Error(t, err)
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "ADD", OpAdd.String())
	require.Contains(t, Opcode(42).String(), "42")
}
