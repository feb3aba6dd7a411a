package wire_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tftpcore/tftpd/internal/wire"
)

func TestEncodeDecodeRoundTrip_Request(t *testing.T) {
	r := wire.Request{Op: wire.OpReadRequest, Filename: "small", Mode: wire.ModeOctet}
	b, err := wire.Encode(r)
	require.NoError(t, err)

	got, err := wire.Decode(b, 0)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestEncodeDecodeRoundTrip_RequestWithOptions(t *testing.T) {
	r := wire.Request{
		Op:       wire.OpWriteRequest,
		Filename: "big",
		Mode:     wire.ModeOctet,
		Options:  map[string]string{"blksize": "1024", "tsize": "0"},
	}
	b, err := wire.Encode(r)
	require.NoError(t, err)

	got, err := wire.Decode(b, wire.OpWriteRequest)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestEncodeDecodeRoundTrip_Data(t *testing.T) {
	d := wire.Data{Block: 1, Payload: []byte("ABC")}
	b, err := wire.Encode(d)
	require.NoError(t, err)

	got, err := wire.Decode(b, wire.OpData)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDataTerminal(t *testing.T) {
	full := wire.Data{Block: 1, Payload: make([]byte, wire.BlockSize)}
	assert.False(t, full.Terminal())

	short := wire.Data{Block: 1, Payload: make([]byte, wire.BlockSize-1)}
	assert.True(t, short.Terminal())

	empty := wire.Data{Block: 1, Payload: nil}
	assert.True(t, empty.Terminal())
}

func TestEncodeDecodeRoundTrip_Ack(t *testing.T) {
	a := wire.Ack{Block: 65535}
	b, err := wire.Encode(a)
	require.NoError(t, err)

	got, err := wire.Decode(b, wire.OpAck)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestEncodeDecodeRoundTrip_Error(t *testing.T) {
	e := wire.Error{Code: wire.ErrFileNotFound, Message: "no such file"}
	b, err := wire.Encode(e)
	require.NoError(t, err)

	got, err := wire.Decode(b, wire.OpError)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecode_TooShort(t *testing.T) {
	_, err := wire.Decode([]byte{0}, 0)
	assert.ErrorIs(t, err, wire.ErrTooShort)

	_, err = wire.Decode([]byte{0, byte(wire.OpAck), 0}, 0)
	assert.ErrorIs(t, err, wire.ErrTooShort)
}

func TestDecode_UnknownOpcode(t *testing.T) {
	_, err := wire.Decode([]byte{0, 9, 0, 0}, 0)
	assert.ErrorIs(t, err, wire.ErrUnknownOpcode)
}

func TestDecode_UnterminatedRequest(t *testing.T) {
	raw := []byte{0, byte(wire.OpReadRequest)}
	raw = append(raw, []byte("small")...) // no trailing NUL at all
	_, err := wire.Decode(raw, 0)
	assert.ErrorIs(t, err, wire.ErrUnterminated)
}

func TestDecode_OpcodeMismatchRecoversError(t *testing.T) {
	e := wire.Error{Code: wire.ErrFileNotFound, Message: "nope"}
	b, err := wire.Encode(e)
	require.NoError(t, err)

	_, err = wire.Decode(b, wire.OpAck)
	var mismatch *wire.OpcodeMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.NotNil(t, mismatch.ErrorPkt)
	assert.Equal(t, e, *mismatch.ErrorPkt)
}

func TestEncodeRequest_FilenameBoundaries(t *testing.T) {
	_, err := wire.EncodeRequest(wire.Request{Op: wire.OpReadRequest, Filename: "", Mode: wire.ModeOctet})
	assert.Error(t, err)

	name255 := strings.Repeat("a", 255)
	_, err = wire.EncodeRequest(wire.Request{Op: wire.OpReadRequest, Filename: name255, Mode: wire.ModeOctet})
	assert.NoError(t, err)

	name256 := strings.Repeat("a", 256)
	_, err = wire.EncodeRequest(wire.Request{Op: wire.OpReadRequest, Filename: name256, Mode: wire.ModeOctet})
	assert.Error(t, err)
}

func TestEncodeData_PayloadTooLarge(t *testing.T) {
	_, err := wire.EncodeData(wire.Data{Block: 1, Payload: make([]byte, wire.BlockSize+1)})
	assert.Error(t, err)
}

func TestBlockNumberWraps(t *testing.T) {
	a := wire.Ack{Block: 65535}
	b, err := wire.Encode(a)
	require.NoError(t, err)
	got, err := wire.Decode(b, wire.OpAck)
	require.NoError(t, err)
	ack := got.(wire.Ack)
	next := ack.Block + 1
	assert.Equal(t, uint16(0), next)
}
