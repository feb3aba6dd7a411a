package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode failure kinds, per spec.md §4.1.
var (
	// ErrTooShort: fewer than 4 bytes, or fewer bytes than the opcode
	// requires.
	ErrTooShort = errors.New("tftp: frame too short")
	// ErrUnknownOpcode: opcode not in {1..5}.
	ErrUnknownOpcode = errors.New("tftp: unknown opcode")
	// ErrUnterminated: a string field without its trailing NUL.
	ErrUnterminated = errors.New("tftp: unterminated field")
)

// OpcodeMismatchError is returned when the caller supplied an expected
// opcode that does not match the decoded one. If the decoded packet is
// an Error packet, it is attached so the caller can recover per spec.md
// §4.1 ("the caller may recover if the decoded opcode is Error").
type OpcodeMismatchError struct {
	Expected Opcode
	Got      Opcode
	ErrorPkt *Error
}

func (e *OpcodeMismatchError) Error() string {
	return fmt.Sprintf("tftp: expected opcode %s, got %s", e.Expected, e.Got)
}

// Decode parses a raw datagram into a typed Packet. If expected is
// nonzero, the decoded opcode must match it or an *OpcodeMismatchError is
// returned (with ErrorPkt populated when the peer actually sent an Error
// packet, per spec.md §4.1).
func Decode(data []byte, expected Opcode) (Packet, error) {
	if len(data) < 4 {
		return nil, ErrTooShort
	}

	op := Opcode(binary.BigEndian.Uint16(data[0:2]))

	var pkt Packet
	var err error
	switch op {
	case OpReadRequest, OpWriteRequest:
		pkt, err = decodeRequest(op, data[2:])
	case OpData:
		pkt, err = decodeData(data[2:])
	case OpAck:
		pkt, err = decodeAck(data[2:])
	case OpError:
		pkt, err = decodeError(data[2:])
	default:
		return nil, ErrUnknownOpcode
	}
	if err != nil {
		return nil, err
	}

	if expected != 0 && op != expected {
		mismatch := &OpcodeMismatchError{Expected: expected, Got: op}
		if errPkt, ok := pkt.(Error); ok {
			mismatch.ErrorPkt = &errPkt
		}
		return pkt, mismatch
	}

	return pkt, nil
}

func decodeRequest(op Opcode, rest []byte) (Packet, error) {
	fields, err := splitNulTerminated(rest, 2)
	if err != nil {
		return nil, err
	}
	if len(fields[0]) == 0 {
		return nil, &invalidParameter{reason: "filename must not be empty"}
	}
	if len(fields[0]) > MaxFilenameLength {
		return nil, &invalidParameter{reason: fmt.Sprintf("filename length %d exceeds %d", len(fields[0]), MaxFilenameLength)}
	}

	r := Request{
		Op:       op,
		Filename: string(fields[0]),
		Mode:     Mode(fields[1]),
	}

	if len(fields) > 2 {
		r.Options = make(map[string]string)
		for i := 2; i+1 < len(fields); i += 2 {
			r.Options[string(fields[i])] = string(fields[i+1])
		}
	}

	return r, nil
}

func decodeData(rest []byte) (Packet, error) {
	if len(rest) < 2 {
		return nil, ErrTooShort
	}
	return Data{
		Block:   binary.BigEndian.Uint16(rest[0:2]),
		Payload: append([]byte(nil), rest[2:]...),
	}, nil
}

func decodeAck(rest []byte) (Packet, error) {
	if len(rest) < 2 {
		return nil, ErrTooShort
	}
	return Ack{Block: binary.BigEndian.Uint16(rest[0:2])}, nil
}

func decodeError(rest []byte) (Packet, error) {
	if len(rest) < 2 {
		return nil, ErrTooShort
	}
	code := ErrorCode(binary.BigEndian.Uint16(rest[0:2]))
	msgField, err := splitNulTerminated(rest[2:], 1)
	if err != nil {
		return nil, err
	}
	return Error{Code: code, Message: string(msgField[0])}, nil
}

// splitNulTerminated splits buf on NUL bytes, requiring at least minFields
// complete (NUL-terminated) fields and returning ErrUnterminated if the
// final field is missing its trailing NUL.
func splitNulTerminated(buf []byte, minFields int) ([][]byte, error) {
	if len(buf) == 0 || buf[len(buf)-1] != 0 {
		return nil, ErrUnterminated
	}
	parts := bytes.Split(buf[:len(buf)-1], []byte{0})
	if len(parts) < minFields {
		return nil, ErrTooShort
	}
	return parts, nil
}
