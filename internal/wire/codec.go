// File: internal/wire/codec.go
// Author: momentics <momentics@gmail.com>
//
// Streaming frame codec. A frame is:
//
//	[u32 bodyLen][u16 addrLen][addr bytes][subject byte][payload bytes]
//
// bodyLen counts every byte after the length field itself. The address
// field carries msg.Source and addrLen is its length; the senders in this
// module leave Source empty, so their frames carry addrLen 0, and the
// receiving socket fills an empty Source with the peer's remote address.
// The subject is packed as a single byte ahead of the payload, per spec.md
// section 4.1. DecodeFrame follows the teacher's incomplete-frame
// convention: it returns (Message{}, 0, nil), not an error, when buf does
// not yet hold a full frame.
package wire

import (
	"encoding/binary"
	"errors"
)

// MaxFrameSize bounds a single frame to guard against malformed peers
// exhausting memory while buffering, mirroring the teacher's MaxFramePayload.
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum allowed size")

// EncodeFrame serializes msg into a newly allocated byte slice.
func EncodeFrame(msg Message) ([]byte, error) {
	addrLen := len(msg.Source)
	body := 2 + addrLen + 1 + len(msg.Payload)
	if body > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, 4+body)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(body))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(addrLen))
	off := 6
	copy(buf[off:off+addrLen], msg.Source)
	off += addrLen
	buf[off] = byte(msg.Subject)
	off++
	copy(buf[off:], msg.Payload)
	return buf, nil
}

// DecodeFrame parses one frame from the front of buf. It returns the
// decoded message, the number of bytes consumed, and an error. When buf
// does not yet contain a complete frame it returns (Message{}, 0, nil) so
// the caller can keep reading and retry.
func DecodeFrame(buf []byte) (Message, int, error) {
	if len(buf) < 4 {
		return Message{}, 0, nil
	}
	body := int(binary.LittleEndian.Uint32(buf[0:4]))
	if body > MaxFrameSize {
		return Message{}, 0, ErrFrameTooLarge
	}
	total := 4 + body
	if len(buf) < total {
		return Message{}, 0, nil
	}
	if body < 3 {
		return Message{}, 0, errors.New("wire: malformed frame (too short for address length + subject)")
	}
	addrLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	off := 6
	if off+addrLen+1 > total {
		return Message{}, 0, errors.New("wire: malformed frame (address length overruns frame)")
	}
	var src []byte
	if addrLen > 0 {
		src = append([]byte(nil), buf[off:off+addrLen]...)
	}
	off += addrLen
	subject := Subject(buf[off])
	off++
	payload := append([]byte(nil), buf[off:total]...)
	return Message{Source: src, Subject: subject, Payload: payload}, total, nil
}
