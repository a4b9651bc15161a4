// Package wire implements the single Stateline wire object: the Message
// envelope (source/destination address, subject tag, opaque payload) and
// its little-endian framing over a byte stream.
//
// Grounded on the teacher's protocol.DecodeFrameFromBytes: frames are
// length-delimited and decoding an incomplete frame returns (Message{}, 0, nil)
// rather than an error, so callers can keep buffering.
//
// Author: momentics <momentics@gmail.com>
package wire

import "fmt"

// Subject enumerates every message tag on the wire (spec.md section 6).
type Subject byte

const (
	Heartbeat Subject = 0
	Hello     Subject = 1
	Bye       Subject = 2
	Job       Subject = 3
	Result    Subject = 4
	BatchJob  Subject = 5
	BatchResult Subject = 6
	Welcome   Subject = 7
)

func (s Subject) String() string {
	switch s {
	case Heartbeat:
		return "HEARTBEAT"
	case Hello:
		return "HELLO"
	case Bye:
		return "BYE"
	case Job:
		return "JOB"
	case Result:
		return "RESULT"
	case BatchJob:
		return "BATCH_JOB"
	case BatchResult:
		return "BATCH_RESULT"
	case Welcome:
		return "WELCOME"
	default:
		return fmt.Sprintf("SUBJECT(%d)", byte(s))
	}
}

// Message is the only object that travels the wire. Address is opaque and
// may be empty for point-to-point (pair/req/rep) links; every message has
// exactly one Subject.
type Message struct {
	Source  []byte
	Dest    []byte
	Subject Subject
	Payload []byte
}

// Clone returns a deep copy; used where a payload slice must outlive a
// reused receive buffer.
func (m Message) Clone() Message {
	out := Message{Subject: m.Subject}
	if m.Source != nil {
		out.Source = append([]byte(nil), m.Source...)
	}
	if m.Dest != nil {
		out.Dest = append([]byte(nil), m.Dest...)
	}
	if m.Payload != nil {
		out.Payload = append([]byte(nil), m.Payload...)
	}
	return out
}
