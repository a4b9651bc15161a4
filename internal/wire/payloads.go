// File: internal/wire/payloads.go
// Author: momentics <momentics@gmail.com>
//
// Packed little-endian payload schemas carried inside Message.Payload, per
// spec.md section 3 ("Protocol payloads") and section 6 ("Wire protocol").
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HelloPayload: worker/agent -> network, sent on connect.
type HelloPayload struct {
	HBTimeoutSecs  uint32
	JobTypesRangeLo uint32
	JobTypesRangeHi uint32
}

func (h HelloPayload) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], h.HBTimeoutSecs)
	binary.LittleEndian.PutUint32(buf[4:8], h.JobTypesRangeLo)
	binary.LittleEndian.PutUint32(buf[8:12], h.JobTypesRangeHi)
	return buf
}

func DecodeHello(b []byte) (HelloPayload, error) {
	if len(b) != 12 {
		return HelloPayload{}, fmt.Errorf("wire: HELLO payload must be 12 bytes, got %d", len(b))
	}
	return HelloPayload{
		HBTimeoutSecs:   binary.LittleEndian.Uint32(b[0:4]),
		JobTypesRangeLo: binary.LittleEndian.Uint32(b[4:8]),
		JobTypesRangeHi: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// WelcomePayload: network -> worker, reply to Hello.
type WelcomePayload struct {
	HBTimeoutSecs uint32
}

func (w WelcomePayload) Encode() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, w.HBTimeoutSecs)
	return buf
}

func DecodeWelcome(b []byte) (WelcomePayload, error) {
	if len(b) != 4 {
		return WelcomePayload{}, fmt.Errorf("wire: WELCOME payload must be 4 bytes, got %d", len(b))
	}
	return WelcomePayload{HBTimeoutSecs: binary.LittleEndian.Uint32(b)}, nil
}

// JobPayload: delegator -> worker.
type JobPayload struct {
	ID   uint32
	Type uint32
	Data []float32
}

func (j JobPayload) Encode() []byte {
	buf := make([]byte, 8+4*len(j.Data))
	binary.LittleEndian.PutUint32(buf[0:4], j.ID)
	binary.LittleEndian.PutUint32(buf[4:8], j.Type)
	for i, v := range j.Data {
		binary.LittleEndian.PutUint32(buf[8+4*i:12+4*i], math.Float32bits(v))
	}
	return buf
}

func DecodeJob(b []byte) (JobPayload, error) {
	if len(b) < 8 || (len(b)-8)%4 != 0 {
		return JobPayload{}, fmt.Errorf("wire: malformed JOB payload of length %d", len(b))
	}
	n := (len(b) - 8) / 4
	data := make([]float32, n)
	for i := 0; i < n; i++ {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[8+4*i : 12+4*i]))
	}
	return JobPayload{
		ID:   binary.LittleEndian.Uint32(b[0:4]),
		Type: binary.LittleEndian.Uint32(b[4:8]),
		Data: data,
	}, nil
}

// ResultPayload: worker -> delegator.
type ResultPayload struct {
	ID   uint32
	Data float32
}

func (r ResultPayload) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], r.ID)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(r.Data))
	return buf
}

func DecodeResult(b []byte) (ResultPayload, error) {
	if len(b) != 8 {
		return ResultPayload{}, fmt.Errorf("wire: RESULT payload must be 8 bytes, got %d", len(b))
	}
	return ResultPayload{
		ID:   binary.LittleEndian.Uint32(b[0:4]),
		Data: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// BatchJobPayload: requester -> delegator; the sample vector to evaluate.
type BatchJobPayload struct {
	ID   uint32
	Data []float64
}

func (b BatchJobPayload) Encode() []byte {
	buf := make([]byte, 4+8*len(b.Data))
	binary.LittleEndian.PutUint32(buf[0:4], b.ID)
	for i, v := range b.Data {
		binary.LittleEndian.PutUint64(buf[4+8*i:12+8*i], math.Float64bits(v))
	}
	return buf
}

func DecodeBatchJob(b []byte) (BatchJobPayload, error) {
	if len(b) < 4 || (len(b)-4)%8 != 0 {
		return BatchJobPayload{}, fmt.Errorf("wire: malformed BATCH_JOB payload of length %d", len(b))
	}
	n := (len(b) - 4) / 8
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[4+8*i : 12+8*i]))
	}
	return BatchJobPayload{ID: binary.LittleEndian.Uint32(b[0:4]), Data: data}, nil
}

// BatchResultPayload: delegator -> requester; per-job-type components.
type BatchResultPayload struct {
	ID   uint32
	Data []float64
}

func (b BatchResultPayload) Encode() []byte {
	return BatchJobPayload(b).Encode()
}

func DecodeBatchResult(b []byte) (BatchResultPayload, error) {
	p, err := DecodeBatchJob(b)
	return BatchResultPayload(p), err
}
