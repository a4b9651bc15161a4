package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	msg := Message{
		Source:  []byte("10.0.0.1:5555"),
		Subject: BatchJob,
		Payload: BatchJobPayload{ID: 7, Data: []float64{1.5, -2.25, 3}}.Encode(),
	}
	frame, err := EncodeFrame(msg)
	require.NoError(t, err)

	got, consumed, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), consumed)
	require.Equal(t, msg.Source, got.Source)
	require.Equal(t, msg.Subject, got.Subject)
	require.Equal(t, msg.Payload, got.Payload)
}

func TestDecodeFrameIncompleteReturnsZeroConsumedNoError(t *testing.T) {
	msg := Message{Subject: Heartbeat}
	frame, err := EncodeFrame(msg)
	require.NoError(t, err)

	got, consumed, err := DecodeFrame(frame[:len(frame)-1])
	require.NoError(t, err)
	require.Zero(t, consumed)
	require.Equal(t, Message{}, got)

	got, consumed, err = DecodeFrame(nil)
	require.NoError(t, err)
	require.Zero(t, consumed)
	require.Equal(t, Message{}, got)
}

func TestDecodeFrameStreamsMultipleMessages(t *testing.T) {
	a, err := EncodeFrame(Message{Subject: Hello, Payload: HelloPayload{HBTimeoutSecs: 15}.Encode()})
	require.NoError(t, err)
	b, err := EncodeFrame(Message{Subject: Bye})
	require.NoError(t, err)

	buf := append(append([]byte(nil), a...), b...)

	m1, n1, err := DecodeFrame(buf)
	require.NoError(t, err)
	require.Equal(t, Hello, m1.Subject)
	buf = buf[n1:]

	m2, n2, err := DecodeFrame(buf)
	require.NoError(t, err)
	require.Equal(t, Bye, m2.Subject)
	require.Equal(t, len(buf), n2)
}

func TestDecodeFrameRejectsMalformedBody(t *testing.T) {
	// body length 2 is too short to hold addrLen(2)+subject(1).
	buf := []byte{2, 0, 0, 0, 0xAA, 0xBB}
	_, _, err := DecodeFrame(buf)
	require.Error(t, err)
}

func TestPayloadCodecsRoundTrip(t *testing.T) {
	hello := HelloPayload{HBTimeoutSecs: 20, JobTypesRangeLo: 1, JobTypesRangeHi: 3}
	gotHello, err := DecodeHello(hello.Encode())
	require.NoError(t, err)
	require.Equal(t, hello, gotHello)

	welcome := WelcomePayload{HBTimeoutSecs: 20}
	gotWelcome, err := DecodeWelcome(welcome.Encode())
	require.NoError(t, err)
	require.Equal(t, welcome, gotWelcome)

	job := JobPayload{ID: 9, Type: 2, Data: []float32{1, -2.5, 3.25}}
	gotJob, err := DecodeJob(job.Encode())
	require.NoError(t, err)
	require.Equal(t, job, gotJob)

	result := ResultPayload{ID: 9, Data: -1.25}
	gotResult, err := DecodeResult(result.Encode())
	require.NoError(t, err)
	require.Equal(t, result, gotResult)

	batchJob := BatchJobPayload{ID: 3, Data: []float64{1, 2, 3, 4}}
	gotBatchJob, err := DecodeBatchJob(batchJob.Encode())
	require.NoError(t, err)
	require.Equal(t, batchJob, gotBatchJob)

	batchResult := BatchResultPayload{ID: 3, Data: []float64{5, 6}}
	gotBatchResult, err := DecodeBatchResult(batchResult.Encode())
	require.NoError(t, err)
	require.Equal(t, batchResult, gotBatchResult)
}

func TestDecodeJobRejectsTruncatedPayload(t *testing.T) {
	_, err := DecodeJob([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestMessageCloneIsDeepCopy(t *testing.T) {
	orig := Message{Source: []byte("a"), Dest: []byte("b"), Subject: Job, Payload: []byte{1, 2, 3}}
	clone := orig.Clone()
	clone.Source[0] = 'z'
	clone.Payload[0] = 0xFF
	require.Equal(t, byte('a'), orig.Source[0])
	require.Equal(t, byte(1), orig.Payload[0])
}

func TestSubjectString(t *testing.T) {
	require.Equal(t, "HELLO", Hello.String())
	require.Contains(t, Subject(99).String(), "SUBJECT")
}
