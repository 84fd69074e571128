package stompev

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestEncodeFrame_connectIsNotEscaped(t *testing.T) {
	headers := NewStompHeaders()
	headers.Add("host", "broker")
	headers.Add("heart-beat", "0,0")
	headers.Add("accept-version", "1.2")
	raw := encodeFrame(NewFrame(_COMMAND_CONNECT, headers, _NULLBUFF), headerEncoderDecoder{STOMP_1_2})
	assert.Equal(t, "CONNECT\nhost:broker\nheart-beat:0,0\naccept-version:1.2\n\n\x00", string(raw))
}

func TestEncodeFrame_escapesReservedCharacters(t *testing.T) {
	headers := NewStompHeaders()
	headers.Add("weird", "x:y\nz")
	raw := encodeFrame(NewFrame(_COMMAND_SEND, headers, _NULLBUFF), headerEncoderDecoder{STOMP_1_2})
	assert.Equal(t, "SEND\nweird:x\\cy\\nz\n\n\x00", string(raw))
}

func TestEncodeFrame_bodyAndTerminator(t *testing.T) {
	headers := NewStompHeaders()
	headers.Add("destination", "/queue/a")
	headers.Add("content-length", "2")
	raw := encodeFrame(NewFrame(_COMMAND_SEND, headers, []byte("hi")), headerEncoderDecoder{STOMP_1_2})
	assert.Equal(t, "SEND\ndestination:/queue/a\ncontent-length:2\n\nhi\x00", string(raw))
}

func TestEncodeFrame_nilHeaders(t *testing.T) {
	raw := encodeFrame(NewFrame(_COMMAND_DISCONNECT, nil, _NULLBUFF), headerEncoderDecoder{STOMP_1_2})
	assert.Equal(t, "DISCONNECT\n\n\x00", string(raw))
}

func Test_write_frame_ok(t *testing.T) {
	var buf bytes.Buffer
	headers := NewStompHeaders()
	headers.Add("destination", "/queue/a")
	raw, err := writeFrame(&buf, NewFrame(_COMMAND_SEND, headers, []byte("hi")), headerEncoderDecoder{STOMP_1_2})
	assert.NoError(t, err, "did not expect an error writing")
	assert.Equal(t, raw, buf.Bytes(), "the returned bytes are what went down the wire")
}

func Test_write_frame_err(t *testing.T) {
	writer := &failingWriter{err: errors.New("unexpected")}
	_, err := writeFrame(writer, NewFrame(_COMMAND_CONNECT, NewStompHeaders(), _NULLBUFF), headerEncoderDecoder{STOMP_1_2})
	assert.Error(t, err, "expected an error to be returned when writing failed")
	if _, ok := err.(ConnectionError); !ok {
		assert.Fail(t, "error should be a connection Error")
	}
}
