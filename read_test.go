package stompev

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
)

func newTestReader(stream io.Reader) *stompSocketReader {
	return newStompReader(stream, make(chan struct{}), make(chan error, 1), make(chan Frame), headerEncoderDecoder{STOMP_1_2}, testLogEntry())
}

func TestReadFrame_message(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\ndestination:/queue/a\nmessage-id:1\nsubscription:sub-1\n\nhello\x00"))
	frame, beat, err := reader.readFrame()
	assert.NoError(t, err, "did not expect an error reading")
	assert.False(t, beat, "expected a frame not a heart-beat")
	assert.Equal(t, "MESSAGE", frame.CommandString())
	assert.Equal(t, "/queue/a", frame.Headers.Get("destination"))
	assert.Equal(t, "1", frame.Headers.Get("message-id"))
	assert.Equal(t, "hello", string(frame.Body))
}

func TestReadFrame_crlfLines(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\r\ndestination:/queue/a\r\n\r\nhello\x00"))
	frame, beat, err := reader.readFrame()
	assert.NoError(t, err)
	assert.False(t, beat)
	assert.Equal(t, "MESSAGE", frame.CommandString())
	assert.Equal(t, "hello", string(frame.Body))
}

func TestReadFrame_heartBeat(t *testing.T) {
	reader := newTestReader(strings.NewReader("\nRECEIPT\nreceipt-id:77\n\n\x00"))
	_, beat, err := reader.readFrame()
	assert.NoError(t, err)
	assert.True(t, beat, "a lone line terminator is a server heart-beat")

	frame, beat, err := reader.readFrame()
	assert.NoError(t, err)
	assert.False(t, beat)
	assert.Equal(t, "RECEIPT", frame.CommandString())
	assert.Equal(t, "77", frame.Headers.Get("receipt-id"))
	assert.Equal(t, 0, len(frame.Body), "receipt frames carry no body")
}

func TestReadFrame_unknownCommandSkipped(t *testing.T) {
	reader := newTestReader(strings.NewReader("BOGUS\nfoo:bar\n\njunk\x00MESSAGE\n\nok\x00"))
	frame, beat, err := reader.readFrame()
	assert.NoError(t, err, "the unknown frame should be drained silently")
	assert.False(t, beat)
	assert.Equal(t, "MESSAGE", frame.CommandString())
	assert.Equal(t, "ok", string(frame.Body))
}

func TestReadFrame_contentLengthKeepsEmbeddedNull(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\ncontent-length:3\n\na\x00b\x00"))
	frame, _, err := reader.readFrame()
	assert.NoError(t, err)
	assert.Equal(t, []byte{'a', 0, 'b'}, frame.Body, "embedded null bytes survive with content-length")
}

func TestReadFrame_noContentLengthTruncatesAtNull(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\n\na\x00"))
	frame, _, err := reader.readFrame()
	assert.NoError(t, err)
	assert.Equal(t, "a", string(frame.Body), "body runs to the first null byte without content-length")
}

func TestReadFrame_malformedHeaderLineSkipped(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\nnoseparator\ngood:value\n\nbody\x00"))
	frame, _, err := reader.readFrame()
	assert.NoError(t, err, "a malformed header line should not fail the frame")
	assert.Equal(t, "value", frame.Headers.Get("good"))
	_, ok := frame.Headers.Contains("noseparator")
	assert.False(t, ok)
}

func TestReadFrame_duplicateHeaderFirstWins(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\nfoo:first\nfoo:second\n\nbody\x00"))
	frame, _, err := reader.readFrame()
	assert.NoError(t, err)
	assert.Equal(t, "first", frame.Headers.Get("foo"))
}

func TestReadFrame_badEscapeIsFatalForFrame(t *testing.T) {
	reader := newTestReader(strings.NewReader("MESSAGE\nfoo:ba\\td\n\nbody\x00MESSAGE\n\nok\x00"))
	_, _, err := reader.readFrame()
	assert.Error(t, err, "an unknown escape sequence must fail the frame")
	assert.IsType(t, EscapeError(""), err)

	//the cursor realigns on the next frame boundary
	frame, beat, err := reader.readFrame()
	assert.NoError(t, err)
	assert.False(t, beat)
	assert.Equal(t, "ok", string(frame.Body))
}

func TestReadFrame_eofIsConnectionError(t *testing.T) {
	reader := newTestReader(strings.NewReader(""))
	_, _, err := reader.readFrame()
	assert.Error(t, err)
	assert.IsType(t, ConnectionError(""), err)
}

//decoding a stream split at arbitrary byte boundaries must yield the same
//frames as decoding it whole
func TestReadFrame_chunkBoundaryInvariance(t *testing.T) {
	stream := "MESSAGE\ndestination:/queue/a\ncontent-length:3\n\na\x00b\x00\nRECEIPT\nreceipt-id:9\n\n\x00MESSAGE\nfoo:bar\n\nhello\x00"

	type result struct {
		command string
		body    string
	}
	readAll := func(r io.Reader) []result {
		reader := newTestReader(r)
		var frames []result
		for {
			frame, beat, err := reader.readFrame()
			if err != nil {
				return frames
			}
			if beat {
				continue
			}
			frames = append(frames, result{frame.CommandString(), string(frame.Body)})
		}
	}

	whole := readAll(strings.NewReader(stream))
	chunked := readAll(iotest.OneByteReader(strings.NewReader(stream)))
	assert.Equal(t, 3, len(whole), "expected three frames from the stream")
	assert.Equal(t, whole, chunked, "chunking must not change the decoded frames")
}
