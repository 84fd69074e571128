package stompev

import (
	"bytes"
	"io"
)

//encodeFrame renders a frame to the exact byte sequence the wire wants:
//command line, header lines, blank line, body, terminating null byte.
//CONNECT is written before escaping has been agreed with the server so its
//headers go out untouched, every other command gets names and values escaped
func encodeFrame(frame Frame, encoder headerEncoderDecoder) []byte {
	var buf bytes.Buffer
	buf.Write(frame.Command)
	escape := !bytes.Equal(frame.Command, _COMMAND_CONNECT)
	if nil != frame.Headers {
		for i := 0; i < frame.Headers.Len(); i++ {
			name, value := frame.Headers.GetAt(i)
			if escape {
				name = encoder.Encode(name)
				value = encoder.Encode(value)
			}
			buf.WriteString(name)
			buf.WriteByte(colon)
			buf.WriteString(value)
			buf.WriteByte(newline)
		}
	}
	buf.WriteByte(newline)
	if len(frame.Body) > 0 {
		buf.Write(frame.Body)
	}
	buf.WriteByte(nullByte)
	return buf.Bytes()
}

//writeFrame encodes the frame and pushes it down the writer in one call.
//The encoded bytes are returned so the caller can surface them as a send event.
//A short or failed write is a network fault for the connection
func writeFrame(writer io.Writer, frame Frame, encoder headerEncoderDecoder) ([]byte, error) {
	raw := encodeFrame(frame, encoder)
	if _, err := writer.Write(raw); err != nil {
		return nil, ConnectionError(err.Error())
	}
	return raw, nil
}
