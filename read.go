package stompev

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

//stompSocketReader pulls frames off the wire one at a time. The stream is read
//in three stages, command line then header block then body, because a body may
//legally contain the newline patterns that delimit the first two stages. Body
//length comes from the content-length header when present, otherwise the body
//runs to the first null byte
type stompSocketReader struct {
	decoder  headerEncoderDecoder
	reader   *bufio.Reader
	shutdown chan struct{}
	errChan  chan error
	msgChan  chan Frame
	activity func() //invoked on every frame or heart-beat observed from the server
	log      *logrus.Entry
}

func newStompReader(con io.Reader, shutdown chan struct{}, errChan chan error, msgChan chan Frame, decoder headerEncoderDecoder, log *logrus.Entry) *stompSocketReader {
	return &stompSocketReader{
		decoder:  decoder,
		reader:   bufio.NewReader(con),
		shutdown: shutdown,
		errChan:  errChan,
		msgChan:  msgChan,
		activity: func() {},
		log:      log,
	}
}

//readFrame reads the next full frame off the wire. beat is true when the read
//was a lone line terminator, the server heart-beat, and no frame is returned.
//Frames whose command is not one the server may send are drained and skipped
func (sr *stompSocketReader) readFrame() (Frame, bool, error) {
	for {
		line, err := sr.reader.ReadBytes(newline)
		if err != nil {
			return Frame{}, false, ConnectionError(err.Error())
		}
		command := bytes.TrimRight(line, "\r\n")
		if len(command) == 0 {
			return Frame{}, true, nil
		}
		if !serverCommands[string(command)] {
			sr.log.WithField("command", string(command)).Warn("dropping frame with unknown command")
			if err := sr.drainFrame(); err != nil {
				return Frame{}, false, err
			}
			continue
		}
		headers, err := sr.readHeaders()
		if err != nil {
			if _, fatal := err.(ConnectionError); fatal {
				return Frame{}, false, err
			}
			//frame is poisoned, realign the cursor on the next frame boundary
			if derr := sr.drainToNull(); derr != nil {
				return Frame{}, false, derr
			}
			return Frame{}, false, err
		}
		body, err := sr.readBody(headers)
		if err != nil {
			return Frame{}, false, err
		}
		cmd := append(append(make([]byte, 0, len(command)+1), command...), newline)
		return Frame{Command: cmd, Headers: headers, Body: body}, false, nil
	}
}

//readHeaders consumes header lines up to the blank line that ends the block.
//Lines without a colon are skipped individually, a bad escape sequence fails
//the whole frame. Duplicate names are kept in arrival order so the first wins
func (sr *stompSocketReader) readHeaders() (*StompHeaders, error) {
	headers := NewStompHeaders()
	for {
		line, err := sr.reader.ReadString(newline)
		if err != nil {
			return nil, ConnectionError(err.Error())
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return headers, nil
		}
		parsed := strings.SplitN(line, ":", 2)
		if len(parsed) != 2 {
			sr.log.WithField("header", line).Warn("skipping malformed header line")
			continue
		}
		name, err := sr.decoder.Decode(parsed[0])
		if err != nil {
			return nil, err
		}
		value, err := sr.decoder.Decode(parsed[1])
		if err != nil {
			return nil, err
		}
		headers.Add(name, value)
	}
}

//readBody resolves the body of the current frame. With a content-length header
//exactly that many bytes are read, embedded null bytes included, and the
//terminating null must follow. Without one the body is everything before the
//first null byte
func (sr *stompSocketReader) readBody(headers *StompHeaders) ([]byte, error) {
	length, present, err := headers.ContentLength()
	if err != nil {
		if derr := sr.drainToNull(); derr != nil {
			return nil, derr
		}
		return nil, BadFrameError(err.Error())
	}
	if present {
		body := make([]byte, length)
		if _, err := io.ReadFull(sr.reader, body); err != nil {
			return nil, ConnectionError(err.Error())
		}
		terminator, err := sr.reader.ReadByte()
		if err != nil {
			return nil, ConnectionError(err.Error())
		}
		if terminator != nullByte {
			return nil, BadFrameError("frame body longer than its content-length header")
		}
		return body, nil
	}
	raw, err := sr.reader.ReadBytes(nullByte)
	if err != nil {
		return nil, ConnectionError(err.Error())
	}
	return raw[:len(raw)-1], nil
}

//drainFrame discards the remainder of an unwanted frame while keeping the
//decode cursor frame aligned, honouring content-length if it parses
func (sr *stompSocketReader) drainFrame() error {
	headers := NewStompHeaders()
	for {
		line, err := sr.reader.ReadString(newline)
		if err != nil {
			return ConnectionError(err.Error())
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if parsed := strings.SplitN(line, ":", 2); len(parsed) == 2 {
			headers.Add(parsed[0], parsed[1])
		}
	}
	if _, err := sr.readBody(headers); err != nil {
		if _, fatal := err.(ConnectionError); fatal {
			return err
		}
	}
	return nil
}

func (sr *stompSocketReader) drainToNull() error {
	if _, err := sr.reader.ReadBytes(nullByte); err != nil {
		return ConnectionError(err.Error())
	}
	return nil
}

//startReadLoop reads frames until shutdown or a network fault. Undecodable
//frames are dropped and reading continues, a connection error ends the loop
//and is pushed to the owner. Every successful read counts as server liveness
func (sr *stompSocketReader) startReadLoop() {
	for {
		frame, beat, err := sr.readFrame()
		select {
		case <-sr.shutdown:
			return
		default:
		}
		if err != nil {
			switch err.(type) {
			case BadFrameError, EscapeError:
				sr.log.WithError(err).Warn("dropping undecodable frame")
				continue
			default:
				select {
				case sr.errChan <- err:
				case <-sr.shutdown:
				}
				return
			}
		}
		sr.activity()
		if beat {
			sr.log.Debug("server heart-beat received")
			continue
		}
		select {
		case sr.msgChan <- frame:
		case <-sr.shutdown:
			return
		}
	}
}
