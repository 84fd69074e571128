package stompev

import "bytes"

var (
	_COMMAND_CONNECT            []byte = []byte("CONNECT\n")
	_COMMAND_DISCONNECT         []byte = []byte("DISCONNECT\n")
	_COMMAND_SUBSCRIBE          []byte = []byte("SUBSCRIBE\n")
	_COMMAND_UNSUBSCRIBE        []byte = []byte("UNSUBSCRIBE\n")
	_COMMAND_SEND               []byte = []byte("SEND\n")
	_COMMAND_ACK                []byte = []byte("ACK\n")
	_COMMAND_NACK               []byte = []byte("NACK\n")
	_COMMAND_TRANSACTION_BEGIN  []byte = []byte("BEGIN\n")
	_COMMAND_TRANSACTION_ABORT  []byte = []byte("ABORT\n")
	_COMMAND_TRANSACTION_COMMIT []byte = []byte("COMMIT\n")
	_NULLBUFF                          = make([]uint8, 0)
	newline                            = byte(10)
	cr                                 = byte(13)
	colon                              = byte(58)
	nullByte                           = byte(0)
)

//commands a broker is allowed to send us. anything else read off the wire is dropped
var serverCommands = map[string]bool{
	"CONNECTED": true,
	"MESSAGE":   true,
	"RECEIPT":   true,
	"ERROR":     true,
}

//stomp frame is made up of a command, headers and an optional body
type Frame struct {
	Command []byte
	Headers *StompHeaders
	Body    []byte
}

func NewFrame(command []byte, headers *StompHeaders, body []byte) Frame {
	return Frame{
		Command: command,
		Headers: headers,
		Body:    body,
	}
}

//CommandString returns the frame command without its trailing line terminator
func (f Frame) CommandString() string {
	return string(bytes.TrimRight(f.Command, "\r\n"))
}
