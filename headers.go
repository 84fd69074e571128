package stompev

import (
	"strconv"

	"github.com/pkg/errors"
)

//StompHeaders is an ordered collection of header name value pairs. Order is kept
//so frames encode exactly as the caller built them. When the same name is added
//more than once the first value wins, later entries are ignored on lookup.
type StompHeaders struct {
	entries []string
}

func NewStompHeaders() *StompHeaders {
	return &StompHeaders{}
}

//index returns the position in entries of the first entry with this name
func (h *StompHeaders) index(name string) (int, bool) {
	for i := 0; i < len(h.entries); i += 2 {
		if h.entries[i] == name {
			return i, true
		}
	}
	return 0, false
}

//Add appends a header entry without checking for an existing one with the same name
func (h *StompHeaders) Add(name, value string) {
	h.entries = append(h.entries, name, value)
}

//Set replaces the value of the first entry with this name or appends a new entry
func (h *StompHeaders) Set(name, value string) {
	if i, ok := h.index(name); ok {
		h.entries[i+1] = value
		return
	}
	h.Add(name, value)
}

//Get returns the first value recorded for the name or the empty string
func (h *StompHeaders) Get(name string) string {
	val, _ := h.Contains(name)
	return val
}

func (h *StompHeaders) Contains(name string) (string, bool) {
	if i, ok := h.index(name); ok {
		return h.entries[i+1], true
	}
	return "", false
}

func (h *StompHeaders) Del(name string) {
	for i, ok := h.index(name); ok; i, ok = h.index(name) {
		h.entries = append(h.entries[:i], h.entries[i+2:]...)
	}
}

func (h *StompHeaders) Len() int {
	return len(h.entries) / 2
}

//GetAt returns the name value pair at index. index must be in [0, Len())
func (h *StompHeaders) GetAt(index int) (string, string) {
	index *= 2
	return h.entries[index], h.entries[index+1]
}

func (h *StompHeaders) Clone() *StompHeaders {
	c := &StompHeaders{entries: make([]string, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

//ContentLength reads the content-length header. ok is false when the header is absent
func (h *StompHeaders) ContentLength() (int, bool, error) {
	text, ok := h.Contains("content-length")
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, true, errors.Wrap(err, "invalid content-length header")
	}
	return int(n), true, nil
}

//builds the header sets for each of the client frames
type headerFactory struct {
	version string
}

func (hf headerFactory) connectionHeaders(opts ClientOpts) (*StompHeaders, error) {
	headers := NewStompHeaders()
	if "" == opts.Vhost {
		return nil, errors.New("missing header host ensure Vhost set in opts")
	}
	headers.Add("accept-version", hf.version)
	headers.Add("host", opts.Vhost)
	heartBeat := opts.HeartBeat
	if "" == heartBeat {
		heartBeat = "0,0"
	}
	if _, _, err := parseHeartBeat(heartBeat); err != nil {
		return nil, errors.Wrap(err, "bad HeartBeat value in opts")
	}
	headers.Add("heart-beat", heartBeat)
	if opts.User != "" && opts.PassCode != "" {
		headers.Add("login", opts.User)
		headers.Add("passcode", opts.PassCode)
	}
	return headers, nil
}

func (hf headerFactory) sendHeaders(dest, contentType string, bodyLen int, addedHeaders *StompHeaders) *StompHeaders {
	headers := NewStompHeaders()
	if nil != addedHeaders {
		headers = addedHeaders.Clone()
	}
	headers.Set("destination", dest)
	if contentType != "" {
		headers.Set("content-type", contentType)
	}
	//callers may size the body themselves, only fill in the default
	if _, ok := headers.Contains("content-length"); !ok {
		headers.Set("content-length", strconv.Itoa(bodyLen))
	}
	return headers
}

func (hf headerFactory) subscribeHeaders(id, dest string, addedHeaders *StompHeaders) *StompHeaders {
	headers := NewStompHeaders()
	if nil != addedHeaders {
		headers = addedHeaders.Clone()
	}
	headers.Set("id", id)
	headers.Set("destination", dest)
	if _, ok := headers.Contains("ack"); !ok {
		headers.Set("ack", "auto")
	}
	return headers
}

func (hf headerFactory) unSubscribeHeaders(id string, addedHeaders *StompHeaders) *StompHeaders {
	headers := NewStompHeaders()
	if nil != addedHeaders {
		headers = addedHeaders.Clone()
	}
	headers.Set("id", id)
	return headers
}

func (hf headerFactory) ackHeaders(msgId string) *StompHeaders {
	headers := NewStompHeaders()
	headers.Add("id", msgId)
	return headers
}

func (hf headerFactory) transactionHeaders(transId string, addedHeaders *StompHeaders) *StompHeaders {
	headers := NewStompHeaders()
	if nil != addedHeaders {
		headers = addedHeaders.Clone()
	}
	headers.Set("transaction", transId)
	return headers
}

func (hf headerFactory) disconnectHeaders(receiptId string) *StompHeaders {
	headers := NewStompHeaders()
	headers.Add("receipt", receiptId)
	return headers
}

//escapes and unescapes the reserved bytes in header names and values.
//CONNECT frames are written before escaping is agreed so the writer skips
//the encoder for them
type headerEncoderDecoder struct {
	version string
}

func (ed headerEncoderDecoder) Encode(value string) string {
	encoded := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			encoded = append(encoded, '\\', '\\')
		case cr:
			encoded = append(encoded, '\\', 'r')
		case newline:
			encoded = append(encoded, '\\', 'n')
		case colon:
			encoded = append(encoded, '\\', 'c')
		default:
			encoded = append(encoded, value[i])
		}
	}
	return string(encoded)
}

//Decode reverses Encode. An escape sequence outside the agreed set is a
//protocol violation and fails the whole frame
func (ed headerEncoderDecoder) Decode(value string) (string, error) {
	decoded := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' {
			decoded = append(decoded, c)
			continue
		}
		i++
		if i == len(value) {
			return "", EscapeError("truncated escape at end of " + value)
		}
		switch value[i] {
		case '\\':
			decoded = append(decoded, '\\')
		case 'r':
			decoded = append(decoded, cr)
		case 'n':
			decoded = append(decoded, newline)
		case 'c':
			decoded = append(decoded, colon)
		default:
			return "", EscapeError(`\` + string(value[i]))
		}
	}
	return string(decoded), nil
}
