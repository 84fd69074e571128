package stompev

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func GenerateClientOpts(hostAndPort string) ClientOpts {
	return ClientOpts{
		HostAndPort: hostAndPort,
		Timeout:     5 * time.Second,
		Vhost:       "localhost",
	}
}

func testLogEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("pkg", "stompev")
}

//in process broker stub speaking just enough of the protocol for the tests
type stubBroker struct {
	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader
}

func startStubBroker(t *testing.T) *stubBroker {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("failed to start stub broker listener: ", err)
	}
	return &stubBroker{listener: listener}
}

func (b *stubBroker) addr() string {
	return b.listener.Addr().String()
}

func (b *stubBroker) accept() error {
	conn, err := b.listener.Accept()
	if err != nil {
		return err
	}
	b.conn = conn
	b.reader = bufio.NewReader(conn)
	return nil
}

//readFrame returns the raw bytes of the next frame including the null byte
func (b *stubBroker) readFrame() ([]byte, error) {
	return b.reader.ReadBytes(0)
}

func (b *stubBroker) write(raw string) error {
	_, err := b.conn.Write([]byte(raw))
	return err
}

func (b *stubBroker) close() {
	if nil != b.conn {
		b.conn.Close()
	}
	b.listener.Close()
}

//handshake accepts the next connection, consumes the CONNECT frame and answers
//with a CONNECTED frame advertising the given heart-beat cadence
func (b *stubBroker) handshake(heartBeat string) error {
	if err := b.accept(); err != nil {
		return err
	}
	if _, err := b.readFrame(); err != nil {
		return err
	}
	return b.write("CONNECTED\nversion:1.2\nsession:session-1\nserver:stub/1.0\nheart-beat:" + heartBeat + "\n\n\x00")
}

func connectedClient(t *testing.T, b *stubBroker, clientHeartBeat, serverHeartBeat string) *Client {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- b.handshake(serverHeartBeat) }()
	opts := GenerateClientOpts(b.addr())
	opts.HeartBeat = clientHeartBeat
	opts.Logger = testLogEntry().Logger
	client := NewClient(opts)
	if err := client.Connect(); err != nil {
		t.Fatal("failed to connect to stub broker: ", err)
	}
	if err := <-done; err != nil {
		t.Fatal("stub broker handshake failed: ", err)
	}
	return client
}

//frameHeaderValue digs a header value out of a raw frame, enough for asserting
//on what the client put on the wire
func frameHeaderValue(raw []byte, name string) string {
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, name+":") {
			return strings.TrimPrefix(line, name+":")
		}
	}
	return ""
}
