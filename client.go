//Stompev is a stomp 1.2 client for communicating with stomp based messaging
//servers. It frames and parses protocol messages, negotiates heart-beating and
//surfaces broker activity as typed events. It exposes a set of interfaces to
//allow easy mocking in tests. The main interface is StompClient

package stompev

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//the one version of the protocol this client speaks
const STOMP_1_2 string = "1.2"

var Supported = []string{STOMP_1_2}

//connection lifecycle. Disconnected is terminal, a new client is needed to
//connect again, reconnection policy belongs to the application
type connectionState int

const (
	stateUnconnected connectionState = iota
	stateConnecting
	stateConnected
	stateDisconnected
)

//Available connection and auth params
type ClientOpts struct {
	Vhost       string
	HostAndPort string
	Timeout     time.Duration
	User        string
	PassCode    string
	Version     string
	HeartBeat   string //offered cadence "send-ms,receive-ms", defaults to "0,0"
	Logger      *logrus.Logger
}

//responsible for defining the how the connection to the server should be handled
type StompConnector interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
}

//responsible for defining how a subscription should be handled
type StompSubscriber interface {
	//accepts a destination /test/test for example a handler function for handling messages from that subscription and any headers you want to override / set
	Subscribe(destination string, handler SubscriptionHandler, headers *StompHeaders, receipt *Receipt) (string, error)
	Unsubscribe(subId string, headers *StompHeaders, receipt *Receipt) error
	Ack(msg Frame) error
	Nack(msg Frame) error
}

//responsible for defining how a publish should happen
type StompPublisher interface {
	//accepts a body, destination, content-type and any headers you wish to override or set
	Publish(destination string, contentType string, body []byte, headers *StompHeaders, receipt *Receipt) error
}

//defines how transactions are done
type StompTransactor interface {
	Begin(transId string, addedHeaders *StompHeaders, receipt *Receipt) error
	Abort(transId string, addedHeaders *StompHeaders, receipt *Receipt) error
	Commit(transId string, addedHeaders *StompHeaders, receipt *Receipt) error
}

//A stomp client is a combination of all of these things
type StompClient interface {
	StompConnector
	StompSubscriber
	StompPublisher
	StompTransactor
}

type messageStats struct {
	sync.Mutex
	count int
}

func (s *messageStats) Increment() int {
	s.Lock()
	defer s.Unlock()
	s.count++
	return s.count
}

//main client type for interacting with stomp. This is the exposed type
type Client struct {
	opts           ClientOpts
	mu             sync.Mutex //guards state and the negotiated session details
	state          connectionState
	session        string
	version        string
	server         string
	conn           net.Conn
	writeLock      sync.Mutex //serialises raw writes so frames never interleave
	connectionErr  chan error
	shutdown       chan struct{} //closed once on teardown, tells loops to exit
	msgChan        chan Frame
	reader         *stompSocketReader
	hb             *heartBeater
	subscriptions  *subscriptions
	awaiting       *receipts
	events         *eventDispatcher
	encoderDecoder headerEncoderDecoder
	headersFactory headerFactory
	stats          messageStats
	closeOnce      sync.Once
	log            *logrus.Entry
}

//Create a new stomp client based on a set of options
func NewClient(opts ClientOpts) *Client {
	if "" == opts.Version {
		opts.Version = STOMP_1_2
	}
	logger := opts.Logger
	if nil == logger {
		logger = logrus.StandardLogger()
	}
	return &Client{
		opts:           opts,
		state:          stateUnconnected,
		connectionErr:  make(chan error, 1),
		shutdown:       make(chan struct{}),
		msgChan:        make(chan Frame),
		subscriptions:  newSubscriptions(),
		awaiting:       newReceipts(),
		events:         newEventDispatcher(),
		encoderDecoder: headerEncoderDecoder{opts.Version},
		headersFactory: headerFactory{version: opts.Version},
		log:            logger.WithField("pkg", "stompev"),
	}
}

var _ StompClient = &Client{}

//StompConnector.Connect dials the broker, performs the CONNECT/CONNECTED
//handshake, negotiates heart-beating from the server's advertised cadence and
//starts the read and dispatch loops. Only valid on a fresh client
func (client *Client) Connect() error {
	client.mu.Lock()
	if client.state != stateUnconnected {
		client.mu.Unlock()
		return ClientError("connect is only valid on an unconnected client")
	}
	client.state = stateConnecting
	client.mu.Unlock()

	if err := versionSupported(client.opts.Version); err != nil {
		client.terminate()
		return err
	}
	headers, err := client.headersFactory.connectionHeaders(client.opts)
	if err != nil {
		client.terminate()
		return ClientError(err.Error())
	}

	conn, err := net.DialTimeout("tcp", client.opts.HostAndPort, client.opts.Timeout)
	if err != nil {
		client.terminate()
		return ConnectionError(errors.Wrap(err, "failed to dial broker").Error())
	}
	client.conn = conn
	client.reader = newStompReader(conn, client.shutdown, client.connectionErr, client.msgChan, client.encoderDecoder, client.log)

	//CONNECT goes out before escaping is agreed so its headers are written raw
	if err := client.writeStompFrame(NewFrame(_COMMAND_CONNECT, headers, _NULLBUFF)); err != nil {
		client.terminate()
		return err
	}

	frame, err := client.awaitConnected()
	if err != nil {
		client.terminate()
		return err
	}
	if err := versionCheck(frame); err != nil {
		client.terminate()
		return err
	}

	client.mu.Lock()
	client.session = frame.Headers.Get("session")
	client.version = frame.Headers.Get("version")
	client.server = frame.Headers.Get("server")
	client.state = stateConnected
	client.mu.Unlock()

	client.startHeartBeat(frame.Headers.Get("heart-beat"))
	go client.reader.startReadLoop()
	go client.dispatchLoop()
	client.log.WithFields(logrus.Fields{
		"session": client.session,
		"server":  client.server,
	}).Debug("connected")
	client.events.emitConnected(frame.Headers)
	return nil
}

//awaitConnected reads frames synchronously until the handshake resolves.
//Anything other than CONNECTED at this point is a failed connection
func (client *Client) awaitConnected() (Frame, error) {
	for {
		frame, beat, err := client.reader.readFrame()
		if err != nil {
			return frame, err
		}
		if beat {
			continue
		}
		switch frame.CommandString() {
		case "CONNECTED":
			return frame, nil
		case "ERROR":
			return frame, ServerError("after initial connection received err : " + frame.Headers.Get("message"))
		default:
			return frame, BadFrameError("expected CONNECTED frame got " + frame.CommandString())
		}
	}
}

//startHeartBeat negotiates intervals from what we offered and what the server
//advertised and arms both timers. A missing or malformed header from the
//server means no heart-beating in either direction
func (client *Client) startHeartBeat(serverValue string) {
	offered := client.opts.HeartBeat
	if "" == offered {
		offered = "0,0"
	}
	clientSend, clientReceive, _ := parseHeartBeat(offered)
	if "" == serverValue {
		serverValue = "0,0"
	}
	serverSend, serverReceive, err := parseHeartBeat(serverValue)
	if err != nil {
		client.log.WithError(err).Warn("ignoring malformed heart-beat header from server")
		serverSend, serverReceive = 0, 0
	}
	send, receive := negotiateHeartBeat(clientSend, clientReceive, serverSend, serverReceive)
	client.hb = newHeartBeater(send, receive, client.sendBeat, client.onStale, client.log)
	client.reader.activity = client.hb.resetReceive
	client.hb.start()
}

//sendBeat writes the lone line terminator that is a heart-beat frame. A write
//failure here is only logged, the read loop surfaces the broken connection
func (client *Client) sendBeat() {
	client.writeLock.Lock()
	_, err := client.conn.Write([]byte{newline})
	client.writeLock.Unlock()
	if err != nil {
		client.log.WithError(err).Warn("heart-beat write failed")
		return
	}
	client.log.Debug("heart-beat sent")
}

//onStale is called when the server went quiet for longer than the negotiated
//window plus grace. The connection is declared dead without waiting for the
//transport to notice
func (client *Client) onStale() {
	client.log.Error("no activity from server inside the negotiated heart-beat window, closing connection")
	client.terminate()
}

//dispatchLoop routes frames from the read loop to subscriptions, pending
//receipts and event listeners. A connection error from the read loop is
//terminal
func (client *Client) dispatchLoop() {
	for {
		select {
		case <-client.shutdown:
			return
		case err := <-client.connectionErr:
			client.log.WithError(err).Error("transport failure")
			client.terminate()
			return
		case frame := <-client.msgChan:
			switch frame.CommandString() {
			case "MESSAGE":
				client.subscriptions.forward(frame)
				client.events.emitMessage(frame)
			case "RECEIPT":
				client.awaiting.fulfil(frame.Headers.Get("receipt-id"))
				client.events.emitReceipt(frame)
			case "ERROR":
				client.log.WithField("message", frame.Headers.Get("message")).Warn("broker sent an ERROR frame")
				client.events.emitError(frame)
			}
		}
	}
}

//terminate moves the client to its terminal state exactly once: timers
//cancelled so nothing beats a dead socket, loops told to exit, socket closed,
//DISCONNECTED emitted
func (client *Client) terminate() {
	client.closeOnce.Do(func() {
		client.mu.Lock()
		client.state = stateDisconnected
		client.mu.Unlock()
		if nil != client.hb {
			client.hb.stop()
		}
		close(client.shutdown)
		if nil != client.conn {
			client.conn.Close()
		}
		client.events.emitDisconnected()
	})
}

//StompConnector.Disconnect writes a DISCONNECT frame carrying a fresh receipt
//id and tears the session down locally. It does not wait for the broker's
//RECEIPT, frames still in flight may be lost
func (client *Client) Disconnect() error {
	client.mu.Lock()
	if client.state != stateConnected {
		client.mu.Unlock()
		return nil
	}
	client.mu.Unlock()

	receiptId := "disconnect-" + strconv.Itoa(client.stats.Increment())
	if id, err := uuid.NewV4(); err == nil {
		receiptId = "disconnect-" + id.String()
	}
	frame := NewFrame(_COMMAND_DISCONNECT, client.headersFactory.disconnectHeaders(receiptId), _NULLBUFF)
	err := client.writeStompFrame(frame)
	client.terminate()
	return err
}

//StompConnector.IsConnected reports whether the session is currently live
func (client *Client) IsConnected() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.state == stateConnected
}

//Session returns the broker assigned session id from the CONNECTED frame
func (client *Client) Session() string {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.session
}

//Server returns the broker identification string from the CONNECTED frame
func (client *Client) Server() string {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.server
}

//Version returns the protocol version the broker confirmed
func (client *Client) Version() string {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.version
}

//StompPublisher.Publish publish a message to the server. destination and
//content-length headers are filled in, content-length defaulting to the body
//size so bodies with embedded null bytes survive intact
func (client *Client) Publish(destination, contentType string, body []byte, addedHeaders *StompHeaders, receipt *Receipt) error {
	headers := client.headersFactory.sendHeaders(destination, contentType, len(body), addedHeaders)
	headers, err := client.handleReceipt(headers, receipt)
	if err != nil {
		return err
	}
	frame := NewFrame(_COMMAND_SEND, headers, body)
	return client.writeStompFrame(frame)
}

//subscribe to messages sent to the destination. Subscribing again to a
//destination already subscribed is a no-op answered with the existing id and
//no frame is written. The id can be chosen via the added headers, otherwise
//one is generated
func (client *Client) Subscribe(destination string, handler SubscriptionHandler, headers *StompHeaders, receipt *Receipt) (string, error) {
	if existing, ok := client.subscriptions.get(destination); ok {
		return existing.Id, nil
	}
	sub, err := newSubscription(destination, handler, headers)
	if nil != err {
		return "", err
	}
	sub, created := client.subscriptions.add(sub)
	if !created {
		return sub.Id, nil
	}
	subHeaders := client.headersFactory.subscribeHeaders(sub.Id, destination, headers)
	subHeaders, err = client.handleReceipt(subHeaders, receipt)
	if err != nil {
		client.subscriptions.remove(sub.Id)
		return "", err
	}
	frame := NewFrame(_COMMAND_SUBSCRIBE, subHeaders, _NULLBUFF)
	if err := client.writeStompFrame(frame); err != nil {
		client.subscriptions.remove(sub.Id)
		return "", err
	}
	return sub.Id, nil
}

//Unsubscribe takes the id of a subscription and removes that subscriber so it
//will no longer receive messages. The id does not have to be one this client
//is tracking
func (client *Client) Unsubscribe(id string, headers *StompHeaders, receipt *Receipt) error {
	unSub := client.headersFactory.unSubscribeHeaders(id, headers)
	unSub, err := client.handleReceipt(unSub, receipt)
	if err != nil {
		return err
	}
	client.subscriptions.remove(id)
	frame := NewFrame(_COMMAND_UNSUBSCRIBE, unSub, _NULLBUFF)
	return client.writeStompFrame(frame)
}

//Acknowledge receipt of a message with stomp server. The frame's ack header
//identifies the acknowledgement, falling back to message-id
func (client *Client) Ack(msg Frame) error {
	id, err := ackId(msg)
	if err != nil {
		return err
	}
	frame := NewFrame(_COMMAND_ACK, client.headersFactory.ackHeaders(id), _NULLBUFF)
	return client.writeStompFrame(frame)
}

//Dont acknowledge the message and let the server know so it can decide what to do with it
func (client *Client) Nack(msg Frame) error {
	id, err := ackId(msg)
	if err != nil {
		return err
	}
	frame := NewFrame(_COMMAND_NACK, client.headersFactory.ackHeaders(id), _NULLBUFF)
	return client.writeStompFrame(frame)
}

func ackId(msg Frame) (string, error) {
	if id := msg.Headers.Get("ack"); "" != id {
		return id, nil
	}
	if id := msg.Headers.Get("message-id"); "" != id {
		return id, nil
	}
	return "", ClientError("cannot ack message without ack or message-id header")
}

//Begin a transaction with the stomp server
func (client *Client) Begin(transId string, addedHeaders *StompHeaders, receipt *Receipt) error {
	return client.writeTransactionFrame(_COMMAND_TRANSACTION_BEGIN, transId, addedHeaders, receipt)
}

//Abort a transaction with the stomp server
func (client *Client) Abort(transId string, addedHeaders *StompHeaders, receipt *Receipt) error {
	return client.writeTransactionFrame(_COMMAND_TRANSACTION_ABORT, transId, addedHeaders, receipt)
}

//Commit a transaction with the stomp server
func (client *Client) Commit(transId string, addedHeaders *StompHeaders, receipt *Receipt) error {
	return client.writeTransactionFrame(_COMMAND_TRANSACTION_COMMIT, transId, addedHeaders, receipt)
}

func (client *Client) writeTransactionFrame(command []byte, transId string, addedHeaders *StompHeaders, receipt *Receipt) error {
	headers := client.headersFactory.transactionHeaders(transId, addedHeaders)
	headers, err := client.handleReceipt(headers, receipt)
	if err != nil {
		return err
	}
	return client.writeStompFrame(NewFrame(command, headers, _NULLBUFF))
}

//writeStompFrame encodes and writes a frame, surfaces the raw bytes as a send
//event and rearms the outgoing heart-beat, real traffic counts as a beat
func (client *Client) writeStompFrame(frame Frame) error {
	if nil == client.conn {
		return ClientError("cannot write frame, client is not connected")
	}
	client.writeLock.Lock()
	raw, err := writeFrame(client.conn, frame, client.encoderDecoder)
	client.writeLock.Unlock()
	if err != nil {
		return err
	}
	client.events.emitSendFrame(raw)
	if nil != client.hb {
		client.hb.resetSend()
	}
	return nil
}

//handleReceipt wires a receipt into the headers of an outgoing frame. A caller
//supplied receipt header is used as the id, otherwise one is generated
func (client *Client) handleReceipt(headers *StompHeaders, receipt *Receipt) (*StompHeaders, error) {
	if nil == receipt {
		return headers, nil
	}
	receiptId, ok := headers.Contains("receipt")
	if !ok {
		receiptId = "message-" + strconv.Itoa(client.stats.Increment())
		headers.Set("receipt", receiptId)
	}
	if err := client.awaiting.Add(receiptId, receipt); err != nil {
		return headers, err
	}
	return headers, nil
}

func versionSupported(version string) error {
	for _, v := range Supported {
		if v == version {
			return nil
		}
	}
	return VersionError("unsupported version " + version)
}

func versionCheck(f Frame) error {
	version := f.Headers.Get("version")
	if err := versionSupported(version); err != nil {
		return err
	}
	return nil
}
