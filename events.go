package stompev

import "sync"

//Handler signatures for the events a client emits. Each event carries a typed
//payload rather than a loose argument list so listeners get exactly the shape
//the protocol produced
type SendFrameHandler func(raw []byte)
type ConnectedHandler func(headers *StompHeaders)
type MessageHandler func(msg Frame)
type ReceiptHandler func(receipt Frame)
type ErrorHandler func(errFrame Frame)
type DisconnectedHandler func()

//eventDispatcher fans client events out to registered listeners. Emission
//snapshots the listener list under the lock so a handler can register further
//handlers without deadlocking
type eventDispatcher struct {
	sync.Mutex
	sendFrame    []SendFrameHandler
	connected    []ConnectedHandler
	message      []MessageHandler
	receipt      []ReceiptHandler
	errs         []ErrorHandler
	disconnected []DisconnectedHandler
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{}
}

func (d *eventDispatcher) emitSendFrame(raw []byte) {
	d.Lock()
	handlers := append([]SendFrameHandler{}, d.sendFrame...)
	d.Unlock()
	for _, h := range handlers {
		h(raw)
	}
}

func (d *eventDispatcher) emitConnected(headers *StompHeaders) {
	d.Lock()
	handlers := append([]ConnectedHandler{}, d.connected...)
	d.Unlock()
	for _, h := range handlers {
		h(headers)
	}
}

func (d *eventDispatcher) emitMessage(msg Frame) {
	d.Lock()
	handlers := append([]MessageHandler{}, d.message...)
	d.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (d *eventDispatcher) emitReceipt(receipt Frame) {
	d.Lock()
	handlers := append([]ReceiptHandler{}, d.receipt...)
	d.Unlock()
	for _, h := range handlers {
		h(receipt)
	}
}

func (d *eventDispatcher) emitError(errFrame Frame) {
	d.Lock()
	handlers := append([]ErrorHandler{}, d.errs...)
	d.Unlock()
	for _, h := range handlers {
		h(errFrame)
	}
}

func (d *eventDispatcher) emitDisconnected() {
	d.Lock()
	handlers := append([]DisconnectedHandler{}, d.disconnected...)
	d.Unlock()
	for _, h := range handlers {
		h()
	}
}

//OnSendFrame registers a listener for the raw bytes of every outbound frame
func (client *Client) OnSendFrame(handler SendFrameHandler) {
	client.events.Lock()
	client.events.sendFrame = append(client.events.sendFrame, handler)
	client.events.Unlock()
}

//OnConnected registers a listener for the headers of the CONNECTED frame
func (client *Client) OnConnected(handler ConnectedHandler) {
	client.events.Lock()
	client.events.connected = append(client.events.connected, handler)
	client.events.Unlock()
}

//OnMessage registers a listener for every MESSAGE frame, regardless of which
//subscription it belongs to
func (client *Client) OnMessage(handler MessageHandler) {
	client.events.Lock()
	client.events.message = append(client.events.message, handler)
	client.events.Unlock()
}

//OnReceipt registers a listener for RECEIPT frames
func (client *Client) OnReceipt(handler ReceiptHandler) {
	client.events.Lock()
	client.events.receipt = append(client.events.receipt, handler)
	client.events.Unlock()
}

//OnError registers a listener for ERROR frames sent by the broker. These are
//broker faults, not local ones, and do not tear the connection down
func (client *Client) OnError(handler ErrorHandler) {
	client.events.Lock()
	client.events.errs = append(client.events.errs, handler)
	client.events.Unlock()
}

//OnDisconnected registers a listener fired exactly once when the connection
//reaches its terminal state, whether by explicit disconnect, a transport fault
//or a missed heart-beat window
func (client *Client) OnDisconnected(handler DisconnectedHandler) {
	client.events.Lock()
	client.events.disconnected = append(client.events.disconnected, handler)
	client.events.Unlock()
}
