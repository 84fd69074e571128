package stompev

import (
	"sync"
	"time"
)

//Receipt lets a caller wait on the broker acknowledging a frame it asked a
//receipt for. Received gets true when the RECEIPT arrives, false when the
//timeout fires first
type Receipt struct {
	Received        chan bool
	receiptReceived chan bool
	Timeout         time.Duration
}

func NewReceipt(timeout time.Duration) *Receipt {
	return &Receipt{make(chan bool, 1), make(chan bool, 1), timeout}
}

//receipts tracks the receipt ids a client is still waiting on. Each client
//owns its own set so two clients never collide on an id
type receipts struct {
	sync.RWMutex
	receipts map[string]*Receipt
}

func newReceipts() *receipts {
	return &receipts{receipts: make(map[string]*Receipt)}
}

//Add registers the pending receipt and starts the watcher that resolves it,
//forwarding the broker acknowledgement or timing out
func (r *receipts) Add(id string, rec *Receipt) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.receipts[id]; ok {
		return ClientError("already a receipt with that id " + id)
	}
	r.receipts[id] = rec
	go func(receipt *Receipt, id string) {
		//channels are buffered and left to the collector, closing them would
		//race a RECEIPT that lands just as the timeout fires
		defer r.Remove(id)
		select {
		case <-receipt.receiptReceived:
			receipt.Received <- true
		case <-time.After(receipt.Timeout):
			receipt.Received <- false
		}
	}(rec, id)
	return nil
}

func (r *receipts) Remove(id string) {
	r.Lock()
	defer r.Unlock()
	delete(r.receipts, id)
}

func (r *receipts) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.receipts)
}

func (r *receipts) Get(id string) *Receipt {
	r.RLock()
	defer r.RUnlock()
	return r.receipts[id]
}

//fulfil resolves a pending receipt by id. A RECEIPT nobody is waiting on is
//not an error, the broker may answer after the timeout already fired
func (r *receipts) fulfil(id string) {
	if rec := r.Get(id); nil != rec {
		select {
		case rec.receiptReceived <- true:
		default:
		}
	}
}
