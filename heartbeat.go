package stompev

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//extra slack on top of the negotiated window before the peer is declared gone,
//covers timer jitter and network latency
const heartBeatGrace = 1 * time.Second

var heartBeatRegexp = regexp.MustCompile(`^[0-9]+,[0-9]+$`)

//parseHeartBeat parses a heart-beat header value "x,y" into the send and
//receive cadences it declares
func parseHeartBeat(value string) (send time.Duration, receive time.Duration, err error) {
	if !heartBeatRegexp.MatchString(value) {
		return 0, 0, errors.New("malformed heart-beat value " + value)
	}
	parts := strings.Split(value, ",")
	sx, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "malformed heart-beat value")
	}
	sy, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrap(err, "malformed heart-beat value")
	}
	return time.Duration(sx) * time.Millisecond, time.Duration(sy) * time.Millisecond, nil
}

//negotiateHeartBeat derives the intervals actually enforced from what we
//offered and what the server advertised in CONNECTED. A zero on either side of
//a direction opts that direction out entirely, otherwise the slower of the two
//cadences wins
func negotiateHeartBeat(clientSend, clientReceive, serverSend, serverReceive time.Duration) (send time.Duration, receive time.Duration) {
	if clientSend != 0 && serverReceive != 0 {
		send = clientSend
		if serverReceive > send {
			send = serverReceive
		}
	}
	if serverSend != 0 && clientReceive != 0 {
		receive = serverSend
		if clientReceive > receive {
			receive = clientReceive
		}
	}
	return send, receive
}

//heartBeater keeps both liveness timers for a connection. The send timer fires
//a beat write on idle output, the receive timer declares the connection dead on
//idle input. Each is a one shot timer rearmed after every observed activity so
//only one of each is ever pending
type heartBeater struct {
	sync.Mutex
	sendInterval    time.Duration
	receiveInterval time.Duration
	sendBeat        func()
	onStale         func()
	grace           time.Duration
	sendTimer       *time.Timer
	receiveTimer    *time.Timer
	stopped         bool
	log             *logrus.Entry
}

func newHeartBeater(send, receive time.Duration, sendBeat func(), onStale func(), log *logrus.Entry) *heartBeater {
	return &heartBeater{
		sendInterval:    send,
		receiveInterval: receive,
		sendBeat:        sendBeat,
		onStale:         onStale,
		grace:           heartBeatGrace,
		log:             log,
	}
}

func (hb *heartBeater) start() {
	hb.Lock()
	defer hb.Unlock()
	if hb.stopped {
		return
	}
	hb.armSend()
	hb.armReceive()
	if hb.sendInterval != 0 || hb.receiveInterval != 0 {
		hb.log.WithFields(logrus.Fields{
			"send":    hb.sendInterval,
			"receive": hb.receiveInterval,
		}).Debug("heart-beating started")
	}
}

//resetSend rearms the outgoing timer. Called after every frame write as real
//traffic counts as a beat
func (hb *heartBeater) resetSend() {
	hb.Lock()
	defer hb.Unlock()
	if hb.stopped {
		return
	}
	if hb.sendTimer != nil {
		hb.sendTimer.Stop()
	}
	hb.armSend()
}

//resetReceive rearms the incoming timer. Called on every frame or beat read
func (hb *heartBeater) resetReceive() {
	hb.Lock()
	defer hb.Unlock()
	if hb.stopped {
		return
	}
	if hb.receiveTimer != nil {
		hb.receiveTimer.Stop()
	}
	hb.armReceive()
}

//stop cancels both timers. Must be called on teardown so no beat is written to
//a closed socket. Safe to call more than once
func (hb *heartBeater) stop() {
	hb.Lock()
	defer hb.Unlock()
	hb.stopped = true
	if hb.sendTimer != nil {
		hb.sendTimer.Stop()
		hb.sendTimer = nil
	}
	if hb.receiveTimer != nil {
		hb.receiveTimer.Stop()
		hb.receiveTimer = nil
	}
}

func (hb *heartBeater) armSend() {
	if hb.sendInterval == 0 {
		return
	}
	hb.sendTimer = time.AfterFunc(hb.sendInterval, func() {
		hb.sendBeat()
		hb.resetSend()
	})
}

func (hb *heartBeater) armReceive() {
	if hb.receiveInterval == 0 {
		return
	}
	hb.receiveTimer = time.AfterFunc(hb.receiveInterval+hb.grace, func() {
		hb.log.WithField("window", hb.receiveInterval+hb.grace).Warn("no server activity inside heart-beat window")
		hb.onStale()
	})
}
