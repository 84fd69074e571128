package stompev

import (
	"sync"

	"github.com/nu7hatch/gouuid"
)

//the subscription handler type defines the function signature that should be passed when subscribing to destinations
type SubscriptionHandler func(Frame)

type subscription struct {
	Id           string
	Destination  string
	Handler      SubscriptionHandler
	AddedHeaders *StompHeaders
}

//newSubscription builds a subscription for a destination. The id is taken from
//the added headers when the caller picked one, otherwise a fresh uuid is used
func newSubscription(destination string, handler SubscriptionHandler, headers *StompHeaders) (subscription, error) {
	sub := subscription{}
	subId := ""
	if nil != headers {
		subId = headers.Get("id")
	}
	if "" == subId {
		id, err := uuid.NewV4()
		if nil != err {
			return sub, err
		}
		subId = id.String()
	}
	sub.Id = subId
	sub.Destination = destination
	sub.Handler = handler
	sub.AddedHeaders = headers
	return sub, nil
}

//lockable registry mapping destinations and subscription ids to their handlers.
//A destination is tracked at most once, repeat subscribes are answered with the
//existing subscription
type subscriptions struct {
	sync.Mutex
	byId   map[string]subscription
	byDest map[string]subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		byId:   make(map[string]subscription),
		byDest: make(map[string]subscription),
	}
}

//add records the subscription unless the destination is already tracked. The
//returned subscription is the one actually in the registry, created is false
//when an existing one was found
func (s *subscriptions) add(sub subscription) (subscription, bool) {
	s.Lock()
	defer s.Unlock()
	if existing, ok := s.byDest[sub.Destination]; ok {
		return existing, false
	}
	s.byId[sub.Id] = sub
	s.byDest[sub.Destination] = sub
	return sub, true
}

func (s *subscriptions) get(destination string) (subscription, bool) {
	s.Lock()
	defer s.Unlock()
	sub, ok := s.byDest[destination]
	return sub, ok
}

func (s *subscriptions) remove(subId string) {
	s.Lock()
	defer s.Unlock()
	if sub, ok := s.byId[subId]; ok {
		delete(s.byId, subId)
		delete(s.byDest, sub.Destination)
	}
}

//forward hands a MESSAGE frame to the handler of the subscription named in its
//subscription header. Frames for unknown subscriptions are dropped here, the
//global message event still sees them
func (s *subscriptions) forward(f Frame) {
	id := f.Headers.Get("subscription")
	s.Lock()
	sub, ok := s.byId[id]
	s.Unlock()
	if ok && nil != sub.Handler {
		go sub.Handler(f)
	}
}
