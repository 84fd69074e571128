package stompev

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptions_oneSubscriptionPerDestination(t *testing.T) {
	subs := newSubscriptions()
	first, err := newSubscription("/test/test", func(f Frame) {}, nil)
	assert.NoError(t, err, "did not expect an error creating a subscription")
	second, err := newSubscription("/test/test", func(f Frame) {}, nil)
	assert.NoError(t, err)

	added, created := subs.add(first)
	assert.True(t, created, "expected the first subscription to be recorded")
	assert.Equal(t, first.Id, added.Id)

	added, created = subs.add(second)
	assert.False(t, created, "a destination is tracked at most once")
	assert.Equal(t, first.Id, added.Id, "the existing subscription is returned")
}

func TestSubscriptions_removeFreesDestination(t *testing.T) {
	subs := newSubscriptions()
	sub, err := newSubscription("/test/test", func(f Frame) {}, nil)
	assert.NoError(t, err)
	_, created := subs.add(sub)
	assert.True(t, created)

	subs.remove(sub.Id)
	_, ok := subs.get("/test/test")
	assert.False(t, ok, "the destination should be free again after remove")

	_, created = subs.add(sub)
	assert.True(t, created, "the destination can be subscribed again")
}

func TestSubscriptions_forwardByHeader(t *testing.T) {
	subs := newSubscriptions()
	got := make(chan Frame, 1)
	sub, err := newSubscription("/test/test", func(f Frame) { got <- f }, nil)
	assert.NoError(t, err)
	subs.add(sub)

	headers := NewStompHeaders()
	headers.Add("subscription", sub.Id)
	subs.forward(Frame{Command: _COMMAND_SEND, Headers: headers, Body: []byte("hello")})

	select {
	case f := <-got:
		assert.Equal(t, "hello", string(f.Body))
	case <-time.After(time.Second):
		t.Fatal("expected the subscription handler to be called")
	}
}

func TestSubscriptions_forwardUnknownIdDropped(t *testing.T) {
	subs := newSubscriptions()
	got := make(chan Frame, 1)
	sub, err := newSubscription("/test/test", func(f Frame) { got <- f }, nil)
	assert.NoError(t, err)
	subs.add(sub)

	headers := NewStompHeaders()
	headers.Add("subscription", "someone-else")
	subs.forward(Frame{Command: _COMMAND_SEND, Headers: headers, Body: []byte("hello")})

	select {
	case <-got:
		t.Fatal("frame for an unknown subscription must not reach this handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewSubscription_idFromHeaders(t *testing.T) {
	headers := NewStompHeaders()
	headers.Add("id", "my-id")
	sub, err := newSubscription("/test/test", nil, headers)
	assert.NoError(t, err)
	assert.Equal(t, "my-id", sub.Id, "a caller chosen id is kept")

	sub, err = newSubscription("/test/test", nil, nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, sub.Id, "an id is generated when none is given")
}
