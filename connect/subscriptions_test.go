package connect

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"bringyour.com/railway/protocol"
)

func TestSubscriptionsAdd(t *testing.T) {
	subscriptions := NewSubscriptions()

	err := subscriptions.Add(protocol.VerbSet, protocol.ResourceTrain, func(payload []byte) {})
	assert.Equal(t, err, nil)

	err = subscriptions.Add(protocol.VerbSet, protocol.ResourceTrain, func(payload []byte) {})
	assert.Equal(t, errors.Is(err, ErrDuplicateSubscription), true)

	err = subscriptions.Add(protocol.VerbInsert, protocol.ResourceTrain, func(payload []byte) {})
	assert.Equal(t, errors.Is(err, ErrNotSubscribeVerb), true)

	assert.Equal(t, subscriptions.Keys(), []protocol.Key{protocol.NewKey(protocol.VerbSet, protocol.ResourceTrain)})
}

func TestSubscriptionsRequire(t *testing.T) {
	subscriptions := NewSubscriptions()
	subscriptions.Add(protocol.VerbSet, protocol.ResourceTrain, func(payload []byte) {})

	err := subscriptions.Require(
		protocol.NewKey(protocol.VerbSet, protocol.ResourceTrain),
		protocol.NewKey(protocol.VerbServerDelete, protocol.ResourceSignal),
	)
	assert.Equal(t, errors.Is(err, ErrMissingSubscription), true)
	assert.Equal(t, err.Error(), "Subscription missing. (SERVER_DELETE:SIGNAL)")

	err = subscriptions.Require(protocol.NewKey(protocol.VerbSet, protocol.ResourceTrain))
	assert.Equal(t, err, nil)
}

func TestTypedHandler(t *testing.T) {
	key := protocol.NewKey(protocol.VerbServerInsert, protocol.ResourceStretch)

	stretches := []*protocol.Stretch{}
	handler := TypedHandler[protocol.Stretch](key, func(stretch *protocol.Stretch) {
		stretches = append(stretches, stretch)
	})

	handler([]byte(`{"id":2,"name":"north","type":1}`))
	// not a record
	handler([]byte(`north`))

	assert.Equal(t, len(stretches), 1)
	assert.Equal(t, *stretches[0], protocol.Stretch{Id: 2, Name: "north", Type: protocol.StretchTypeOneWaySingleTrack})
}

func TestInstall(t *testing.T) {
	ctx, cancel := contextWithTestTimeout()
	defer cancel()

	session, transport := newTestSession(ctx, CallKeyQueue)
	defer session.Close()

	payloads := []string{}
	subscriptions := NewSubscriptions()
	subscriptions.Add(protocol.VerbServerDelete, protocol.ResourceTrain, func(payload []byte) {
		payloads = append(payloads, string(payload))
	})
	assert.Equal(t, session.Install(subscriptions), nil)

	transport.push(`SERVER_DELETE:TRAIN${"id":1}`)
	flush(t, session, transport)
	assert.Equal(t, payloads, []string{`{"id":1}`})
}
