package protocol

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`SERVER_UPDATE:SIGNAL${"stretchId":2,"id":5}`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Verb, VerbServerUpdate)
	assert.Equal(t, frame.Resource, ResourceSignal)
	assert.Equal(t, string(frame.Payload), `{"stretchId":2,"id":5}`)
	assert.Equal(t, frame.Key(), NewKey(VerbServerUpdate, ResourceSignal))
	assert.Equal(t, frame.Key().String(), "SERVER_UPDATE:SIGNAL")
}

func TestDecodeFramePayloadDelimiter(t *testing.T) {
	// only the first `$` is significant
	frame, err := DecodeFrame([]byte(`INSERT:TRAIN${"name":"a$b"}$`))
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Key(), NewKey(VerbInsert, ResourceTrain))
	assert.Equal(t, string(frame.Payload), `{"name":"a$b"}$`)

	frame, err = DecodeFrame([]byte(`GET:TRAIN$`))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(frame.Payload), 0)
}

func TestDecodeFrameMalformed(t *testing.T) {
	_, err := DecodeFrame([]byte(`true`))
	assert.Equal(t, errors.Is(err, ErrMissingHeader), true)

	_, err = DecodeFrame([]byte(`$GET:TRAIN`))
	assert.Equal(t, errors.Is(err, ErrMissingHeader), true)

	_, err = DecodeFrame([]byte{})
	assert.Equal(t, errors.Is(err, ErrMissingHeader), true)

	_, err = DecodeFrame([]byte(`GET$[]`))
	assert.Equal(t, errors.Is(err, ErrBadHeader), true)

	_, err = DecodeFrame([]byte(`GET:TRAIN:X$[]`))
	assert.Equal(t, errors.Is(err, ErrBadHeader), true)

	_, err = DecodeFrame([]byte(`NAME:TRAIN$x`))
	assert.Equal(t, errors.Is(err, ErrUnknownVerb), true)
}

func TestEncodeFrame(t *testing.T) {
	b := EncodeFrame(&Frame{
		Verb:     VerbDelete,
		Resource: ResourceStretch,
		Payload:  []byte(`{"id":3}`),
	})
	assert.Equal(t, string(b), `DELETE:STRETCH${"id":3}`)

	frame, err := DecodeFrame(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Key(), NewKey(VerbDelete, ResourceStretch))
	assert.Equal(t, string(frame.Payload), `{"id":3}`)
}

func TestVerbDirection(t *testing.T) {
	for _, verb := range []Verb{VerbGet, VerbInsert, VerbUpdate, VerbDelete, VerbAction} {
		direction, ok := verb.Direction()
		assert.Equal(t, ok, true)
		assert.Equal(t, direction, DirectionClient)
		assert.Equal(t, verb.IsClient(), true)
		assert.Equal(t, verb.IsServer(), false)
	}
	for _, verb := range []Verb{VerbSet, VerbServerInsert, VerbServerUpdate, VerbServerDelete} {
		direction, ok := verb.Direction()
		assert.Equal(t, ok, true)
		assert.Equal(t, direction, DirectionServer)
		assert.Equal(t, verb.IsClient(), false)
		assert.Equal(t, verb.IsServer(), true)
	}

	_, ok := Verb("SEARCH").Direction()
	assert.Equal(t, ok, false)
	assert.Equal(t, Verb("SEARCH").IsClient(), false)
	assert.Equal(t, Verb("SEARCH").IsServer(), false)
}
