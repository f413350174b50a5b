package connect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"bringyour.com/railway/protocol"
)

var ErrBadReply = errors.New("Reply could not be decoded.")

// encodes an entity record into a frame for the resource of its type
func ToFrame(verb protocol.Verb, record any) (*protocol.Frame, error) {
	var resource protocol.Resource
	switch v := record.(type) {
	case *protocol.Train, protocol.Train:
		resource = protocol.ResourceTrain
	case *protocol.Stretch, protocol.Stretch:
		resource = protocol.ResourceStretch
	case *protocol.Signal, protocol.Signal:
		resource = protocol.ResourceSignal
	case *protocol.ManuallyJumpStartTrain:
		resource = protocol.ResourceManuallyJumpStartTrain
	case *protocol.ManuallyStopTrainAtSignal:
		resource = protocol.ResourceManuallyStopTrainAtSignal
	case *protocol.EventLogQuery:
		resource = protocol.ResourceEventLog
	default:
		return nil, fmt.Errorf("Unknown record: %T", v)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return &protocol.Frame{
		Verb:     verb,
		Resource: resource,
		Payload:  payload,
	}, nil
}

// A reply payload is one of
// - empty: the request was accepted
// - `true` or `false`: accepted or rejected
// - a result envelope, recognized by its `ok` field
// - the record or list the request produced, which implies success
// The record is nil unless the reply carried one.
func ResultFromReply[R any](payload []byte) (*protocol.Result, *R, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return protocol.OkResult(), nil, nil
	}
	switch string(trimmed) {
	case "true":
		return protocol.OkResult(), nil, nil
	case "false":
		return &protocol.Result{
			Ok:           false,
			ErrorMessage: "Request was rejected.",
		}, nil, nil
	}

	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrBadReply, err)
		}
		if _, ok := fields["ok"]; ok {
			result := &protocol.Result{}
			if err := json.Unmarshal(trimmed, result); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrBadReply, err)
			}
			return result, nil, nil
		}
	}

	var record R
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrBadReply, err)
	}
	return protocol.OkResult(), &record, nil
}
