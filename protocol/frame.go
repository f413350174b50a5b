package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// frame := verb ":" resource "$" payload
// only the first `$` separates the header from the payload

const HeaderDelimiter = '$'
const HeaderSeparator = ':'

var ErrMissingHeader = errors.New("Frame has no header.")
var ErrBadHeader = errors.New("Frame header must be verb:resource.")
var ErrUnknownVerb = errors.New("Frame verb is unknown.")

type Direction int

const (
	// the client sends these and expects a reply with the same verb and resource
	DirectionClient Direction = iota
	// the server sends these unsolicited
	DirectionServer
)

func (self Direction) String() string {
	switch self {
	case DirectionClient:
		return "client"
	case DirectionServer:
		return "server"
	default:
		return fmt.Sprintf("Direction(%d)", int(self))
	}
}

type Verb string

const (
	VerbGet    Verb = "GET"
	VerbInsert Verb = "INSERT"
	VerbUpdate Verb = "UPDATE"
	VerbDelete Verb = "DELETE"
	VerbAction Verb = "ACTION"

	VerbSet          Verb = "SET"
	VerbServerInsert Verb = "SERVER_INSERT"
	VerbServerUpdate Verb = "SERVER_UPDATE"
	VerbServerDelete Verb = "SERVER_DELETE"
)

var verbDirections = map[Verb]Direction{
	VerbGet:    DirectionClient,
	VerbInsert: DirectionClient,
	VerbUpdate: DirectionClient,
	VerbDelete: DirectionClient,
	VerbAction: DirectionClient,

	VerbSet:          DirectionServer,
	VerbServerInsert: DirectionServer,
	VerbServerUpdate: DirectionServer,
	VerbServerDelete: DirectionServer,
}

func (self Verb) Direction() (Direction, bool) {
	direction, ok := verbDirections[self]
	return direction, ok
}

func (self Verb) IsClient() bool {
	direction, ok := self.Direction()
	return ok && direction == DirectionClient
}

func (self Verb) IsServer() bool {
	direction, ok := self.Direction()
	return ok && direction == DirectionServer
}

type Resource string

const (
	ResourceTrain    Resource = "TRAIN"
	ResourceStretch  Resource = "STRETCH"
	ResourceSignal   Resource = "SIGNAL"
	ResourceEventLog Resource = "EVENT_LOG"

	ResourceManuallyJumpStartTrain          Resource = "MANUALLY_JUMP_START_TRAIN"
	ResourceManuallyStopTrain               Resource = "MANUALLY_STOP_TRAIN"
	ResourceManuallyStopTrainAtSignal       Resource = "MANUALLY_STOP_TRAIN_AT_SIGNAL"
	ResourceManuallyCancelStopTrainAtSignal Resource = "MANUALLY_CANCEL_STOP_TRAIN_AT_SIGNAL"
	ResourceMoveSignalUp                    Resource = "MOVE_SIGNAL_UP"
	ResourceMoveSignalDown                  Resource = "MOVE_SIGNAL_DOWN"
	ResourceSwitchPassthrough               Resource = "SWITCH_PASSTHROUGH"
	ResourceSwitchDetour                    Resource = "SWITCH_DETOUR"
	ResourceForceRed                        Resource = "FORCE_RED"
	ResourceUnforceRed                      Resource = "UNFORCE_RED"
)

// comparable
type Key struct {
	Verb     Verb
	Resource Resource
}

func NewKey(verb Verb, resource Resource) Key {
	return Key{
		Verb:     verb,
		Resource: resource,
	}
}

func (self Key) String() string {
	return string(self.Verb) + string(HeaderSeparator) + string(self.Resource)
}

type Frame struct {
	Verb     Verb
	Resource Resource
	Payload  []byte
}

func (self *Frame) Key() Key {
	return NewKey(self.Verb, self.Resource)
}

func EncodeFrame(frame *Frame) []byte {
	var b bytes.Buffer
	b.Grow(len(frame.Verb) + len(frame.Resource) + len(frame.Payload) + 2)
	b.WriteString(string(frame.Verb))
	b.WriteByte(HeaderSeparator)
	b.WriteString(string(frame.Resource))
	b.WriteByte(HeaderDelimiter)
	b.Write(frame.Payload)
	return b.Bytes()
}

// the returned payload aliases `message`
func DecodeFrame(message []byte) (*Frame, error) {
	i := bytes.IndexByte(message, HeaderDelimiter)
	if i <= 0 {
		return nil, ErrMissingHeader
	}
	parts := bytes.Split(message[:i], []byte{HeaderSeparator})
	if len(parts) != 2 {
		return nil, ErrBadHeader
	}
	verb := Verb(parts[0])
	if _, ok := verb.Direction(); !ok {
		return nil, fmt.Errorf("%w (%s)", ErrUnknownVerb, parts[0])
	}
	return &Frame{
		Verb:     verb,
		Resource: Resource(parts[1]),
		Payload:  message[i+1:],
	}, nil
}
