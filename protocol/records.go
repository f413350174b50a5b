package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// records mirrored from the controller. Field names follow the server json.

const MaxNameLength = 50
const MaxSpeed = 255

var ErrNotValid = errors.New("Data not valid.")

func notValid(format string, a ...any) error {
	return fmt.Errorf("%w %s", ErrNotValid, fmt.Sprintf(format, a...))
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return notValid("name is required")
	}
	if MaxNameLength < n {
		return notValid("name is longer than %d characters", MaxNameLength)
	}
	return nil
}

type SignalAspect uint8

const (
	SignalAspectClear SignalAspect = iota
	SignalAspectPreliminaryCaution
	SignalAspectCaution
	SignalAspectDanger
)

func (self SignalAspect) String() string {
	switch self {
	case SignalAspectClear:
		return "clear"
	case SignalAspectPreliminaryCaution:
		return "preliminary-caution"
	case SignalAspectCaution:
		return "caution"
	case SignalAspectDanger:
		return "danger"
	default:
		return ""
	}
}

type SpeedLimit uint8

const (
	SpeedLimitSlow SpeedLimit = iota
	SpeedLimitHalf
	SpeedLimitFast
)

func (self SpeedLimit) String() string {
	switch self {
	case SpeedLimitSlow:
		return "slow"
	case SpeedLimitHalf:
		return "half"
	case SpeedLimitFast:
		return "fast"
	default:
		return ""
	}
}

type StretchType uint8

const (
	StretchTypeUnknown StretchType = iota
	StretchTypeOneWaySingleTrack
	// first invalid value. New types go before this.
	stretchTypeEnd
)

func (self StretchType) String() string {
	switch self {
	case StretchTypeOneWaySingleTrack:
		return "one-way-single-track"
	default:
		return ""
	}
}

func (self StretchType) IsValid() bool {
	return StretchTypeUnknown < self && self < stretchTypeEnd
}

// comparable
// Signal sequence numbers are only unique within a stretch, so all
// cross references use the pair.
type SignalId struct {
	StretchId int `json:"stretchId"`
	Id        int `json:"id"`
}

func NewSignalId(stretchId int, id int) SignalId {
	return SignalId{
		StretchId: stretchId,
		Id:        id,
	}
}

func (self SignalId) Validate() error {
	if self.StretchId <= 0 || self.Id <= 0 {
		return notValid("signal id %s", self)
	}
	return nil
}

func (self SignalId) Compare(b SignalId) int {
	if self.StretchId != b.StretchId {
		if self.StretchId < b.StretchId {
			return -1
		}
		return 1
	}
	if self.Id < b.Id {
		return -1
	} else if b.Id < self.Id {
		return 1
	}
	return 0
}

func (self SignalId) String() string {
	return strconv.Itoa(self.StretchId) + ";" + strconv.Itoa(self.Id)
}

type Train struct {
	Id                     int           `json:"id"`
	Name                   string        `json:"name"`
	SpeedSlow              int           `json:"speedSlow"`
	SpeedHalf              int           `json:"speedHalf"`
	SpeedFast              int           `json:"speedFast"`
	AccessKey              uint32        `json:"accessKey"`
	Online                 bool          `json:"online"`
	LastSignal             *Signal       `json:"lastSignal"`
	LastSignalPassedAspect *SignalAspect `json:"lastSignalPassedAspect"`
	Started                bool          `json:"started"`
	StopAtSignal           bool          `json:"stopAtSignal"`
	SignalToStopAt         *Signal       `json:"signalToStopAt"`
}

// checked before a create or update is sent
func (self *Train) Validate() error {
	if err := validateName(self.Name); err != nil {
		return err
	}
	if self.SpeedSlow < 1 {
		return notValid("slow speed must be at least 1")
	}
	if self.SpeedHalf <= self.SpeedSlow {
		return notValid("half speed must be greater than slow speed")
	}
	if self.SpeedFast <= self.SpeedHalf {
		return notValid("fast speed must be greater than half speed")
	}
	if MaxSpeed < self.SpeedFast {
		return notValid("fast speed must be at most %d", MaxSpeed)
	}
	return nil
}

func (self *Train) LastSignalId() *SignalId {
	if self.LastSignal == nil {
		return nil
	}
	signalId := self.LastSignal.SignalId()
	return &signalId
}

func (self *Train) SignalToStopAtId() *SignalId {
	if self.SignalToStopAt == nil {
		return nil
	}
	signalId := self.SignalToStopAt.SignalId()
	return &signalId
}

type Stretch struct {
	Id   int         `json:"id"`
	Name string      `json:"name"`
	Type StretchType `json:"type"`
}

func (self *Stretch) Validate() error {
	if err := validateName(self.Name); err != nil {
		return err
	}
	if !self.Type.IsValid() {
		return notValid("stretch type %d", self.Type)
	}
	return nil
}

type Signal struct {
	StretchId  int        `json:"stretchId"`
	Id         int        `json:"id"`
	Name       string     `json:"name"`
	SpeedLimit SpeedLimit `json:"speedLimit"`
	Switch     bool       `json:"switch"`
	// only when switch. true diverges one to two, false converges two to one
	Splitter          *bool `json:"splitter"`
	StretchDetourId   *int  `json:"stretchDetourId"`
	SignalDetourId    *int  `json:"signalDetourId"`
	LoopsBack         bool  `json:"loopsBack"`
	StretchLoopBackId *int  `json:"stretchLoopBackId"`
	SignalLoopBackId  *int  `json:"signalLoopBackId"`
	// true is the passthrough route, false the detour
	Passthrough        bool         `json:"passthrough"`
	QueuedForSwitching bool         `json:"queuedForSwitching"`
	CurrentlySwitching bool         `json:"currentlySwitching"`
	SwitchFailure      bool         `json:"switchFailure"`
	Aspect             SignalAspect `json:"aspect"`
	ForceRed           bool         `json:"forceRed"`
}

func (self *Signal) SignalId() SignalId {
	return NewSignalId(self.StretchId, self.Id)
}

func (self *Signal) DetourId() *SignalId {
	if !self.Switch || self.StretchDetourId == nil || self.SignalDetourId == nil {
		return nil
	}
	signalId := NewSignalId(*self.StretchDetourId, *self.SignalDetourId)
	return &signalId
}

func (self *Signal) LoopBackId() *SignalId {
	if !self.LoopsBack || self.StretchLoopBackId == nil || self.SignalLoopBackId == nil {
		return nil
	}
	signalId := NewSignalId(*self.StretchLoopBackId, *self.SignalLoopBackId)
	return &signalId
}

func (self *Signal) Validate() error {
	if self.StretchId <= 0 {
		return notValid("signal must belong to a stretch")
	}
	if err := validateName(self.Name); err != nil {
		return err
	}
	if SpeedLimitFast < self.SpeedLimit {
		return notValid("speed limit %d", self.SpeedLimit)
	}
	if self.Switch && self.LoopsBack {
		return notValid("a switch cannot loop back")
	}
	if self.Switch {
		if self.Splitter == nil {
			return notValid("a switch must be a splitter or a merger")
		}
		if self.StretchDetourId == nil || self.SignalDetourId == nil {
			return notValid("a switch must have a detour signal")
		}
	}
	if self.LoopsBack {
		loopBackId := self.LoopBackId()
		if loopBackId == nil {
			return notValid("a loop back must have a target signal")
		}
		if *loopBackId == self.SignalId() {
			return notValid("a signal cannot loop back to itself")
		}
	}
	return nil
}

type ManuallyJumpStartTrain struct {
	TrainId   int `json:"trainID"`
	StretchId int `json:"stretchId"`
	SignalId  int `json:"signalId"`
}

type ManuallyStopTrainAtSignal struct {
	TrainId   int `json:"trainID"`
	StretchId int `json:"stretchId"`
	SignalId  int `json:"signalId"`
}

type EventLogType int16

const (
	EventLogTypeUnknown EventLogType = iota
	EventLogTypeStart
	EventLogTypeJumpStartTrain
	EventLogTypeRequestStopTrain
	EventLogTypeTrainReedSwitchTriggered
	EventLogTypeTrainPassClearSignal
	EventLogTypeTrainPassPreliminaryCautionSignal
	EventLogTypeTrainPassCautionSignal
	EventLogTypeTrainStopAtDangerSignal
	EventLogTypeSignalLocked
	EventLogTypeSignalUnlocked
	EventLogTypeSwitchQueuedForSwitching
	EventLogTypeSwitchStartedSwitching
	EventLogTypeSwitchSuccessfullySwitched
	EventLogTypeSwitchFailedSwitching
)

var eventLogTypeNames = map[EventLogType]string{
	EventLogTypeStart:                             "start",
	EventLogTypeJumpStartTrain:                    "jump-start-train",
	EventLogTypeRequestStopTrain:                  "request-stop-train",
	EventLogTypeTrainReedSwitchTriggered:          "train-reed-switch-triggered",
	EventLogTypeTrainPassClearSignal:              "train-pass-clear-signal",
	EventLogTypeTrainPassPreliminaryCautionSignal: "train-pass-preliminary-caution-signal",
	EventLogTypeTrainPassCautionSignal:            "train-pass-caution-signal",
	EventLogTypeTrainStopAtDangerSignal:           "train-stop-at-danger-signal",
	EventLogTypeSignalLocked:                      "signal-locked",
	EventLogTypeSignalUnlocked:                    "signal-unlocked",
	EventLogTypeSwitchQueuedForSwitching:          "switch-queued-for-switching",
	EventLogTypeSwitchStartedSwitching:            "switch-started-switching",
	EventLogTypeSwitchSuccessfullySwitched:        "switch-successfully-switched",
	EventLogTypeSwitchFailedSwitching:             "switch-failed-switching",
}

func (self EventLogType) String() string {
	if name, ok := eventLogTypeNames[self]; ok {
		return name
	}
	return "unknown"
}

func ParseEventLogType(name string) (EventLogType, error) {
	for eventLogType, eventLogTypeName := range eventLogTypeNames {
		if eventLogTypeName == name {
			return eventLogType, nil
		}
	}
	return EventLogTypeUnknown, fmt.Errorf("Unknown event log type: %s", name)
}

type EventLog struct {
	Id      int          `json:"id"`
	Time    time.Time    `json:"time"`
	Type    EventLogType `json:"type"`
	Details string       `json:"details"`
}

type EventLogQuery struct {
	TimeStart *time.Time    `json:"timeStart"`
	TimeEnd   *time.Time    `json:"timeEnd"`
	Type      *EventLogType `json:"type"`
}

var ErrBadSignalId = errors.New("Signal id must be stretchId;id.")

// parses the `stretchId;id` form of `SignalId.String`
func ParseSignalId(signalIdStr string) (SignalId, error) {
	stretchIdStr, idStr, ok := strings.Cut(signalIdStr, ";")
	if !ok {
		return SignalId{}, ErrBadSignalId
	}
	stretchId, err := strconv.Atoi(strings.TrimSpace(stretchIdStr))
	if err != nil {
		return SignalId{}, fmt.Errorf("%w (%s)", ErrBadSignalId, signalIdStr)
	}
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil {
		return SignalId{}, fmt.Errorf("%w (%s)", ErrBadSignalId, signalIdStr)
	}
	return NewSignalId(stretchId, id), nil
}
