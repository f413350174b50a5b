package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTrainValidate(t *testing.T) {
	train := &Train{
		Name:      "intercity",
		SpeedSlow: 1,
		SpeedHalf: 128,
		SpeedFast: 255,
	}
	assert.Equal(t, train.Validate(), nil)

	invalid := []Train{
		{Name: "", SpeedSlow: 1, SpeedHalf: 2, SpeedFast: 3},
		{Name: strings.Repeat("a", MaxNameLength+1), SpeedSlow: 1, SpeedHalf: 2, SpeedFast: 3},
		{Name: "a", SpeedSlow: 0, SpeedHalf: 2, SpeedFast: 3},
		{Name: "a", SpeedSlow: 2, SpeedHalf: 2, SpeedFast: 3},
		{Name: "a", SpeedSlow: 1, SpeedHalf: 3, SpeedFast: 3},
		{Name: "a", SpeedSlow: 1, SpeedHalf: 2, SpeedFast: 256},
	}
	for _, train := range invalid {
		err := train.Validate()
		assert.Equal(t, errors.Is(err, ErrNotValid), true)
	}

	// names are counted in characters
	train.Name = strings.Repeat("é", MaxNameLength)
	assert.Equal(t, train.Validate(), nil)
}

func TestStretchValidate(t *testing.T) {
	stretch := &Stretch{Name: "north loop", Type: StretchTypeOneWaySingleTrack}
	assert.Equal(t, stretch.Validate(), nil)

	stretch.Type = StretchTypeUnknown
	assert.Equal(t, errors.Is(stretch.Validate(), ErrNotValid), true)

	stretch.Type = StretchType(2)
	assert.Equal(t, errors.Is(stretch.Validate(), ErrNotValid), true)

	assert.Equal(t, StretchTypeOneWaySingleTrack.String(), "one-way-single-track")
	assert.Equal(t, StretchTypeUnknown.String(), "")
}

func TestSignalValidate(t *testing.T) {
	yes := true
	one := 1
	two := 2

	signal := &Signal{StretchId: 1, Id: 1, Name: "a1", SpeedLimit: SpeedLimitFast}
	assert.Equal(t, signal.Validate(), nil)
	assert.Equal(t, signal.DetourId(), nil)
	assert.Equal(t, signal.LoopBackId(), nil)

	signal.SpeedLimit = SpeedLimit(3)
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
	signal.SpeedLimit = SpeedLimitHalf

	// a switch needs the splitter flag and a detour target
	signal.Switch = true
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
	signal.Splitter = &yes
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
	signal.StretchDetourId = &two
	signal.SignalDetourId = &one
	assert.Equal(t, signal.Validate(), nil)
	assert.Equal(t, *signal.DetourId(), NewSignalId(2, 1))

	signal.LoopsBack = true
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)

	signal = &Signal{StretchId: 1, Id: 1, Name: "a1", LoopsBack: true}
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
	signal.StretchLoopBackId = &one
	signal.SignalLoopBackId = &one
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
	signal.SignalLoopBackId = &two
	assert.Equal(t, signal.Validate(), nil)
	assert.Equal(t, *signal.LoopBackId(), NewSignalId(1, 2))

	signal.StretchId = 0
	assert.Equal(t, errors.Is(signal.Validate(), ErrNotValid), true)
}

func TestSignalId(t *testing.T) {
	a := NewSignalId(1, 9)
	b := NewSignalId(2, 1)
	c := NewSignalId(2, 5)

	assert.Equal(t, a.Compare(b), -1)
	assert.Equal(t, b.Compare(a), 1)
	assert.Equal(t, b.Compare(c), -1)
	assert.Equal(t, c.Compare(b), 1)
	assert.Equal(t, c.Compare(c), 0)

	assert.Equal(t, c.String(), "2;5")
	assert.Equal(t, c.Validate(), nil)
	assert.Equal(t, errors.Is(NewSignalId(0, 5).Validate(), ErrNotValid), true)
	assert.Equal(t, errors.Is(NewSignalId(2, 0).Validate(), ErrNotValid), true)

	parsed, err := ParseSignalId(c.String())
	assert.Equal(t, err, nil)
	assert.Equal(t, parsed, c)

	for _, bad := range []string{"2", "2;", ";5", "a;5", "2:5"} {
		_, err = ParseSignalId(bad)
		assert.Equal(t, errors.Is(err, ErrBadSignalId), true)
	}
}

func TestAspectLabels(t *testing.T) {
	assert.Equal(t, SignalAspectClear.String(), "clear")
	assert.Equal(t, SignalAspectPreliminaryCaution.String(), "preliminary-caution")
	assert.Equal(t, SignalAspectCaution.String(), "caution")
	assert.Equal(t, SignalAspectDanger.String(), "danger")
	assert.Equal(t, SignalAspect(9).String(), "")

	assert.Equal(t, SpeedLimitSlow.String(), "slow")
	assert.Equal(t, SpeedLimitHalf.String(), "half")
	assert.Equal(t, SpeedLimitFast.String(), "fast")
}

func TestTrainJson(t *testing.T) {
	// shape sent by the controller
	message := `{"id":7,"name":"cargo","speedSlow":10,"speedHalf":100,"speedFast":200,"accessKey":123456,` +
		`"online":true,"lastSignal":{"stretchId":2,"id":5,"name":"b5","aspect":3},` +
		`"lastSignalPassedAspect":1,"started":true,"stopAtSignal":false,"signalToStopAt":null}`

	var train Train
	err := json.Unmarshal([]byte(message), &train)
	assert.Equal(t, err, nil)
	assert.Equal(t, train.Id, 7)
	assert.Equal(t, train.AccessKey, uint32(123456))
	assert.Equal(t, train.Online, true)
	assert.Equal(t, *train.LastSignalId(), NewSignalId(2, 5))
	assert.Equal(t, *train.LastSignalPassedAspect, SignalAspectPreliminaryCaution)
	assert.Equal(t, train.SignalToStopAtId(), nil)
}

func TestEventLogType(t *testing.T) {
	eventLogType, err := ParseEventLogType("switch-failed-switching")
	assert.Equal(t, err, nil)
	assert.Equal(t, eventLogType, EventLogTypeSwitchFailedSwitching)
	assert.Equal(t, eventLogType.String(), "switch-failed-switching")

	_, err = ParseEventLogType("derailed")
	assert.NotEqual(t, err, nil)
	assert.Equal(t, EventLogType(99).String(), "unknown")
}
