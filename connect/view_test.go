package connect

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"bringyour.com/railway/protocol"
)

func TestSignalView(t *testing.T) {
	store := NewStore()
	store.Stretches.LoadAll([]protocol.Stretch{{Id: 2, Name: "north loop", Type: protocol.StretchTypeOneWaySingleTrack}})

	yes := true
	three := 3
	one := 1
	signal := protocol.Signal{
		StretchId:       2,
		Id:              5,
		Name:            "b5",
		Aspect:          protocol.SignalAspectPreliminaryCaution,
		Switch:          true,
		Splitter:        &yes,
		StretchDetourId: &three,
		SignalDetourId:  &one,
	}
	view := NewSignalView(signal, store.Stretches)
	assert.Equal(t, view.Id, "2;5")
	assert.Equal(t, view.AspectLabel, "preliminary-caution")
	assert.Equal(t, view.StretchName, "north loop")
	assert.Equal(t, view.DetourId, "3;1")
	assert.Equal(t, view.LoopBackId, "")

	// the stretch is not loaded
	signal.StretchId = 4
	view = NewSignalView(signal, store.Stretches)
	assert.Equal(t, view.Id, "4;5")
	assert.Equal(t, view.StretchName, "")
}

func TestTrainView(t *testing.T) {
	caution := protocol.SignalAspectCaution
	train := protocol.Train{
		Id:                     7,
		Name:                   "cargo",
		LastSignal:             &protocol.Signal{StretchId: 1, Id: 3},
		LastSignalPassedAspect: &caution,
	}
	view := NewTrainView(train)
	assert.Equal(t, view.LastSignalId, "1;3")
	assert.Equal(t, view.LastPassedAspectLabel, "caution")
	assert.Equal(t, view.SignalToStopAtId, "")

	store := NewStore()
	store.Trains.LoadAll([]protocol.Train{{Id: 2}, train})
	views := TrainViews(store)
	assert.Equal(t, len(views), 2)
	assert.Equal(t, views[0].LastSignalId, "")
	assert.Equal(t, views[1].Train.Id, 7)
}
