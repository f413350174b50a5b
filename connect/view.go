package connect

import (
	"bringyour.com/railway/protocol"
)

// read only projections of the store for presentation

type SignalView struct {
	// `stretchId;id`
	Id          string
	Signal      protocol.Signal
	AspectLabel string
	// empty when the stretch is not loaded
	StretchName string
	DetourId    string
	LoopBackId  string
}

func NewSignalView(signal protocol.Signal, stretches *Collection[int, protocol.Stretch]) *SignalView {
	view := &SignalView{
		Id:          signal.SignalId().String(),
		Signal:      signal,
		AspectLabel: signal.Aspect.String(),
	}
	if stretches != nil {
		if stretch, ok := stretches.Get(signal.StretchId); ok {
			view.StretchName = stretch.Name
		}
	}
	if detourId := signal.DetourId(); detourId != nil {
		view.DetourId = detourId.String()
	}
	if loopBackId := signal.LoopBackId(); loopBackId != nil {
		view.LoopBackId = loopBackId.String()
	}
	return view
}

func SignalViews(store *Store) []*SignalView {
	signals := store.Signals.List()
	views := make([]*SignalView, 0, len(signals))
	for _, signal := range signals {
		views = append(views, NewSignalView(signal, store.Stretches))
	}
	return views
}

type TrainView struct {
	Train protocol.Train
	// empty when the train has not passed a signal
	LastSignalId          string
	LastPassedAspectLabel string
	SignalToStopAtId      string
}

func NewTrainView(train protocol.Train) *TrainView {
	view := &TrainView{
		Train: train,
	}
	if lastSignalId := train.LastSignalId(); lastSignalId != nil {
		view.LastSignalId = lastSignalId.String()
	}
	if train.LastSignalPassedAspect != nil {
		view.LastPassedAspectLabel = train.LastSignalPassedAspect.String()
	}
	if signalToStopAtId := train.SignalToStopAtId(); signalToStopAtId != nil {
		view.SignalToStopAtId = signalToStopAtId.String()
	}
	return view
}

func TrainViews(store *Store) []*TrainView {
	trains := store.Trains.List()
	views := make([]*TrainView, 0, len(trains))
	for _, train := range trains {
		views = append(views, NewTrainView(train))
	}
	return views
}
