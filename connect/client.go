package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang/glog"

	"bringyour.com/railway/protocol"
)

// Client applies controller pushes to a `Store` and wraps the request verbs.
// Presentation code reads the store and calls these methods. It never sees frames.

var entityResources = []protocol.Resource{
	protocol.ResourceTrain,
	protocol.ResourceStretch,
	protocol.ResourceSignal,
}

var pushVerbs = []protocol.Verb{
	protocol.VerbSet,
	protocol.VerbServerInsert,
	protocol.VerbServerUpdate,
	protocol.VerbServerDelete,
}

// every push the client must handle
func RequiredSubscriptionKeys() []protocol.Key {
	keys := []protocol.Key{}
	for _, resource := range entityResources {
		for _, verb := range pushVerbs {
			keys = append(keys, protocol.NewKey(verb, resource))
		}
	}
	return keys
}

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	session *Session
	store   *Store
	log     LogFunction
}

func NewClient(ctx context.Context, session *Session, store *Store) (*Client, error) {
	subscriptions := NewSubscriptions()
	if err := addEntitySubscriptions(subscriptions, protocol.ResourceTrain, store.Trains); err != nil {
		return nil, err
	}
	if err := addEntitySubscriptions(subscriptions, protocol.ResourceStretch, store.Stretches); err != nil {
		return nil, err
	}
	if err := addEntitySubscriptions(subscriptions, protocol.ResourceSignal, store.Signals); err != nil {
		return nil, err
	}
	if err := subscriptions.Require(RequiredSubscriptionKeys()...); err != nil {
		return nil, err
	}
	if err := session.Install(subscriptions); err != nil {
		return nil, err
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:     cancelCtx,
		cancel:  cancel,
		session: session,
		store:   store,
		log:     SubLogFn(session.log, "[c]"),
	}, nil
}

func addEntitySubscriptions[K comparable, E any](
	subscriptions *Subscriptions,
	resource protocol.Resource,
	collection *Collection[K, E],
) error {
	handlers := map[protocol.Verb]func(*E){
		protocol.VerbSet: func(entity *E) {
			collection.Insert(*entity)
		},
		protocol.VerbServerInsert: func(entity *E) {
			collection.Insert(*entity)
		},
		protocol.VerbServerUpdate: func(entity *E) {
			if err := collection.Update(*entity); err != nil {
				glog.Infof("[c]%s = %s\n", protocol.NewKey(protocol.VerbServerUpdate, resource), err)
			}
		},
		protocol.VerbServerDelete: func(entity *E) {
			collection.Remove(*entity)
		},
	}
	for _, verb := range pushVerbs {
		key := protocol.NewKey(verb, resource)
		if err := subscriptions.Add(verb, resource, TypedHandler[E](key, handlers[verb])); err != nil {
			return err
		}
	}
	return nil
}

func (self *Client) Session() *Session {
	return self.session
}

func (self *Client) Store() *Store {
	return self.store
}

// issues GET for every entity resource and bulk loads the replies
func (self *Client) Load(ctx context.Context) error {
	if err := loadEntities(ctx, self.session, protocol.ResourceTrain, self.store.Trains); err != nil {
		return err
	}
	if err := loadEntities(ctx, self.session, protocol.ResourceStretch, self.store.Stretches); err != nil {
		return err
	}
	if err := loadEntities(ctx, self.session, protocol.ResourceSignal, self.store.Signals); err != nil {
		return err
	}
	self.log(
		"loaded trains=%d stretches=%d signals=%d",
		self.store.Trains.Len(),
		self.store.Stretches.Len(),
		self.store.Signals.Len(),
	)
	return nil
}

func loadEntities[K comparable, E any](
	ctx context.Context,
	session *Session,
	resource protocol.Resource,
	collection *Collection[K, E],
) error {
	_, _, err := callApply[[]E](ctx, session, protocol.VerbGet, resource, nil, func(entities *[]E) {
		if entities == nil {
			collection.LoadAll(nil)
		} else {
			collection.LoadAll(*entities)
		}
	})
	return err
}

// decodes the reply on the dispatch goroutine. `apply` sees only successful
// replies and runs before any later push, so store mutations keep wire order.
func callApply[R any](
	ctx context.Context,
	session *Session,
	verb protocol.Verb,
	resource protocol.Resource,
	payload []byte,
	apply func(record *R),
) (*protocol.Result, *R, error) {
	var result *protocol.Result
	var record *R
	var decodeErr error
	_, err := session.CallApply(ctx, verb, resource, payload, func(reply []byte) {
		result, record, decodeErr = ResultFromReply[R](reply)
		if decodeErr == nil && result.Err() == nil && apply != nil {
			apply(record)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if decodeErr != nil {
		return nil, nil, fmt.Errorf("%s: %w", protocol.NewKey(verb, resource), decodeErr)
	}
	if err := result.Err(); err != nil {
		return result, nil, err
	}
	return result, record, nil
}

func callJson[R any](
	ctx context.Context,
	session *Session,
	verb protocol.Verb,
	resource protocol.Resource,
	args any,
	apply func(record *R),
) (*protocol.Result, *R, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, nil, err
	}
	return callApply[R](ctx, session, verb, resource, payload, apply)
}

func callFrame[R any](
	ctx context.Context,
	session *Session,
	verb protocol.Verb,
	record any,
	apply func(record *R),
) (*protocol.Result, *R, error) {
	frame, err := ToFrame(verb, record)
	if err != nil {
		return nil, nil, err
	}
	return callApply[R](ctx, session, frame.Verb, frame.Resource, frame.Payload, apply)
}

// a reply carrying the new record is applied in arrival order.
// An ok-only reply leaves the store to the server push.
func insertEntity[K comparable, E any](
	ctx context.Context,
	session *Session,
	collection *Collection[K, E],
	entity *E,
) (*protocol.Result, error) {
	result, _, err := callFrame[E](ctx, session, protocol.VerbInsert, entity, func(record *E) {
		if record != nil {
			collection.Insert(*record)
		}
	})
	return result, err
}

func updateEntity[K comparable, E any](
	ctx context.Context,
	session *Session,
	collection *Collection[K, E],
	entity *E,
) (*protocol.Result, error) {
	result, _, err := callFrame[E](ctx, session, protocol.VerbUpdate, entity, func(record *E) {
		if record == nil {
			return
		}
		if err := collection.Update(*record); err != nil {
			glog.Infof("[c]update %s = %s\n", collection.Name(), err)
		}
	})
	return result, err
}

// `args` is the identifier-only record for `key`
func deleteEntity[K comparable, E any](
	ctx context.Context,
	session *Session,
	resource protocol.Resource,
	collection *Collection[K, E],
	key K,
	args any,
) (*protocol.Result, error) {
	result, _, err := callJson[json.RawMessage](ctx, session, protocol.VerbDelete, resource, args, func(*json.RawMessage) {
		collection.RemoveKey(key)
	})
	return result, err
}

type entityId struct {
	Id int `json:"id"`
}

func (self *Client) InsertTrain(ctx context.Context, train *protocol.Train) (*protocol.Result, error) {
	if err := train.Validate(); err != nil {
		return nil, err
	}
	return insertEntity(ctx, self.session, self.store.Trains, train)
}

func (self *Client) UpdateTrain(ctx context.Context, train *protocol.Train) (*protocol.Result, error) {
	if err := train.Validate(); err != nil {
		return nil, err
	}
	return updateEntity(ctx, self.session, self.store.Trains, train)
}

func (self *Client) DeleteTrain(ctx context.Context, trainId int) (*protocol.Result, error) {
	if trainId <= 0 {
		return nil, fmt.Errorf("%w train id %d", protocol.ErrNotValid, trainId)
	}
	return deleteEntity(ctx, self.session, protocol.ResourceTrain, self.store.Trains, trainId, &entityId{Id: trainId})
}

func (self *Client) InsertStretch(ctx context.Context, stretch *protocol.Stretch) (*protocol.Result, error) {
	if err := stretch.Validate(); err != nil {
		return nil, err
	}
	return insertEntity(ctx, self.session, self.store.Stretches, stretch)
}

func (self *Client) UpdateStretch(ctx context.Context, stretch *protocol.Stretch) (*protocol.Result, error) {
	if err := stretch.Validate(); err != nil {
		return nil, err
	}
	return updateEntity(ctx, self.session, self.store.Stretches, stretch)
}

func (self *Client) DeleteStretch(ctx context.Context, stretchId int) (*protocol.Result, error) {
	if stretchId <= 0 {
		return nil, fmt.Errorf("%w stretch id %d", protocol.ErrNotValid, stretchId)
	}
	return deleteEntity(ctx, self.session, protocol.ResourceStretch, self.store.Stretches, stretchId, &entityId{Id: stretchId})
}

func (self *Client) InsertSignal(ctx context.Context, signal *protocol.Signal) (*protocol.Result, error) {
	if err := signal.Validate(); err != nil {
		return nil, err
	}
	return insertEntity(ctx, self.session, self.store.Signals, signal)
}

func (self *Client) UpdateSignal(ctx context.Context, signal *protocol.Signal) (*protocol.Result, error) {
	if err := signal.SignalId().Validate(); err != nil {
		return nil, err
	}
	if err := signal.Validate(); err != nil {
		return nil, err
	}
	return updateEntity(ctx, self.session, self.store.Signals, signal)
}

func (self *Client) DeleteSignal(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	if err := signalId.Validate(); err != nil {
		return nil, err
	}
	return deleteEntity(ctx, self.session, protocol.ResourceSignal, self.store.Signals, signalId, &signalId)
}

func (self *Client) action(ctx context.Context, resource protocol.Resource, args any) (*protocol.Result, error) {
	result, _, err := callJson[json.RawMessage](ctx, self.session, protocol.VerbAction, resource, args, nil)
	return result, err
}

func (self *Client) ManuallyJumpStartTrain(ctx context.Context, trainId int, signalId protocol.SignalId) (*protocol.Result, error) {
	if err := signalId.Validate(); err != nil {
		return nil, err
	}
	return self.action(ctx, protocol.ResourceManuallyJumpStartTrain, &protocol.ManuallyJumpStartTrain{
		TrainId:   trainId,
		StretchId: signalId.StretchId,
		SignalId:  signalId.Id,
	})
}

// the payload is the bare decimal train id
func (self *Client) ManuallyStopTrain(ctx context.Context, trainId int) (*protocol.Result, error) {
	payload := []byte(strconv.Itoa(trainId))
	result, _, err := callApply[json.RawMessage](ctx, self.session, protocol.VerbAction, protocol.ResourceManuallyStopTrain, payload, nil)
	return result, err
}

func (self *Client) ManuallyStopTrainAtSignal(ctx context.Context, trainId int, signalId protocol.SignalId) (*protocol.Result, error) {
	if err := signalId.Validate(); err != nil {
		return nil, err
	}
	return self.action(ctx, protocol.ResourceManuallyStopTrainAtSignal, &protocol.ManuallyStopTrainAtSignal{
		TrainId:   trainId,
		StretchId: signalId.StretchId,
		SignalId:  signalId.Id,
	})
}

func (self *Client) ManuallyCancelStopTrainAtSignal(ctx context.Context, trainId int) (*protocol.Result, error) {
	payload := []byte(strconv.Itoa(trainId))
	result, _, err := callApply[json.RawMessage](ctx, self.session, protocol.VerbAction, protocol.ResourceManuallyCancelStopTrainAtSignal, payload, nil)
	return result, err
}

func (self *Client) signalAction(ctx context.Context, resource protocol.Resource, signalId protocol.SignalId) (*protocol.Result, error) {
	if err := signalId.Validate(); err != nil {
		return nil, err
	}
	return self.action(ctx, resource, &signalId)
}

func (self *Client) MoveSignalUp(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceMoveSignalUp, signalId)
}

func (self *Client) MoveSignalDown(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceMoveSignalDown, signalId)
}

func (self *Client) SwitchPassthrough(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceSwitchPassthrough, signalId)
}

func (self *Client) SwitchDetour(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceSwitchDetour, signalId)
}

func (self *Client) ForceRed(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceForceRed, signalId)
}

func (self *Client) UnforceRed(ctx context.Context, signalId protocol.SignalId) (*protocol.Result, error) {
	return self.signalAction(ctx, protocol.ResourceUnforceRed, signalId)
}

// event log entries are returned, not stored
func (self *Client) EventLog(ctx context.Context, query *protocol.EventLogQuery) ([]protocol.EventLog, error) {
	if query == nil {
		query = &protocol.EventLogQuery{}
	}
	_, eventLogs, err := callFrame[[]protocol.EventLog](ctx, self.session, protocol.VerbGet, query, nil)
	if err != nil {
		return nil, err
	}
	if eventLogs == nil {
		return []protocol.EventLog{}, nil
	}
	return *eventLogs, nil
}

// waits for the session to end
func (self *Client) Run() error {
	select {
	case <-self.ctx.Done():
		return self.ctx.Err()
	case <-self.session.Done():
		return ErrSessionClosed
	}
}

func (self *Client) Close() {
	self.cancel()
	self.session.Close()
}

// true when `err` is a server error with `code`
func IsErrorCode(err error, code protocol.ErrorCode) bool {
	return errors.Is(err, &protocol.ResultError{Code: code})
}

// dials the controller and installs a client on a new session.
// Call `Load` for the initial state.
func Connect(ctx context.Context, settings *ClientSettings) (*Client, error) {
	url, err := settings.Url()
	if err != nil {
		return nil, err
	}
	dial := func() (*WsTransport, error) {
		return DialWsTransport(ctx, url, settings.Token, settings.WsTransportSettings())
	}
	var transport *WsTransport
	if glog.V(2) {
		transport, err = TraceWithReturnError(fmt.Sprintf("[c]connect %s", url), dial)
	} else {
		transport, err = dial()
	}
	if err != nil {
		return nil, err
	}
	session := NewSession(ctx, transport, settings.SessionSettings())
	client, err := NewClient(ctx, session, NewStore())
	if err != nil {
		session.Close()
		return nil, err
	}
	return client, nil
}
