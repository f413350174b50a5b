package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"bringyour.com/railway/protocol"
)

// one duplex connection, many logical calls.
// Client verbs are resolved by the next reply with the same key.
// Server verbs are delivered to the durable subscriber for the key.

var ErrSessionClosed = errors.New("Session closed.")
var ErrCallInFlight = errors.New("A call with the same verb and resource is in flight.")
var ErrNotCallVerb = errors.New("Verb is not a client verb.")
var ErrNotSubscribeVerb = errors.New("Verb is not a server verb.")

// what happens when a call starts while another call with the
// same key is waiting on its reply
type CallKeyPolicy int

const (
	// wait for the in flight reply, then send
	CallKeyQueue CallKeyPolicy = iota
	// fail fast with `ErrCallInFlight`
	CallKeyReject
	// drop the earlier waiter. The earlier caller stays pending until its context ends.
	CallKeyReplace
)

func (self CallKeyPolicy) String() string {
	switch self {
	case CallKeyQueue:
		return "queue"
	case CallKeyReject:
		return "reject"
	case CallKeyReplace:
		return "replace"
	default:
		return fmt.Sprintf("CallKeyPolicy(%d)", int(self))
	}
}

func ParseCallKeyPolicy(policyStr string) (CallKeyPolicy, error) {
	switch strings.ToLower(policyStr) {
	case "", "queue":
		return CallKeyQueue, nil
	case "reject":
		return CallKeyReject, nil
	case "replace":
		return CallKeyReplace, nil
	default:
		return CallKeyQueue, fmt.Errorf("Unknown call key policy: %s", policyStr)
	}
}

func (self CallKeyPolicy) MarshalText() ([]byte, error) {
	return []byte(self.String()), nil
}

func (self *CallKeyPolicy) UnmarshalText(text []byte) error {
	policy, err := ParseCallKeyPolicy(string(text))
	if err != nil {
		return err
	}
	*self = policy
	return nil
}

type SessionSettings struct {
	CallKeyPolicy CallKeyPolicy
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		CallKeyPolicy: CallKeyQueue,
	}
}

// durable handler for a server verb. Runs on the dispatch goroutine.
type PushHandler func(payload []byte)

// one-shot handler for a call reply. Runs on the dispatch goroutine
// before the next frame is decoded, even if the caller gave up.
type ReplyHandler func(reply []byte)

type waiter struct {
	callId Id
	apply  ReplyHandler
	// buffered 1. Written at most once by the dispatcher
	reply chan []byte
	// closed when the waiter leaves the table
	released chan struct{}
}

func newWaiter(apply ReplyHandler) *waiter {
	return &waiter{
		callId:   NewId(),
		apply:    apply,
		reply:    make(chan []byte, 1),
		released: make(chan struct{}),
	}
}

type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	sessionId Id
	transport Transport
	settings  *SessionSettings
	log       LogFunction

	stateLock   sync.Mutex
	closed      bool
	waiters     map[protocol.Key]*waiter
	subscribers map[protocol.Key]PushHandler
}

func NewSessionWithDefaults(ctx context.Context, transport Transport) *Session {
	return NewSession(ctx, transport, DefaultSessionSettings())
}

func NewSession(ctx context.Context, transport Transport, settings *SessionSettings) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)
	sessionId := NewId()
	session := &Session{
		ctx:         cancelCtx,
		cancel:      cancel,
		sessionId:   sessionId,
		log:         LogFn(2, fmt.Sprintf("[s]%s", sessionId)),
		transport:   transport,
		settings:    settings,
		waiters:     map[protocol.Key]*waiter{},
		subscribers: map[protocol.Key]PushHandler{},
	}
	go session.run()
	return session
}

func (self *Session) SessionId() Id {
	return self.sessionId
}

func (self *Session) Settings() *SessionSettings {
	return self.settings
}

// Call sends `verb:resource$payload` and blocks until the reply with the same
// key arrives. The session imposes no timeout: bound the wait with `ctx`.
// A caller that gives up after the request was sent keeps the key occupied
// until the reply arrives, so the late reply is consumed here and never
// resolves a later call.
func (self *Session) Call(ctx context.Context, verb protocol.Verb, resource protocol.Resource, payload []byte) ([]byte, error) {
	return self.CallApply(ctx, verb, resource, payload, nil)
}

// CallApply is `Call` with `apply` run on the reply in arrival order,
// before any later frame is handled. State derived from the reply belongs in `apply`.
func (self *Session) CallApply(
	ctx context.Context,
	verb protocol.Verb,
	resource protocol.Resource,
	payload []byte,
	apply ReplyHandler,
) ([]byte, error) {
	if !verb.IsClient() {
		return nil, fmt.Errorf("%w (%s)", ErrNotCallVerb, verb)
	}
	key := protocol.NewKey(verb, resource)
	w := newWaiter(apply)

	if err := self.acquire(ctx, key, w); err != nil {
		return nil, err
	}

	message := protocol.EncodeFrame(&protocol.Frame{
		Verb:     verb,
		Resource: resource,
		Payload:  payload,
	})
	if err := self.transport.Send(ctx, message); err != nil {
		self.release(key, w)
		if errors.Is(err, ErrTransportClosed) {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	self.log("%s call %s ->", key, w.callId)

	select {
	case reply := <-w.reply:
		self.log("%s call %s <-", key, w.callId)
		return reply, nil
	case <-ctx.Done():
		self.log("%s call %s abandoned = %s", key, w.callId, ctx.Err())
		return nil, ctx.Err()
	case <-self.ctx.Done():
		return nil, ErrSessionClosed
	}
}

func (self *Session) acquire(ctx context.Context, key protocol.Key, w *waiter) error {
	for {
		released, err := func() (chan struct{}, error) {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()

			if self.closed {
				return nil, ErrSessionClosed
			}
			current, ok := self.waiters[key]
			if !ok {
				self.waiters[key] = w
				return nil, nil
			}
			switch self.settings.CallKeyPolicy {
			case CallKeyReject:
				return nil, fmt.Errorf("%w (%s)", ErrCallInFlight, key)
			case CallKeyReplace:
				glog.Infof("[s]%s %s call %s replaces %s\n", self.sessionId, key, w.callId, current.callId)
				close(current.released)
				self.waiters[key] = w
				return nil, nil
			default:
				return current.released, nil
			}
		}()
		if err != nil || released == nil {
			return err
		}

		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		case <-self.ctx.Done():
			return ErrSessionClosed
		}
	}
}

func (self *Session) release(key protocol.Key, w *waiter) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if current, ok := self.waiters[key]; ok && current == w {
		delete(self.waiters, key)
		close(w.released)
	}
}

// last registration for a key wins
func (self *Session) Subscribe(verb protocol.Verb, resource protocol.Resource, handler PushHandler) error {
	if !verb.IsServer() {
		return fmt.Errorf("%w (%s)", ErrNotSubscribeVerb, verb)
	}
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.subscribers[protocol.NewKey(verb, resource)] = handler
	return nil
}

func (self *Session) Unsubscribe(verb protocol.Verb, resource protocol.Resource) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	delete(self.subscribers, protocol.NewKey(verb, resource))
}

func (self *Session) Install(subscriptions *Subscriptions) error {
	for key, handler := range subscriptions.Handlers() {
		if err := self.Subscribe(key.Verb, key.Resource, handler); err != nil {
			return err
		}
	}
	return nil
}

func (self *Session) run() {
	defer self.Close()

	for {
		select {
		case <-self.ctx.Done():
			return
		case message, ok := <-self.transport.Receive():
			if !ok {
				glog.Infof("[s]%s transport closed\n", self.sessionId)
				return
			}
			self.dispatch(message)
		}
	}
}

// frames are handled strictly in arrival order
func (self *Session) dispatch(message []byte) {
	frame, err := protocol.DecodeFrame(message)
	if err != nil {
		self.log("drop = %s", err)
		return
	}
	key := frame.Key()

	direction, _ := frame.Verb.Direction()
	switch direction {
	case protocol.DirectionClient:
		w := func() *waiter {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()

			w, ok := self.waiters[key]
			if !ok {
				return nil
			}
			delete(self.waiters, key)
			close(w.released)
			return w
		}()
		if w == nil {
			self.log("%s drop no waiter", key)
			return
		}
		if w.apply != nil {
			HandleError(func() {
				w.apply(frame.Payload)
			})
		}
		w.reply <- frame.Payload

	case protocol.DirectionServer:
		handler := func() PushHandler {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			return self.subscribers[key]
		}()
		if handler == nil {
			self.log("%s drop no subscriber", key)
			return
		}
		self.log("%s push <-", key)
		HandleError(func() {
			handler(frame.Payload)
		})
	}
}

func (self *Session) Done() <-chan struct{} {
	return self.ctx.Done()
}

func (self *Session) Close() {
	self.cancel()

	closed := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.closed {
			return false
		}
		self.closed = true
		for key, w := range self.waiters {
			delete(self.waiters, key)
			close(w.released)
		}
		return true
	}()
	if closed {
		self.transport.Close()
	}
}
