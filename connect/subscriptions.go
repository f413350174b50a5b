package connect

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/golang/glog"

	"bringyour.com/railway/protocol"
)

var ErrDuplicateSubscription = errors.New("Subscription already registered.")
var ErrMissingSubscription = errors.New("Subscription missing.")

// a checked registration table for server verbs.
// Install it on a session with `Session.Install`.
type Subscriptions struct {
	handlers map[protocol.Key]PushHandler
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		handlers: map[protocol.Key]PushHandler{},
	}
}

func (self *Subscriptions) Add(verb protocol.Verb, resource protocol.Resource, handler PushHandler) error {
	if !verb.IsServer() {
		return fmt.Errorf("%w (%s)", ErrNotSubscribeVerb, verb)
	}
	key := protocol.NewKey(verb, resource)
	if _, ok := self.handlers[key]; ok {
		return fmt.Errorf("%w (%s)", ErrDuplicateSubscription, key)
	}
	self.handlers[key] = handler
	return nil
}

func (self *Subscriptions) Require(keys ...protocol.Key) error {
	missing := []string{}
	for _, key := range keys {
		if _, ok := self.handlers[key]; !ok {
			missing = append(missing, key.String())
		}
	}
	if 0 < len(missing) {
		return fmt.Errorf("%w (%s)", ErrMissingSubscription, strings.Join(missing, ", "))
	}
	return nil
}

func (self *Subscriptions) Handlers() map[protocol.Key]PushHandler {
	return maps.Clone(self.handlers)
}

func (self *Subscriptions) Keys() []protocol.Key {
	keys := slices.Collect(maps.Keys(self.handlers))
	slices.SortFunc(keys, func(a protocol.Key, b protocol.Key) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// decodes the push payload as `R` before calling `handler`.
// A payload that does not decode is logged and dropped.
func TypedHandler[R any](key protocol.Key, handler func(record *R)) PushHandler {
	return func(payload []byte) {
		var record R
		if err := json.Unmarshal(payload, &record); err != nil {
			glog.Infof("[s]%s push decode error = %s\n", key, err)
			return
		}
		handler(&record)
	}
}
