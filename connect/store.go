package connect

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/constraints"

	"bringyour.com/railway/protocol"
)

var ErrNotLoaded = errors.New("Record is not loaded.")

type ChangeKind int

const (
	ChangeLoad ChangeKind = iota
	ChangeInsert
	ChangeUpdate
	ChangeRemove
)

func (self ChangeKind) String() string {
	switch self {
	case ChangeLoad:
		return "load"
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeRemove:
		return "remove"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(self))
	}
}

type Change[K comparable, E any] struct {
	Kind ChangeKind
	// zero for a load
	Key K
	// for a remove, the record that was removed
	Entity E
	// collection size after the change
	Len int
}

type ChangeCallback[K comparable, E any] func(change *Change[K, E])

func compareOrdered[K constraints.Ordered](a K, b K) int {
	if a < b {
		return -1
	} else if b < a {
		return 1
	}
	return 0
}

// Collection holds one entity type ordered ascending by key.
// Keys are unique: an insert of a present key replaces the record.
type Collection[K comparable, E any] struct {
	name    string
	keyFn   func(E) K
	compare func(K, K) int

	mutex    sync.Mutex
	entities []E

	monitor         *Monitor
	changeCallbacks *CallbackList[ChangeCallback[K, E]]
}

func NewCollection[K comparable, E any](name string, keyFn func(E) K, compare func(K, K) int) *Collection[K, E] {
	return &Collection[K, E]{
		name:            name,
		keyFn:           keyFn,
		compare:         compare,
		entities:        []E{},
		monitor:         NewMonitor(),
		changeCallbacks: NewCallbackList[ChangeCallback[K, E]](),
	}
}

func NewOrderedCollection[K constraints.Ordered, E any](name string, keyFn func(E) K) *Collection[K, E] {
	return NewCollection[K, E](name, keyFn, compareOrdered[K])
}

func (self *Collection[K, E]) Name() string {
	return self.name
}

func (self *Collection[K, E]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(self.entities, key, func(entity E, key K) int {
		return self.compare(self.keyFn(entity), key)
	})
}

func (self *Collection[K, E]) sort() {
	slices.SortStableFunc(self.entities, func(a E, b E) int {
		return self.compare(self.keyFn(a), self.keyFn(b))
	})
}

// replaces the whole collection. A key repeated in `entities` keeps the last record.
func (self *Collection[K, E]) LoadAll(entities []E) {
	change := func() *Change[K, E] {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		self.entities = slices.Clone(entities)
		if self.entities == nil {
			self.entities = []E{}
		}
		self.sort()
		// stable sort keeps arrival order within a run of equal keys
		deduped := self.entities[:0]
		for i, entity := range self.entities {
			if i+1 < len(self.entities) && self.compare(self.keyFn(entity), self.keyFn(self.entities[i+1])) == 0 {
				continue
			}
			deduped = append(deduped, entity)
		}
		self.entities = deduped

		return &Change[K, E]{
			Kind: ChangeLoad,
			Len:  len(self.entities),
		}
	}()
	self.changed(change)
}

func (self *Collection[K, E]) Insert(entity E) {
	change := func() *Change[K, E] {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		key := self.keyFn(entity)
		if i, found := self.search(key); found {
			self.entities[i] = entity
		} else {
			self.entities = slices.Insert(self.entities, i, entity)
		}
		self.sort()
		return &Change[K, E]{
			Kind:   ChangeInsert,
			Key:    key,
			Entity: entity,
			Len:    len(self.entities),
		}
	}()
	self.changed(change)
}

// full record replace. An unknown key returns `ErrNotLoaded` and changes nothing.
func (self *Collection[K, E]) Update(entity E) error {
	change, err := func() (*Change[K, E], error) {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		key := self.keyFn(entity)
		i, found := self.search(key)
		if !found {
			return nil, fmt.Errorf("%w (%s %v)", ErrNotLoaded, self.name, key)
		}
		self.entities[i] = entity
		self.sort()
		return &Change[K, E]{
			Kind:   ChangeUpdate,
			Key:    key,
			Entity: entity,
			Len:    len(self.entities),
		}, nil
	}()
	if err != nil {
		return err
	}
	self.changed(change)
	return nil
}

// removes by the key of `entity`. Idempotent.
func (self *Collection[K, E]) Remove(entity E) bool {
	return self.RemoveKey(self.keyFn(entity))
}

func (self *Collection[K, E]) RemoveKey(key K) bool {
	change := func() *Change[K, E] {
		self.mutex.Lock()
		defer self.mutex.Unlock()

		i, found := self.search(key)
		if !found {
			return nil
		}
		entity := self.entities[i]
		self.entities = slices.Delete(self.entities, i, i+1)
		return &Change[K, E]{
			Kind:   ChangeRemove,
			Key:    key,
			Entity: entity,
			Len:    len(self.entities),
		}
	}()
	if change == nil {
		return false
	}
	self.changed(change)
	return true
}

func (self *Collection[K, E]) Get(key K) (E, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if i, found := self.search(key); found {
		return self.entities[i], true
	}
	var empty E
	return empty, false
}

// a copy in ascending key order
func (self *Collection[K, E]) List() []E {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.entities)
}

func (self *Collection[K, E]) Keys() []K {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	keys := make([]K, 0, len(self.entities))
	for _, entity := range self.entities {
		keys = append(keys, self.keyFn(entity))
	}
	return keys
}

func (self *Collection[K, E]) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.entities)
}

func (self *Collection[K, E]) NotifyChannel() chan struct{} {
	return self.monitor.NotifyChannel()
}

// callbacks run on the goroutine that made the change, after the collection is unlocked
func (self *Collection[K, E]) AddChangeCallback(callback ChangeCallback[K, E]) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *Collection[K, E]) changed(change *Change[K, E]) {
	self.monitor.NotifyAll()
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback(change)
		})
	}
}

type Store struct {
	Trains    *Collection[int, protocol.Train]
	Stretches *Collection[int, protocol.Stretch]
	Signals   *Collection[protocol.SignalId, protocol.Signal]
}

func NewStore() *Store {
	return &Store{
		Trains: NewOrderedCollection[int, protocol.Train](
			"train",
			func(train protocol.Train) int {
				return train.Id
			},
		),
		Stretches: NewOrderedCollection[int, protocol.Stretch](
			"stretch",
			func(stretch protocol.Stretch) int {
				return stretch.Id
			},
		),
		Signals: NewCollection[protocol.SignalId, protocol.Signal](
			"signal",
			func(signal protocol.Signal) protocol.SignalId {
				return signal.SignalId()
			},
			protocol.SignalId.Compare,
		),
	}
}
