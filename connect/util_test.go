package connect

import (
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestCallbackList(t *testing.T) {
	callbacks := NewCallbackList[func() string]()

	aId := callbacks.Add(func() string { return "a" })
	callbacks.Add(func() string { return "b" })
	cId := callbacks.Add(func() string { return "c" })

	values := func() []string {
		out := []string{}
		for _, callback := range callbacks.Get() {
			out = append(out, callback())
		}
		return out
	}
	assert.Equal(t, values(), []string{"a", "b", "c"})

	callbacks.Remove(aId)
	assert.Equal(t, values(), []string{"b", "c"})

	// not present
	callbacks.Remove(aId)
	assert.Equal(t, callbacks.Len(), 2)

	callbacks.Remove(cId)
	assert.Equal(t, values(), []string{"b"})
}

func TestMonitor(t *testing.T) {
	monitor := NewMonitor()

	notify := monitor.NotifyChannel()
	select {
	case <-notify:
		t.Fatal("Notified before a change.")
	default:
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-notify:
			case <-time.After(testTimeout):
				t.Error("Waiter not notified.")
			}
		}()
	}
	monitor.NotifyAll()
	wg.Wait()

	// a new channel for the next change
	next := monitor.NotifyChannel()
	assert.NotEqual(t, next, notify)
	select {
	case <-next:
		t.Fatal("Notified before a change.")
	default:
	}
}
