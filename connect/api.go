package connect

import (
	"context"

	"bringyour.com/railway/protocol"
)

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

type CallCallback apiCallback[[]byte]

func NewBlockingCallCallback() (CallCallback, chan ApiCallbackResult[[]byte]) {
	return NewBlockingApiCallback[[]byte]()
}

// runs `Call` on a new goroutine and reports to `callback`
func (self *Session) CallAsync(
	ctx context.Context,
	verb protocol.Verb,
	resource protocol.Resource,
	payload []byte,
	callback CallCallback,
) {
	go HandleError(func() {
		reply, err := self.Call(ctx, verb, resource, payload)
		callback.Result(reply, err)
	})
}
