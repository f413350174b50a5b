package protocol

import (
	"fmt"
	"strings"
)

type ErrorCode uint8

const (
	ErrorCodeOk ErrorCode = iota
	ErrorCodeJsonCouldNotUnmarshal
	ErrorCodeDataNotValid
	ErrorCodeInternalDatabaseError
	ErrorCodeCouldNotFindRecord
	ErrorCodeTrainNotStopped
	ErrorCodeTrainNotStarted
	ErrorCodeTrainNotOnline
	ErrorCodeTrainNotStopAtSignal
)

func (self ErrorCode) String() string {
	switch self {
	case ErrorCodeOk:
		return "ok"
	case ErrorCodeJsonCouldNotUnmarshal:
		return "json-could-not-unmarshal"
	case ErrorCodeDataNotValid:
		return "data-not-valid"
	case ErrorCodeInternalDatabaseError:
		return "internal-database-error"
	case ErrorCodeCouldNotFindRecord:
		return "could-not-find-record"
	case ErrorCodeTrainNotStopped:
		return "train-not-stopped"
	case ErrorCodeTrainNotStarted:
		return "train-not-started"
	case ErrorCodeTrainNotOnline:
		return "train-not-online"
	case ErrorCodeTrainNotStopAtSignal:
		return "train-not-stop-at-signal"
	default:
		// codes added by newer servers are reported as unknown
		return fmt.Sprintf("unknown(%d)", uint8(self))
	}
}

// Result is the reply envelope for every request verb.
// The multiplexer never interprets it.
type Result struct {
	Ok           bool      `json:"ok"`
	ErrorCode    ErrorCode `json:"errorCode"`
	ExtraData    []string  `json:"extraData"`
	ErrorMessage string    `json:"errorMessage"`
}

func OkResult() *Result {
	return &Result{
		Ok: true,
	}
}

func (self *Result) Err() error {
	if self == nil || self.Ok {
		return nil
	}
	return &ResultError{
		Code:      self.ErrorCode,
		Message:   self.ErrorMessage,
		ExtraData: self.ExtraData,
	}
}

type ResultError struct {
	Code      ErrorCode
	Message   string
	ExtraData []string
}

func (self *ResultError) Error() string {
	var b strings.Builder
	b.WriteString("Server error")
	if self.Code != ErrorCodeOk {
		b.WriteString(" ")
		b.WriteString(self.Code.String())
	}
	if self.Message != "" {
		b.WriteString(": ")
		b.WriteString(self.Message)
	}
	if 0 < len(self.ExtraData) {
		b.WriteString(" [")
		b.WriteString(strings.Join(self.ExtraData, ", "))
		b.WriteString("]")
	}
	return b.String()
}

// supports `errors.Is(err, &ResultError{Code: ...})`
func (self *ResultError) Is(target error) bool {
	t, ok := target.(*ResultError)
	if !ok {
		return false
	}
	return t.Code == self.Code
}
