package connect

import (
	"fmt"

	"github.com/golang/glog"
)

// Logging convention in the `connect` package:
// Info:
//     abnormal behavior only. Silent on normal operation except for one time
//     session setup. This includes:
//     - connection errors and teardown
//     - replaced waiters, push payloads that fail to decode
// Error:
//     unexpected panics, even if recovered
// V(2):
//     per frame trace with session and call ids that can be used to filter.
//     Malformed and unmatched frames are dropped at this level

type LogFunction func(string, ...any)

func LogFn(level glog.Level, tag string) LogFunction {
	return func(format string, a ...any) {
		if glog.V(level) {
			m := fmt.Sprintf(format, a...)
			glog.InfoDepth(1, fmt.Sprintf("%s: %s", tag, m))
		}
	}
}

func SubLogFn(log LogFunction, tag string) LogFunction {
	return func(format string, a ...any) {
		m := fmt.Sprintf(format, a...)
		log("%s: %s", tag, m)
	}
}
