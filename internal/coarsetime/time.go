// Package coarsetime is a clock that is read far more often than it needs to be precise,
// such as the idle bookkeeping of pooled connections. It is refreshed every Resolution.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const Resolution = 50 * time.Millisecond

var nanos atomic.Int64

func init() {
	nanos.Store(time.Now().UnixNano())

	ticker := time.NewTicker(Resolution)
	go func() {
		for t := range ticker.C {
			nanos.Store(t.UnixNano())
		}
	}()
}

// Now returns the time of the last refresh.
func Now() time.Time {
	return time.Unix(0, nanos.Load())
}

// Since is Now().Sub(t), never negative.
func Since(t time.Time) time.Duration {
	return max(Now().Sub(t), 0)
}
