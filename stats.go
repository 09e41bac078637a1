package cachewire

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a connection pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client requests.
type ClientStats struct {
	Requests   uint64 // Requests executed, retries excluded
	Retries    uint64 // Requests resent to another server
	Exceptions uint64 // Requests answered with an exception message
	Errors     uint64 // Requests that failed
}

// ServerStats contains statistics about a server.
type ServerStats struct {
	Accepted      uint64 // Connections accepted
	Rejected      uint64 // Connections refused because MaxConnections was reached
	Messages      uint64 // Requests processed
	Exceptions    uint64 // Requests answered with an exception message
	ProtocolError uint64 // Connections closed on a framing error
	GateTimeouts  uint64 // Connections closed waiting on the flow gate
	Active        int64  // Connections being served
}

type poolStatsCollector struct {
	acquireCount      atomic.Uint64
	acquireWaitCount  atomic.Uint64
	createdConns      atomic.Uint64
	destroyedConns    atomic.Uint64
	acquireErrors     atomic.Uint64
	acquireWaitTimeNs atomic.Uint64

	totalConns  atomic.Int32
	idleConns   atomic.Int32
	activeConns atomic.Int32
}

func (c *poolStatsCollector) recordAcquire() {
	c.acquireCount.Add(1)
}

func (c *poolStatsCollector) recordAcquireWait(d time.Duration) {
	c.acquireWaitCount.Add(1)
	c.acquireWaitTimeNs.Add(uint64(d.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	c.createdConns.Add(1)
	c.totalConns.Add(1)
}

func (c *poolStatsCollector) recordDestroy() {
	c.destroyedConns.Add(1)
	c.totalConns.Add(-1)
}

func (c *poolStatsCollector) recordAcquireError() {
	c.acquireErrors.Add(1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	c.idleConns.Add(-1)
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordActivate() {
	c.activeConns.Add(1)
}

func (c *poolStatsCollector) recordDeactivate() {
	c.activeConns.Add(-1)
}

func (c *poolStatsCollector) recordIdleDestroy() {
	c.idleConns.Add(-1)
}

func (c *poolStatsCollector) recordRelease() {
	c.idleConns.Add(1)
	c.activeConns.Add(-1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		AcquireCount:      c.acquireCount.Load(),
		AcquireWaitCount:  c.acquireWaitCount.Load(),
		CreatedConns:      c.createdConns.Load(),
		DestroyedConns:    c.destroyedConns.Load(),
		AcquireErrors:     c.acquireErrors.Load(),
		AcquireWaitTimeNs: c.acquireWaitTimeNs.Load(),
		TotalConns:        c.totalConns.Load(),
		IdleConns:         c.idleConns.Load(),
		ActiveConns:       c.activeConns.Load(),
	}
}

type clientStatsCollector struct {
	requests   atomic.Uint64
	retries    atomic.Uint64
	exceptions atomic.Uint64
	errors     atomic.Uint64
}

func (c *clientStatsCollector) recordRequest()   { c.requests.Add(1) }
func (c *clientStatsCollector) recordRetry()     { c.retries.Add(1) }
func (c *clientStatsCollector) recordException() { c.exceptions.Add(1) }
func (c *clientStatsCollector) recordError()     { c.errors.Add(1) }

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Requests:   c.requests.Load(),
		Retries:    c.retries.Load(),
		Exceptions: c.exceptions.Load(),
		Errors:     c.errors.Load(),
	}
}

type serverStatsCollector struct {
	accepted      atomic.Uint64
	rejected      atomic.Uint64
	messages      atomic.Uint64
	exceptions    atomic.Uint64
	protocolError atomic.Uint64
	gateTimeouts  atomic.Uint64
	active        atomic.Int64
}

func (c *serverStatsCollector) snapshot() ServerStats {
	return ServerStats{
		Accepted:      c.accepted.Load(),
		Rejected:      c.rejected.Load(),
		Messages:      c.messages.Load(),
		Exceptions:    c.exceptions.Load(),
		ProtocolError: c.protocolError.Load(),
		GateTimeouts:  c.gateTimeouts.Load(),
		Active:        c.active.Load(),
	}
}
