// Package stats collects operation counters for a store.
package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Store operation types
const (
	OpInsert         OperationType = "insert"
	OpSearch         OperationType = "search"
	OpLogicalDelete  OperationType = "logical_delete"
	OpPhysicalDelete OperationType = "physical_delete"
	OpScan           OperationType = "scan"
	OpBulkLoad       OperationType = "bulk_load"
	OpCompact        OperationType = "compact"
	OpVerify         OperationType = "verify"
	OpExport         OperationType = "export"
	OpImport         OperationType = "import"
)

// Outcomes tracked with TrackOutcome
const (
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
)

// AtomicCollector collects statistics with atomic counters. Maps are only
// locked when a new entry is created.
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	totalBytesRead     atomic.Uint64
	totalBytesWritten  atomic.Uint64
	totalBlocksRead    atomic.Uint64
	totalBlocksWritten atomic.Uint64
	repackCount        atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex

	outcomes   map[string]*atomic.Uint64
	outcomesMu sync.RWMutex

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // nanoseconds
	max   atomic.Uint64
	min   atomic.Uint64 // zero until the first sample
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		outcomes:   make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	getOrCreate(&c.countsMu, c.counts, op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current || tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current != 0 && latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	getOrCreate(&c.errorsMu, c.errors, errorType).Add(1)
}

// TrackOutcome counts a non-fatal result such as a duplicate or a miss
func (c *AtomicCollector) TrackOutcome(outcome string) {
	getOrCreate(&c.outcomesMu, c.outcomes, outcome).Add(1)
}

// TrackBytes adds the specified number of bytes to the read or write counter
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.totalBytesWritten.Add(bytes)
	} else {
		c.totalBytesRead.Add(bytes)
	}
}

// TrackBlocks adds the specified number of blocks to the read or write counter
func (c *AtomicCollector) TrackBlocks(isWrite bool, blocks uint64) {
	if isWrite {
		c.totalBlocksWritten.Add(blocks)
	} else {
		c.totalBlocksRead.Add(blocks)
	}
}

// TrackRepack increments the repack counter
func (c *AtomicCollector) TrackRepack() {
	c.repackCount.Add(1)
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["total_bytes_read"] = c.totalBytesRead.Load()
	stats["total_bytes_written"] = c.totalBytesWritten.Load()
	stats["total_blocks_read"] = c.totalBlocksRead.Load()
	stats["total_blocks_written"] = c.totalBlocksWritten.Load()
	stats["repack_count"] = c.repackCount.Load()
	stats["errors"] = snapshot(&c.errorsMu, c.errors)
	stats["outcomes"] = snapshot(&c.outcomesMu, c.outcomes)

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics filtered by prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	filtered := make(map[string]interface{})
	for key, value := range c.GetStats() {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}

// getOrCreate returns the counter for key, creating it under the write lock
func getOrCreate[K comparable](mu *sync.RWMutex, m map[K]*atomic.Uint64, key K) *atomic.Uint64 {
	mu.RLock()
	counter, exists := m[key]
	mu.RUnlock()

	if !exists {
		mu.Lock()
		if counter, exists = m[key]; !exists {
			counter = &atomic.Uint64{}
			m[key] = counter
		}
		mu.Unlock()
	}

	return counter
}

func snapshot(mu *sync.RWMutex, m map[string]*atomic.Uint64) map[string]uint64 {
	mu.RLock()
	defer mu.RUnlock()

	out := make(map[string]uint64, len(m))
	for k, counter := range m {
		out[k] = counter.Load()
	}
	return out
}
