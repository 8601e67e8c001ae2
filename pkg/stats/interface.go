package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackBlocks adds the specified number of blocks to the read or write counter
	TrackBlocks(isWrite bool, blocks uint64)

	// TrackRepack increments the repack counter
	TrackRepack()

	// TrackOutcome counts a non-fatal result such as a duplicate or a miss
	TrackOutcome(outcome string)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
