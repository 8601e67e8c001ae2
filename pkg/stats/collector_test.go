package stats

import (
	"sync"
	"testing"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpSearch)

	stats := collector.GetStats()

	if stats["insert_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 insert operations, got %v", stats["insert_ops"])
	}
	if stats["search_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 search operation, got %v", stats["search_ops"])
	}
	if _, exists := stats["last_insert_time"]; !exists {
		t.Errorf("Expected last_insert_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpPhysicalDelete, 300)
	collector.TrackOperationWithLatency(OpPhysicalDelete, 100)
	collector.TrackOperationWithLatency(OpPhysicalDelete, 200)

	latency, ok := collector.GetStats()["physical_delete_latency"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected physical_delete_latency in stats")
	}
	if latency["count"].(uint64) != 3 {
		t.Errorf("Expected count 3, got %v", latency["count"])
	}
	if latency["avg_ns"].(uint64) != 200 {
		t.Errorf("Expected avg 200, got %v", latency["avg_ns"])
	}
	if latency["min_ns"].(uint64) != 100 {
		t.Errorf("Expected min 100, got %v", latency["min_ns"])
	}
	if latency["max_ns"].(uint64) != 300 {
		t.Errorf("Expected max 300, got %v", latency["max_ns"])
	}
}

func TestCollector_CountersAndOutcomes(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackBytes(true, 264)
	collector.TrackBytes(false, 8)
	collector.TrackBlocks(true, 2)
	collector.TrackBlocks(false, 5)
	collector.TrackRepack()
	collector.TrackError("io")
	collector.TrackOutcome(OutcomeDuplicate)
	collector.TrackOutcome(OutcomeDuplicate)
	collector.TrackOutcome(OutcomeNotFound)

	stats := collector.GetStats()
	if stats["total_bytes_written"].(uint64) != 264 || stats["total_bytes_read"].(uint64) != 8 {
		t.Errorf("Unexpected byte counters: %v / %v", stats["total_bytes_written"], stats["total_bytes_read"])
	}
	if stats["total_blocks_written"].(uint64) != 2 || stats["total_blocks_read"].(uint64) != 5 {
		t.Errorf("Unexpected block counters")
	}
	if stats["repack_count"].(uint64) != 1 {
		t.Errorf("Expected 1 repack, got %v", stats["repack_count"])
	}
	if stats["errors"].(map[string]uint64)["io"] != 1 {
		t.Errorf("Expected 1 io error")
	}
	outcomes := stats["outcomes"].(map[string]uint64)
	if outcomes[OutcomeDuplicate] != 2 || outcomes[OutcomeNotFound] != 1 {
		t.Errorf("Unexpected outcomes: %v", outcomes)
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()
	collector.TrackOperation(OpInsert)
	collector.TrackOperation(OpScan)

	filtered := collector.GetStatsFiltered("insert")
	if _, ok := filtered["insert_ops"]; !ok {
		t.Error("Expected insert_ops in filtered stats")
	}
	if _, ok := filtered["scan_ops"]; ok {
		t.Error("Did not expect scan_ops in filtered stats")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	collector := NewAtomicCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				collector.TrackOperationWithLatency(OpSearch, uint64(j+1))
				collector.TrackOutcome(OutcomeNotFound)
			}
		}()
	}
	wg.Wait()

	stats := collector.GetStats()
	if stats["search_ops"].(uint64) != 8000 {
		t.Errorf("Expected 8000 search ops, got %v", stats["search_ops"])
	}
	if stats["outcomes"].(map[string]uint64)[OutcomeNotFound] != 8000 {
		t.Errorf("Expected 8000 not_found outcomes")
	}
}
