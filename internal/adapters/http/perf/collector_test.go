package perf

import (
	"sync"
	"testing"
	"time"
)

// TestCollector_Record_And_Snapshot verifies request and query entries are aggregated separately.
func TestCollector_Record_And_Snapshot(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /notices", StatusCode: 200, DurationMs: 10, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "GET /notices", StatusCode: 200, DurationMs: 30, Timestamp: now})
	c.Record(Entry{Kind: KindQuery, Path: "ExecContext", DurationMs: 5, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].AvgMs != 20 {
		t.Errorf("AvgMs = %v, want 20", snap.SlowestPaths[0].AvgMs)
	}
	if snap.SlowestPaths[0].MaxMs != 30 {
		t.Errorf("MaxMs = %v, want 30", snap.SlowestPaths[0].MaxMs)
	}
	if len(snap.SlowestQueries) != 1 {
		t.Fatalf("SlowestQueries len = %d, want 1", len(snap.SlowestQueries))
	}
	if len(snap.SlowestUpstream) != 0 {
		t.Errorf("SlowestUpstream len = %d, want 0", len(snap.SlowestUpstream))
	}
}

// TestCollector_UpstreamStats verifies upstream calls get their own ranking and error count.
func TestCollector_UpstreamStats(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindUpstream, Path: "GET /api/v1/notices/", StatusCode: 200, DurationMs: 80, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "GET /api/v1/users/me", StatusCode: 404, DurationMs: 20, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "POST /api/v1/notices/", StatusCode: 0, DurationMs: 300, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "PUT /api/v1/notices/1", StatusCode: 502, DurationMs: 40, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 2)
	if snap.UpstreamErrors != 2 {
		t.Errorf("UpstreamErrors = %d, want 2 (transport failure + 5xx)", snap.UpstreamErrors)
	}
	if len(snap.SlowestUpstream) != 2 {
		t.Fatalf("SlowestUpstream len = %d, want 2 (topN)", len(snap.SlowestUpstream))
	}
	if snap.SlowestUpstream[0].Path != "POST /api/v1/notices/" {
		t.Errorf("slowest upstream = %q", snap.SlowestUpstream[0].Path)
	}
	if snap.UpstreamP95Ms <= 80 {
		t.Errorf("UpstreamP95Ms = %v, want > 80", snap.UpstreamP95Ms)
	}
	if len(snap.SlowestPaths) != 0 {
		t.Error("upstream entries must not count as inbound requests")
	}
}

// TestCollector_RingBuffer_Overwrites verifies the oldest entries are dropped when full.
func TestCollector_RingBuffer_Overwrites(t *testing.T) {
	c := NewCollector(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /", DurationMs: float64(i), Timestamp: now})
	}
	if c.TotalRecorded() != 5 {
		t.Errorf("TotalRecorded = %d, want 5", c.TotalRecorded())
	}

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].Count != 3 {
		t.Errorf("Count = %d, want 3", snap.SlowestPaths[0].Count)
	}
	if snap.SlowestPaths[0].AvgMs != 3 {
		t.Errorf("AvgMs = %v, want 3 (entries 2,3,4)", snap.SlowestPaths[0].AvgMs)
	}
}

// TestCollector_Percentiles verifies P50/P95/P99 over a known distribution.
func TestCollector_Percentiles(t *testing.T) {
	c := NewCollector(200)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /admin", DurationMs: float64(i), Timestamp: now})
	}

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.RequestP50Ms < 49 || snap.RequestP50Ms > 51 {
		t.Errorf("P50 = %v, want ~50", snap.RequestP50Ms)
	}
	if snap.RequestP95Ms < 94 || snap.RequestP95Ms > 96 {
		t.Errorf("P95 = %v, want ~95", snap.RequestP95Ms)
	}
	if snap.RequestP99Ms < 98 || snap.RequestP99Ms > 100 {
		t.Errorf("P99 = %v, want ~99", snap.RequestP99Ms)
	}
}

// TestCollector_Snapshot_FiltersBySince verifies entries before the window are ignored.
func TestCollector_Snapshot_FiltersBySince(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /profile", DurationMs: 100, Timestamp: now.Add(-2 * time.Hour)})
	c.Record(Entry{Kind: KindRequest, Path: "GET /notices", DurationMs: 10, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Hour), 10)
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].Path != "GET /notices" {
		t.Errorf("Path = %q, want GET /notices", snap.SlowestPaths[0].Path)
	}
}

// TestCollector_ConcurrentWrites verifies Record is safe across goroutines.
func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector(1000)
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Record(Entry{Kind: KindUpstream, Path: "GET /api/v1/notices/", DurationMs: float64(n), Timestamp: now})
			}
		}(i)
	}
	wg.Wait()
	if c.TotalRecorded() != 1000 {
		t.Errorf("TotalRecorded = %d, want 1000", c.TotalRecorded())
	}
}

// BenchmarkCollectorRecord measures per-call cost of Record.
func BenchmarkCollectorRecord(b *testing.B) {
	c := NewCollector(DefaultRingSize)
	e := Entry{Kind: KindRequest, Path: "GET /notices", StatusCode: 200, DurationMs: 1.5, Timestamp: time.Now()}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Record(e)
	}
}
