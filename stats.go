package ncfs

import (
	"sync/atomic"
)

// Stats contains filesystem statistics
type Stats struct {
	Mountpoint   string
	Source       string
	Operations   uint64
	BytesRead    uint64
	Errors       uint64
	Rejected     uint64 // mutating requests refused with EROFS
	OpenFiles    int
	InFlight     int
	CachedInodes int
	NodeCache    CacheStats
}

// statsCollector tracks filesystem statistics
type statsCollector struct {
	operations atomic.Uint64
	bytesRead  atomic.Uint64
	errors     atomic.Uint64
	rejected   atomic.Uint64
}

// newStatsCollector creates a new statistics collector
func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

// recordOperation increments the operation counter
func (s *statsCollector) recordOperation() {
	s.operations.Add(1)
}

// recordRead increments bytes read
func (s *statsCollector) recordRead(n int) {
	s.bytesRead.Add(uint64(n))
}

// recordError increments error counter
func (s *statsCollector) recordError() {
	s.errors.Add(1)
}

// recordRejected counts a refused mutation. It is also an error.
func (s *statsCollector) recordRejected() {
	s.rejected.Add(1)
	s.errors.Add(1)
}

// snapshot returns current statistics
func (s *statsCollector) snapshot() Stats {
	return Stats{
		Operations: s.operations.Load(),
		BytesRead:  s.bytesRead.Load(),
		Errors:     s.errors.Load(),
		Rejected:   s.rejected.Load(),
	}
}
