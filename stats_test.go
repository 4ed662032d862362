package ncfs

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestStatsCollector_RecordOperation(t *testing.T) {
	sc := newStatsCollector()

	if stats := sc.snapshot(); stats.Operations != 0 {
		t.Errorf("Initial operations = %d, want 0", stats.Operations)
	}

	sc.recordOperation()
	sc.recordOperation()
	sc.recordOperation()
	if stats := sc.snapshot(); stats.Operations != 3 {
		t.Errorf("Operations = %d, want 3", stats.Operations)
	}
}

func TestStatsCollector_RecordRead(t *testing.T) {
	sc := newStatsCollector()

	sc.recordRead(100)
	sc.recordRead(50)
	if stats := sc.snapshot(); stats.BytesRead != 150 {
		t.Errorf("BytesRead = %d, want 150", stats.BytesRead)
	}
}

func TestStatsCollector_RecordRejected(t *testing.T) {
	sc := newStatsCollector()

	sc.recordError()
	sc.recordRejected()
	sc.recordRejected()

	stats := sc.snapshot()
	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}
	if stats.Errors != 3 {
		t.Errorf("Errors = %d, want 3 (rejections count as errors)", stats.Errors)
	}
}

func TestStatsCollector_Concurrent(t *testing.T) {
	sc := newStatsCollector()

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				sc.recordOperation()
				sc.recordRead(10)
				sc.recordError()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	stats := sc.snapshot()
	if stats.Operations != 1000 {
		t.Errorf("Operations = %d, want 1000", stats.Operations)
	}
	if stats.BytesRead != 10000 {
		t.Errorf("BytesRead = %d, want 10000", stats.BytesRead)
	}
	if stats.Errors != 1000 {
		t.Errorf("Errors = %d, want 1000", stats.Errors)
	}
}
