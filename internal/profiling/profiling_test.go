package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTrackAccumulates(t *testing.T) {
	r := New()
	for range 3 {
		stop := r.Track("chunk.Generate")
		time.Sleep(time.Millisecond)
		stop()
	}
	if got := r.Count("chunk.Generate"); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
	if r.Snapshot()["chunk.Generate"] < 3*time.Millisecond {
		t.Fatalf("total too small: %v", r.Snapshot()["chunk.Generate"])
	}
	r.Reset()
	if len(r.Snapshot()) != 0 {
		t.Fatal("reset should clear totals")
	}
}

func TestTopNOrdersByDuration(t *testing.T) {
	r := New()
	r.totals["a"] = 2 * time.Millisecond
	r.totals["b"] = 5 * time.Millisecond
	r.totals["c"] = 1500 * time.Microsecond
	got := r.TopN(2)
	if got != "b:5ms, a:2ms" {
		t.Fatalf("TopN = %q", got)
	}
	if !strings.Contains(r.TopN(10), "c:1.5ms") {
		t.Fatalf("TopN(10) = %q", r.TopN(10))
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Track("x")()
}
