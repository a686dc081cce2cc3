package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTrackAccumulates(t *testing.T) {
	ResetFrame()

	stop := Track("test.Op")
	time.Sleep(2 * time.Millisecond)
	stop()

	Track("test.Op")() // near-zero second sample

	ss := Snapshot()
	if ss["test.Op"] < 2*time.Millisecond {
		t.Fatalf("tracked %v, want at least 2ms", ss["test.Op"])
	}

	ResetFrame()
	if len(Snapshot()) != 0 {
		t.Fatal("ResetFrame left totals behind")
	}
}

func TestSumWithPrefix(t *testing.T) {
	ResetFrame()
	defer ResetFrame()

	mu.Lock()
	frameTotals["world.A"] = 3 * time.Millisecond
	frameTotals["world.B"] = 2 * time.Millisecond
	frameTotals["render.C"] = 7 * time.Millisecond
	mu.Unlock()

	if got := SumWithPrefix("world."); got != 5*time.Millisecond {
		t.Fatalf("SumWithPrefix = %v, want 5ms", got)
	}
	if got := SumWithPrefix("missing."); got != 0 {
		t.Fatalf("SumWithPrefix for absent prefix = %v", got)
	}
}

func TestTopNOrdersByDuration(t *testing.T) {
	ResetFrame()
	defer ResetFrame()

	mu.Lock()
	frameTotals["slow"] = 10 * time.Millisecond
	frameTotals["fast"] = time.Millisecond
	mu.Unlock()

	out := TopN(2)
	if !strings.HasPrefix(out, "slow:") {
		t.Fatalf("TopN = %q, want slowest first", out)
	}
	if TopN(1) != "slow:10.0ms" {
		t.Fatalf("TopN(1) = %q", TopN(1))
	}
}
