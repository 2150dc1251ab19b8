package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestTracker_ConcurrentTicks(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrackerTo(&buf, "ingesting", 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Tick()
		}()
	}
	wg.Wait()

	if got := tr.bar.State().CurrentNum; got != 50 {
		t.Errorf("CurrentNum = %d, want 50", got)
	}
	tr.FinishSuccess()
}

func TestTracker_FinishError(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTrackerTo(&buf, "ingesting", 2)
	tr.Tick()
	tr.FinishError(errors.New("disk full"))

	if !strings.Contains(buf.String(), "ingesting error: disk full") {
		t.Errorf("output %q should contain the error line", buf.String())
	}
}
