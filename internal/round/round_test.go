package round

import (
	"errors"
	"testing"
	"time"
)

func TestStartRejectsWhileActive(t *testing.T) {
	m := NewManager()
	first, err := m.Start(0, "Page 1 analysis")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.ID != 1 || first.Status != StatusActive {
		t.Errorf("round = %+v", first)
	}

	if _, err := m.Start(0, "Page 2 analysis"); !errors.Is(err, ErrRoundActive) {
		t.Fatalf("second start err = %v, want ErrRoundActive", err)
	}
	if m.Active() != first {
		t.Error("active round replaced by rejected start")
	}

	if _, err := m.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := m.Start(0, "Page 2 analysis"); err != nil {
		t.Fatalf("start after completion: %v", err)
	}
}

func TestCompleteStampsDurationAndAverage(t *testing.T) {
	m := NewManager()
	r, _ := m.Start(0, "warmup")
	r.StartedAt = time.Now().Add(-40 * time.Millisecond)

	done, err := m.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("completed round = %+v", done)
	}
	if done.DurationMs < 0 {
		t.Errorf("duration = %dms, want non-negative", done.DurationMs)
	}
	if m.AvgDuration() <= 0 {
		t.Errorf("avg = %v, want > 0", m.AvgDuration())
	}
	if m.CompletedCount() != 1 {
		t.Errorf("completed count = %d", m.CompletedCount())
	}

	// a second, longer round pulls the average up
	before := m.AvgDuration()
	r2, _ := m.Start(0, "longer")
	r2.StartedAt = time.Now().Add(-400 * time.Millisecond)
	if _, err := m.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if m.AvgDuration() <= before {
		t.Errorf("avg did not grow: %v -> %v", before, m.AvgDuration())
	}
}

func TestFailLeavesAverageAlone(t *testing.T) {
	m := NewManager()
	m.Start(0, "doomed")
	failed, err := m.Fail()
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != StatusFailed || failed.CompletedAt == nil {
		t.Errorf("failed round = %+v", failed)
	}
	if m.AvgDuration() != 0 || m.CompletedCount() != 0 {
		t.Error("failed round folded into completion metrics")
	}
}

func TestCloseWithoutActiveRound(t *testing.T) {
	m := NewManager()
	if _, err := m.Complete(); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("Complete err = %v", err)
	}
	if _, err := m.Fail(); !errors.Is(err, ErrNoActiveRound) {
		t.Errorf("Fail err = %v", err)
	}
}

func TestWireAssignedIDs(t *testing.T) {
	m := NewManager()
	r, _ := m.Start(7, "wire round")
	if r.ID != 7 {
		t.Errorf("id = %d, want 7", r.ID)
	}
	m.Complete()

	// auto-assignment continues past the highest wire id
	r2, _ := m.Start(0, "next")
	if r2.ID != 8 {
		t.Errorf("id = %d, want 8", r2.ID)
	}
}

func TestAttachTask(t *testing.T) {
	m := NewManager()
	m.AttachTask("orphan") // no active round: dropped
	m.Start(0, "r")
	m.AttachTask("t1")
	m.AttachTask("t2")
	done, _ := m.Complete()
	if len(done.TaskIDs) != 2 || done.TaskIDs[0] != "t1" {
		t.Errorf("task ids = %v", done.TaskIDs)
	}
}

func TestHistoryAndReset(t *testing.T) {
	m := NewManager()
	m.Start(0, "a")
	m.Complete()
	m.Start(0, "b")
	m.Fail()

	h := m.History()
	if len(h) != 2 || h[0].Name != "a" || h[1].Name != "b" {
		t.Fatalf("history = %+v", h)
	}

	m.Reset()
	if m.Active() != nil || len(m.History()) != 0 || m.AvgDuration() != 0 {
		t.Error("reset left state behind")
	}
	r, _ := m.Start(0, "fresh")
	if r.ID != 1 {
		t.Errorf("id after reset = %d, want 1", r.ID)
	}
}
