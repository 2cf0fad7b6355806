package pipeline

import (
	"testing"
)

func TestNewSnapshot_AllStagesPending(t *testing.T) {
	snap := NewSnapshot("vid")
	if len(snap.Stages) != len(Stages) {
		t.Fatalf("expected %d stages, got %d", len(Stages), len(snap.Stages))
	}
	for _, st := range snap.Stages {
		if st.State != StagePending {
			t.Fatalf("stage %s should start pending, got %s", st.Name, st.State)
		}
	}
	if snap.OverallPercent != 0 {
		t.Fatalf("expected 0%%, got %v", snap.OverallPercent)
	}
}

func TestSetStage_PercentMath(t *testing.T) {
	snap := NewSnapshot("vid")

	snap.SetStage(StageVideoIngest, StageCompleted, "")
	if snap.OverallPercent != 12.5 {
		t.Fatalf("1/8 completed should be 12.5%%, got %v", snap.OverallPercent)
	}

	snap.SetStage(StageAutoshot, StageCompleted, "")
	snap.SetStage(StageASR, StageCompleted, "")
	if snap.OverallPercent != 37.5 {
		t.Fatalf("3/8 completed should be 37.5%%, got %v", snap.OverallPercent)
	}

	// Running and failed stages do not count towards progress.
	snap.SetStage(StageImageExtraction, StageRunning, "")
	snap.SetStage(StageSegmentCaptioning, StageFailed, "service down")
	if snap.OverallPercent != 37.5 {
		t.Fatalf("non-completed stages must not move the percent, got %v", snap.OverallPercent)
	}

	for _, name := range Stages {
		snap.SetStage(name, StageCompleted, "")
	}
	if snap.OverallPercent != 100 {
		t.Fatalf("all completed should be 100%%, got %v", snap.OverallPercent)
	}
}

func TestSetStage_RecordsError(t *testing.T) {
	snap := NewSnapshot("vid")
	snap.SetStage(StageASR, StageFailed, "timeout")

	for _, st := range snap.Stages {
		if st.Name != StageASR {
			continue
		}
		if st.State != StageFailed || st.Error != "timeout" {
			t.Fatalf("unexpected stage state %+v", st)
		}
		if st.UpdatedAt.IsZero() {
			t.Fatalf("updated_at not set")
		}
		return
	}
	t.Fatalf("stage %s not found", StageASR)
}

func TestSetStage_UnknownStageIgnored(t *testing.T) {
	snap := NewSnapshot("vid")
	snap.SetStage("bogus", StageCompleted, "")
	if snap.OverallPercent != 0 {
		t.Fatalf("unknown stage must not change progress, got %v", snap.OverallPercent)
	}
}
