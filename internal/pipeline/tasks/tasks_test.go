package tasks

import (
	"strings"
	"testing"

	"github.com/yungbote/videorag-backend/internal/artifact"
)

func TestFrameIndices_EvenSpacing(t *testing.T) {
	got := FrameIndices(0, 100, 3)
	want := []int64{25, 50, 75}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFrameIndices_OffsetSegment(t *testing.T) {
	got := FrameIndices(100, 250, 2)
	want := []int64{150, 200}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFrameIndices_DegenerateInputs(t *testing.T) {
	if got := FrameIndices(100, 100, 3); got != nil {
		t.Fatalf("empty segment should yield no frames, got %v", got)
	}
	if got := FrameIndices(100, 50, 3); got != nil {
		t.Fatalf("inverted segment should yield no frames, got %v", got)
	}
	if got := FrameIndices(0, 100, 0); got != nil {
		t.Fatalf("zero frames requested should yield nil, got %v", got)
	}
}

func TestRelatedASRText_FullyInsideAndOverlap(t *testing.T) {
	tokens := []artifact.Token{
		{Text: "hello", StartFrame: 10, EndFrame: 40},
		{Text: "world", StartFrame: 50, EndFrame: 90},
		{Text: "tail", StartFrame: 120, EndFrame: 200},
	}

	got := RelatedASRText(tokens, 0, 100, 0.8)
	if got != "hello\n\nworld" {
		t.Fatalf("expected tokens inside the window joined, got %q", got)
	}

	got = RelatedASRText(tokens, 100, 250, 0.8)
	if got != "tail" {
		t.Fatalf("expected %q, got %q", "tail", got)
	}
}

func TestRelatedASRText_OverlapThreshold(t *testing.T) {
	// Token spans frames 80..120; window 0..100 covers half of it.
	tokens := []artifact.Token{{Text: "straddle", StartFrame: 80, EndFrame: 120}}

	if got := RelatedASRText(tokens, 0, 100, 0.8); got != "" {
		t.Fatalf("half overlap must not pass a 0.8 threshold, got %q", got)
	}
	if got := RelatedASRText(tokens, 0, 100, 0.5); got != "straddle" {
		t.Fatalf("half overlap should pass a 0.5 threshold, got %q", got)
	}
}

func TestRelatedASRText_SkipsEmptyAndInvalidTokens(t *testing.T) {
	tokens := []artifact.Token{
		{Text: "   ", StartFrame: 10, EndFrame: 20},
		{Text: "backwards", StartFrame: 30, EndFrame: 30},
		{Text: "ok", StartFrame: 40, EndFrame: 60},
	}
	if got := RelatedASRText(tokens, 0, 100, 0.8); got != "ok" {
		t.Fatalf("expected %q, got %q", "ok", got)
	}
}

func TestFrameTimestamp_Format(t *testing.T) {
	if got := frameTimestamp(0, 25); got != "00:00:00.000" {
		t.Fatalf("expected zero timestamp, got %q", got)
	}
	if got := frameTimestamp(100, 25); got != "00:00:04.000" {
		t.Fatalf("expected four seconds, got %q", got)
	}
	// 90061.5 seconds is 25h01m01.5s.
	if got := formatSeconds(90061.5); got != "25:01:01.500" {
		t.Fatalf("unexpected timestamp %q", got)
	}
	if got := frameTimestamp(10, 0); got != "" {
		t.Fatalf("zero fps should yield empty timestamp, got %q", got)
	}
}

func TestFormatSeconds_MillisecondCarry(t *testing.T) {
	// 1.9996 rounds to 2000ms and must carry into the seconds.
	if got := formatSeconds(1.9996); got != "00:00:02.000" {
		t.Fatalf("expected carried timestamp, got %q", got)
	}
}

func TestSegmentCaptionPrompt_SubstitutesASR(t *testing.T) {
	prompt := segmentCaptionPrompt("xin chào")
	if !strings.Contains(prompt, "Đoạn ASR: xin chào") {
		t.Fatalf("asr text not substituted into prompt")
	}
	if strings.Contains(prompt, "{{asr}}") {
		t.Fatalf("placeholder left in prompt")
	}
}
