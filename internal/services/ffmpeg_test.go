package services

import (
	"strings"
	"testing"
)

func TestFrameCount(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		fps      int
		want     int
	}{
		{"three seconds at 30fps", 3.0, 30, 90},
		{"rounds up", 2.5167, 30, 76},
		{"rounds down", 2.51, 30, 75},
		{"sub-frame duration clamps to one frame", 0.01, 30, 1},
		{"nine seconds over three images", 9.0 / 3, 30, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := frameCount(tt.duration, tt.fps); got != tt.want {
				t.Errorf("frameCount(%v, %d) = %d, want %d", tt.duration, tt.fps, got, tt.want)
			}
		})
	}
}

func TestConcatListing(t *testing.T) {
	got := concatListing([]string{"/tmp/a.mp4", "/tmp/b.mp4"})
	want := "file '/tmp/a.mp4'\nfile '/tmp/b.mp4'\n"
	if got != want {
		t.Errorf("concatListing = %q, want %q", got, want)
	}
}

func TestConcatListingEscapesQuotes(t *testing.T) {
	got := concatListing([]string{"/tmp/it's.mp4"})
	if !strings.Contains(got, `'\''`) {
		t.Errorf("single quote not escaped: %q", got)
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 1000); got != "short" {
		t.Errorf("tail of short string = %q", got)
	}

	long := strings.Repeat("x", 1500) + "the end"
	got := tail(long, 1000)
	if len(got) != 1000 {
		t.Errorf("tail length = %d, want 1000", len(got))
	}
	if !strings.HasSuffix(got, "the end") {
		t.Errorf("tail lost the end of the string")
	}
}

func TestTransitionDuration(t *testing.T) {
	if got := transitionDuration(4.0); got != 0.5 {
		t.Errorf("transitionDuration(4.0) = %v, want 0.5", got)
	}
	// Short screen times shrink the fade so it never dominates the image.
	if got := transitionDuration(1.0); got != 0.25 {
		t.Errorf("transitionDuration(1.0) = %v, want 0.25", got)
	}
}

func TestTransitionTimingBudgetsFades(t *testing.T) {
	// 12s of narration over 3 images with 0.5s fades: the two fades cost 1s,
	// leaving 11s/3 of screen time per image.
	perImage, ok := transitionTiming(12.0, 3, 0.5)
	if !ok {
		t.Fatalf("transitionTiming(12, 3, 0.5) not ok, perImage=%v", perImage)
	}
	if want := 11.0 / 3.0; perImage != want {
		t.Errorf("perImage = %v, want %v", perImage, want)
	}

	// Overlapped clips of perImage+fade each reproduce the full narration:
	// n*(perImage+fade) - (n-1)*fade must equal the audio duration.
	total := 3*(perImage+0.5) - 2*0.5
	if diff := total - 12.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("crossfaded chain spans %v, want 12.0", total)
	}
}

func TestTransitionTimingRejectsShortAudio(t *testing.T) {
	// 3.2s over 3 images leaves under a second each once the fades are paid
	// for; the caller must fall back to the plain slideshow.
	perImage, ok := transitionTiming(3.2, 3, 0.5)
	if ok {
		t.Errorf("transitionTiming(3.2, 3, 0.5) ok with perImage=%v, want fallback", perImage)
	}
}

func TestXfadeFilterShape(t *testing.T) {
	filter := xfadeFilter(3, 2.5, 0.5, 30)

	if strings.Count(filter, "xfade") != 2 {
		t.Errorf("want 2 xfade stages for 3 inputs, got filter %q", filter)
	}
	if !strings.Contains(filter, "[vout]") {
		t.Errorf("final label missing: %q", filter)
	}
	if strings.HasSuffix(filter, ";") {
		t.Errorf("trailing semicolon left in filter: %q", filter)
	}
	// Merge k starts after k full images of screen time.
	if !strings.Contains(filter, "offset=2.500") {
		t.Errorf("first offset missing: %q", filter)
	}
	if !strings.Contains(filter, "offset=5.000") {
		t.Errorf("second offset missing: %q", filter)
	}
}

func TestSegmentEncodeErrorMessage(t *testing.T) {
	err := &SegmentEncodeError{
		ImagePath: "/tmp/frame_0001.jpg",
		Stderr:    "x264 [error]: something broke",
		Err:       errExit,
	}
	msg := err.Error()
	if !strings.Contains(msg, "frame_0001.jpg") || !strings.Contains(msg, "x264") {
		t.Errorf("error message missing detail: %q", msg)
	}
}

var errExit = &exitStub{}

type exitStub struct{}

func (e *exitStub) Error() string { return "exit status 1" }
