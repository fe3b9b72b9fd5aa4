package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Encodes normalized stills into silent segments and assembles them with the
// narration track into the final deliverable. Segments use -preset ultrafast
// because they are intermediate artifacts; the plain assembly path is a
// stream copy so the only real encode per image happens once.
// ---------------------------------------------------------------------------

// stderrTailBytes bounds the diagnostic output carried inside errors.
const stderrTailBytes = 1000

// SegmentEncodeError is raised when a segment encode subprocess exits
// non-zero. It is fatal for the whole render.
type SegmentEncodeError struct {
	ImagePath string
	Stderr    string
	Err       error
}

func (e *SegmentEncodeError) Error() string {
	return fmt.Sprintf("segment encode failed for %s: %v: %s", e.ImagePath, e.Err, e.Stderr)
}

func (e *SegmentEncodeError) Unwrap() error { return e.Err }

// AssemblyError is raised when concatenation or muxing fails. The crossfade
// assembly path also reports through this type so the caller can fall back
// to the plain path.
type AssemblyError struct {
	Stage  string // "concat", "mux" or "transitions"
	Stderr string
	Err    error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed at %s: %v: %s", e.Stage, e.Err, e.Stderr)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// AssembleResult describes the finished artifact.
type AssembleResult struct {
	DurationSeconds float64
	FileSizeBytes   int64
}

type FFmpegService struct {
	fps int
}

func NewFFmpegService(fps int) *FFmpegService {
	if fps <= 0 {
		fps = 30
	}
	return &FFmpegService{fps: fps}
}

// EncodeSegment turns one normalized frame into a silent clip of exactly
// round(duration*fps) frames. Re-running with the same inputs overwrites the
// output path.
func (s *FFmpegService) EncodeSegment(ctx context.Context, imagePath, outputPath string, durationSeconds float64) error {
	frames := frameCount(durationSeconds, s.fps)

	args := []string{
		"-loop", "1",
		"-i", imagePath,
		"-frames:v", strconv.Itoa(frames),
		"-r", strconv.Itoa(s.fps),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-an",
		"-y",
		outputPath,
	}

	stderr, err := s.runFFmpeg(ctx, args)
	if err != nil {
		return &SegmentEncodeError{
			ImagePath: imagePath,
			Stderr:    tail(stderr, stderrTailBytes),
			Err:       err,
		}
	}

	return nil
}

// Assemble concatenates the ordered segments without re-encoding, then muxes
// in the narration track. -shortest truncates to the shorter stream, so the
// output never exceeds the audio by more than a frame.
func (s *FFmpegService) Assemble(ctx context.Context, segmentPaths []string, audioPath, outputPath string) (*AssembleResult, error) {
	if len(segmentPaths) == 0 {
		return nil, &AssemblyError{Stage: "concat", Err: fmt.Errorf("no segments to assemble")}
	}

	workDir := filepath.Dir(outputPath)

	listPath := filepath.Join(workDir, "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(concatListing(segmentPaths)), 0644); err != nil {
		return nil, &AssemblyError{Stage: "concat", Err: fmt.Errorf("failed to write concat list: %w", err)}
	}
	defer os.Remove(listPath)

	silentPath := filepath.Join(workDir, "silent_concat.mp4")
	defer os.Remove(silentPath)

	concatArgs := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		silentPath,
	}
	if stderr, err := s.runFFmpeg(ctx, concatArgs); err != nil {
		return nil, &AssemblyError{Stage: "concat", Stderr: tail(stderr, stderrTailBytes), Err: err}
	}

	muxArgs := []string{
		"-i", silentPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
	if stderr, err := s.runFFmpeg(ctx, muxArgs); err != nil {
		return nil, &AssemblyError{Stage: "mux", Stderr: tail(stderr, stderrTailBytes), Err: err}
	}

	return s.describeOutput(ctx, outputPath)
}

// AssembleWithTransitions renders the normalized frames directly with
// crossfades between consecutive images, then muxes the narration track.
// This path re-encodes, so it uses a quality preset. Callers treat any
// *AssemblyError from here as a signal to fall back to Assemble.
//
// Screen time is budgeted so the crossfaded chain spans the narration: the
// n-1 fades come out of the audio duration before it is split across the
// images. When that leaves less than a second per image there is no room for
// transitions and the error sends the caller down the plain path.
func (s *FFmpegService) AssembleWithTransitions(ctx context.Context, imagePaths []string, audioSeconds float64, audioPath, outputPath string) (*AssembleResult, error) {
	if len(imagePaths) == 0 {
		return nil, &AssemblyError{Stage: "transitions", Err: fmt.Errorf("no images to assemble")}
	}
	if len(imagePaths) == 1 {
		// Nothing to crossfade; the plain path is equivalent and cheaper.
		return nil, &AssemblyError{Stage: "transitions", Err: fmt.Errorf("need at least two images for crossfades")}
	}

	fade := transitionDuration(audioSeconds / float64(len(imagePaths)))
	perImage, ok := transitionTiming(audioSeconds, len(imagePaths), fade)
	if !ok {
		return nil, &AssemblyError{Stage: "transitions",
			Err: fmt.Errorf("%.2fs per image after %d crossfades, below the 1s floor", perImage, len(imagePaths)-1)}
	}

	// Each input runs one fade longer than its screen time so consecutive
	// clips overlap for the duration of the crossfade.
	clipSeconds := perImage + fade

	args := make([]string, 0, len(imagePaths)*5+20)
	for _, path := range imagePaths {
		args = append(args,
			"-loop", "1",
			"-t", formatSeconds(clipSeconds),
			"-i", path,
		)
	}
	args = append(args, "-i", audioPath)

	filter := xfadeFilter(len(imagePaths), perImage, fade, s.fps)
	audioIndex := strconv.Itoa(len(imagePaths)) + ":a"

	args = append(args,
		"-filter_complex", filter,
		"-map", "[vout]",
		"-map", audioIndex,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)

	if stderr, err := s.runFFmpeg(ctx, args); err != nil {
		return nil, &AssemblyError{Stage: "transitions", Stderr: tail(stderr, stderrTailBytes), Err: err}
	}

	return s.describeOutput(ctx, outputPath)
}

// AudioDuration returns the duration of an audio file in seconds via ffprobe.
func (s *FFmpegService) AudioDuration(ctx context.Context, audioPath string) (float64, error) {
	return s.probeDuration(ctx, audioPath)
}

// VideoDuration returns the duration of a video file in seconds via ffprobe.
func (s *FFmpegService) VideoDuration(ctx context.Context, videoPath string) (float64, error) {
	return s.probeDuration(ctx, videoPath)
}

func (s *FFmpegService) probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return duration, nil
}

func (s *FFmpegService) describeOutput(ctx context.Context, outputPath string) (*AssembleResult, error) {
	duration, err := s.probeDuration(ctx, outputPath)
	if err != nil {
		return nil, &AssemblyError{Stage: "mux", Err: err}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, &AssemblyError{Stage: "mux", Err: fmt.Errorf("failed to stat output: %w", err)}
	}

	return &AssembleResult{
		DurationSeconds: duration,
		FileSizeBytes:   info.Size(),
	}, nil
}

// runFFmpeg executes ffmpeg with the given args, capturing stderr for
// diagnostics. ffmpeg writes all progress and error text to stderr.
func (s *FFmpegService) runFFmpeg(ctx context.Context, args []string) (string, error) {
	log.Printf("[FFmpeg] ffmpeg %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// frameCount is the exact number of frames for a segment of the given
// duration at the given frame rate.
func frameCount(durationSeconds float64, fps int) int {
	frames := int(math.Round(durationSeconds * float64(fps)))
	if frames < 1 {
		frames = 1
	}
	return frames
}

// concatListing renders segment paths in the ffmpeg concat demuxer format.
// Single quotes inside paths are escaped the way the demuxer expects.
func concatListing(paths []string) string {
	var b strings.Builder
	for _, path := range paths {
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// transitionDuration picks a crossfade length that never eats more than a
// quarter of an image's screen time.
func transitionDuration(perImageSeconds float64) float64 {
	fade := 0.5
	if max := perImageSeconds / 4; fade > max {
		fade = max
	}
	return fade
}

// transitionTiming splits the audio duration across n images after reserving
// time for the n-1 crossfades between them. ok is false when the split leaves
// less than a second of screen time per image.
func transitionTiming(audioSeconds float64, n int, fade float64) (perImageSeconds float64, ok bool) {
	perImageSeconds = (audioSeconds - fade*float64(n-1)) / float64(n)
	return perImageSeconds, perImageSeconds >= 1.0
}

// formatSeconds renders a duration for ffmpeg's CLI with millisecond
// precision.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// xfadeFilter builds the filter_complex chain crossfading n looped image
// inputs. Input k is normalized to the target frame rate, then each pair is
// merged with an offset of k*perImage so each image holds the screen for its
// full budget before fading into the next.
func xfadeFilter(n int, perImageSeconds, fade float64, fps int) string {
	var b strings.Builder

	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v]fps=%d,settb=AVTB[s%d];", i, fps, i)
	}

	prev := "s0"
	for i := 1; i < n; i++ {
		out := fmt.Sprintf("f%d", i)
		if i == n-1 {
			out = "vout"
		}
		offset := float64(i) * perImageSeconds
		fmt.Fprintf(&b, "[%s][s%d]xfade=transition=fade:duration=%s:offset=%s[%s];",
			prev, i, formatSeconds(fade), formatSeconds(offset), out)
		prev = out
	}

	return strings.TrimSuffix(b.String(), ";")
}
