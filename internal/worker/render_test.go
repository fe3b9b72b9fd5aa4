package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/services"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type progressUpdate struct {
	status   models.VideoStatus
	progress int
}

type fakeStore struct {
	project   *models.Project
	video     *models.Video
	narrative *models.Narrative
	items     []models.ContentItem
	voice     *models.VoiceProfile

	// mu guards updates; progress lands from download goroutines in parallel.
	mu           sync.Mutex
	updates      []progressUpdate
	narrationKey string
	completedKey string
	completedDur int
	completedLen int64
	failedMsg    string
}

func (s *fakeStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.project, nil
}

func (s *fakeStore) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	if s.video == nil {
		return nil, fmt.Errorf("video not found")
	}
	return s.video, nil
}

func (s *fakeStore) GetNarrative(ctx context.Context, id uuid.UUID) (*models.Narrative, error) {
	return s.narrative, nil
}

func (s *fakeStore) GetRenderContentItems(ctx context.Context, projectID uuid.UUID) ([]models.ContentItem, error) {
	return s.items, nil
}

func (s *fakeStore) GetVoiceProfile(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error) {
	return s.voice, nil
}

func (s *fakeStore) UpdateVideoProgress(ctx context.Context, id uuid.UUID, status models.VideoStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, progressUpdate{status, progress})
	return nil
}

func (s *fakeStore) SetVideoNarrationKey(ctx context.Context, id uuid.UUID, key string) error {
	s.narrationKey = key
	return nil
}

func (s *fakeStore) CompleteVideo(ctx context.Context, id uuid.UUID, storageKey string, durationSeconds int, fileSizeBytes int64) error {
	s.completedKey = storageKey
	s.completedDur = durationSeconds
	s.completedLen = fileSizeBytes
	return nil
}

func (s *fakeStore) FailVideo(ctx context.Context, id uuid.UUID, errorMessage string) error {
	s.failedMsg = errorMessage
	return nil
}

func (s *fakeStore) GetContentItem(ctx context.Context, id uuid.UUID) (*models.ContentItem, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i], nil
		}
	}
	return nil, fmt.Errorf("content item not found")
}

func (s *fakeStore) GetContentAnalysis(ctx context.Context, contentItemID uuid.UUID) (*models.ContentAnalysis, error) {
	return nil, nil
}

func (s *fakeStore) CreateContentAnalysis(ctx context.Context, analysis *models.ContentAnalysis) error {
	return nil
}

func (s *fakeStore) MarkContentAnalyzed(ctx context.Context, id uuid.UUID, analyzedAt time.Time) error {
	return nil
}

func (s *fakeStore) CreateNarrative(ctx context.Context, narrative *models.Narrative) error {
	return nil
}

func (s *fakeStore) NextNarrativeVersion(ctx context.Context, projectID uuid.UUID) (int, error) {
	return 1, nil
}

type fakeBlobs struct {
	objects  map[string][]byte
	failKeys map[string]bool
	uploads  map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects:  map[string][]byte{},
		failKeys: map[string]bool{},
		uploads:  map[string][]byte{},
	}
}

func (b *fakeBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	if b.failKeys[key] {
		return nil, fmt.Errorf("download failed for %s", key)
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %s", key)
	}
	return data, nil
}

func (b *fakeBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	b.uploads[key] = data
	return nil
}

type fakeTTS struct {
	err    error
	hang   bool // stall until the context dies, like a wedged provider
	voices []string
}

func (t *fakeTTS) Synthesize(ctx context.Context, text, voiceID string) (*services.SpeechResult, error) {
	if t.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	t.voices = append(t.voices, voiceID)
	return &services.SpeechResult{AudioData: []byte("mp3-bytes"), Format: "mp3"}, nil
}

type fakeMedia struct {
	audioDuration    float64
	encodeErr        error
	transitionsErr   error
	encodeDurations  []float64
	transitionsAudio float64
	transitionsUsed  bool
	plainUsed        bool
}

func (m *fakeMedia) EncodeSegment(ctx context.Context, imagePath, outputPath string, durationSeconds float64) error {
	if m.encodeErr != nil {
		return m.encodeErr
	}
	m.encodeDurations = append(m.encodeDurations, durationSeconds)
	return os.WriteFile(outputPath, []byte("segment"), 0644)
}

func (m *fakeMedia) Assemble(ctx context.Context, segmentPaths []string, audioPath, outputPath string) (*services.AssembleResult, error) {
	m.plainUsed = true
	if err := os.WriteFile(outputPath, []byte("final-video"), 0644); err != nil {
		return nil, err
	}
	return &services.AssembleResult{DurationSeconds: m.audioDuration, FileSizeBytes: 11}, nil
}

func (m *fakeMedia) AssembleWithTransitions(ctx context.Context, imagePaths []string, audioSeconds float64, audioPath, outputPath string) (*services.AssembleResult, error) {
	m.transitionsUsed = true
	m.transitionsAudio = audioSeconds
	if m.transitionsErr != nil {
		return nil, m.transitionsErr
	}
	if err := os.WriteFile(outputPath, []byte("final-video"), 0644); err != nil {
		return nil, err
	}
	return &services.AssembleResult{DurationSeconds: m.audioDuration, FileSizeBytes: 11}, nil
}

func (m *fakeMedia) AudioDuration(ctx context.Context, audioPath string) (float64, error) {
	return m.audioDuration, nil
}

// fakeFrames passes bytes through; inputs tagged "corrupt" fail decode.
type fakeFrames struct{}

func (f *fakeFrames) Normalize(data []byte, filename string) ([]byte, error) {
	if bytes.Equal(data, []byte("corrupt")) {
		return nil, &services.MediaDecodeError{Filename: filename, Err: fmt.Errorf("bad image")}
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type renderFixture struct {
	worker *Worker
	store  *fakeStore
	blobs  *fakeBlobs
	media  *fakeMedia
	tts    *fakeTTS
	job    *queue.Job
	video  uuid.UUID
}

func newRenderFixture(t *testing.T, photoCount int) *renderFixture {
	t.Helper()

	projectID := uuid.New()
	videoID := uuid.New()
	narrativeID := uuid.New()

	store := &fakeStore{
		project: &models.Project{ID: projectID, Title: "A Life Remembered"},
		video: &models.Video{
			ID:          videoID,
			ProjectID:   projectID,
			NarrativeID: narrativeID,
			Status:      models.VideoStatusQueued,
			Resolution:  models.ResolutionFHD,
		},
		narrative: &models.Narrative{
			ID:         narrativeID,
			ProjectID:  projectID,
			ScriptText: "She loved the sea, and the sea loved her back.",
			Status:     models.NarrativeStatusApproved,
		},
	}

	blobs := newFakeBlobs()
	for i := 0; i < photoCount; i++ {
		key := fmt.Sprintf("content/photo-%d.jpg", i)
		store.items = append(store.items, models.ContentItem{
			ID:         uuid.New(),
			ProjectID:  projectID,
			Kind:       models.ContentKindPhoto,
			StorageKey: key,
		})
		blobs.objects[key] = []byte(fmt.Sprintf("image-%d", i))
	}

	media := &fakeMedia{audioDuration: 9.0}
	tts := &fakeTTS{}

	w := New(store, nil, blobs, tts, nil, nil, media, &fakeFrames{}, Config{
		FrameWidth:      1920,
		FrameHeight:     1080,
		TempDir:         t.TempDir(),
		HardTimeLimit:   time.Minute,
		DownloadWorkers: 2,
	})

	return &renderFixture{
		worker: w,
		store:  store,
		blobs:  blobs,
		media:  media,
		tts:    tts,
		job:    &queue.Job{ID: uuid.New(), Type: "render_video", ProjectID: projectID, VideoID: &videoID},
		video:  videoID,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRenderHappyPath(t *testing.T) {
	f := newRenderFixture(t, 3)

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}

	// Three photos over 9 seconds of narration: 3s of screen time each.
	if len(f.media.encodeDurations) != 3 {
		t.Fatalf("encoded %d segments, want 3", len(f.media.encodeDurations))
	}
	for _, d := range f.media.encodeDurations {
		if d != 3.0 {
			t.Errorf("segment duration = %v, want 3.0", d)
		}
	}

	wantVideoKey := "videos/" + f.video.String() + ".mp4"
	if f.store.completedKey != wantVideoKey {
		t.Errorf("completed key = %q, want %q", f.store.completedKey, wantVideoKey)
	}
	if f.store.completedDur != 9 {
		t.Errorf("completed duration = %d, want 9", f.store.completedDur)
	}
	if f.store.failedMsg != "" {
		t.Errorf("unexpected failure recorded: %q", f.store.failedMsg)
	}

	wantNarrationKey := "narrations/" + f.video.String() + ".mp3"
	if f.store.narrationKey != wantNarrationKey {
		t.Errorf("narration key = %q, want %q", f.store.narrationKey, wantNarrationKey)
	}
	if _, ok := f.blobs.uploads[wantNarrationKey]; !ok {
		t.Errorf("narration audio was not uploaded")
	}
	if got := f.blobs.uploads[wantVideoKey]; string(got) != "final-video" {
		t.Errorf("final video upload = %q", got)
	}
}

func TestRenderProgressMonotonic(t *testing.T) {
	f := newRenderFixture(t, 5)

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}

	last := -1
	for _, u := range f.store.updates {
		if u.progress < last {
			t.Fatalf("progress went backwards: %d after %d (updates: %v)", u.progress, last, f.store.updates)
		}
		last = u.progress
	}
	if last > 100 {
		t.Errorf("progress exceeded 100: %d", last)
	}
}

func TestProgressTrackerConcurrentUpdates(t *testing.T) {
	// Download goroutines report through one tracker; the persisted sequence
	// must stay non-decreasing no matter how the reports interleave.
	store := &fakeStore{}
	tracker := newProgressTracker(store, uuid.New())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for p := 0; p <= 40; p++ {
				tracker.update(context.Background(), models.VideoStatusDownloadingContent, (p+g)%45)
			}
		}(g)
	}
	wg.Wait()

	last := -1
	for _, u := range store.updates {
		if u.progress < last {
			t.Fatalf("persisted progress went backwards: %d after %d", u.progress, last)
		}
		last = u.progress
	}
}

func TestRenderSkipsFailedDownloads(t *testing.T) {
	f := newRenderFixture(t, 3)
	f.blobs.failKeys["content/photo-1.jpg"] = true

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}

	// Screen time is recomputed over the two survivors: 9s / 2 = 4.5s.
	if len(f.media.encodeDurations) != 2 {
		t.Fatalf("encoded %d segments, want 2", len(f.media.encodeDurations))
	}
	for _, d := range f.media.encodeDurations {
		if d != 4.5 {
			t.Errorf("segment duration = %v, want 4.5", d)
		}
	}
}

func TestRenderSkipsUndecodableImages(t *testing.T) {
	f := newRenderFixture(t, 3)
	f.blobs.objects["content/photo-0.jpg"] = []byte("corrupt")

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}

	if len(f.media.encodeDurations) != 2 {
		t.Errorf("encoded %d segments, want 2", len(f.media.encodeDurations))
	}
}

func TestRenderFailsWhenNothingRenderable(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.blobs.failKeys["content/photo-0.jpg"] = true
	f.blobs.failKeys["content/photo-1.jpg"] = true

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	if !errors.Is(err, ErrNoRenderableContent) {
		t.Fatalf("err = %v, want ErrNoRenderableContent", err)
	}
	if f.store.failedMsg == "" {
		t.Error("failure not recorded on video record")
	}
	if f.store.completedKey != "" {
		t.Error("output fields written despite failure")
	}
}

func TestRenderFailsWithoutNarrative(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.store.narrative = nil

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	if !errors.Is(err, ErrNoNarrative) {
		t.Fatalf("err = %v, want ErrNoNarrative", err)
	}
	if len(f.blobs.uploads) != 0 {
		t.Errorf("storage was written before the narrative check: %v", f.blobs.uploads)
	}
}

func TestRenderFailsWithoutPhotos(t *testing.T) {
	f := newRenderFixture(t, 0)

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestRenderVideoKindExcluded(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.store.items = append(f.store.items, models.ContentItem{
		ID:         uuid.New(),
		Kind:       models.ContentKindVideo,
		StorageKey: "content/clip.mp4",
	})

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}
	if len(f.media.encodeDurations) != 2 {
		t.Errorf("encoded %d segments, want 2 (video item must be excluded)", len(f.media.encodeDurations))
	}
}

func TestRenderTTSNotConfigured(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.tts.err = fmt.Errorf("elevenlabs: %w", services.ErrNotConfigured)

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	if !errors.Is(err, services.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if !strings.Contains(f.store.failedMsg, "not configured") {
		t.Errorf("failure message = %q", f.store.failedMsg)
	}
	if len(f.media.encodeDurations) != 0 {
		t.Error("segments were encoded despite the synthesis failure")
	}
}

func TestRenderHardTimeLimitFailsVideo(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.worker.cfg.HardTimeLimit = 20 * time.Millisecond
	f.tts.hang = true

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if !strings.Contains(f.store.failedMsg, "render timed out") {
		t.Errorf("failure message = %q, want timeout wording", f.store.failedMsg)
	}
	if f.store.completedKey != "" {
		t.Error("output fields written despite timeout")
	}
}

func TestRenderSegmentEncodeFatal(t *testing.T) {
	f := newRenderFixture(t, 2)
	f.media.encodeErr = &services.SegmentEncodeError{ImagePath: "frame_0000.jpg", Stderr: "boom", Err: fmt.Errorf("exit status 1")}

	err := f.worker.handleRenderVideo(context.Background(), f.job)
	var encodeErr *services.SegmentEncodeError
	if !errors.As(err, &encodeErr) {
		t.Fatalf("err = %v, want *SegmentEncodeError", err)
	}
	if f.store.completedKey != "" {
		t.Error("output fields written despite encode failure")
	}
}

func TestRenderUsesVoiceProfile(t *testing.T) {
	f := newRenderFixture(t, 1)
	voiceProfileID := uuid.New()
	providerVoice := "custom-voice-123"
	f.store.video.VoiceProfileID = &voiceProfileID
	f.store.voice = &models.VoiceProfile{ID: voiceProfileID, ProviderVoiceID: &providerVoice}

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}
	if len(f.tts.voices) != 1 || f.tts.voices[0] != providerVoice {
		t.Errorf("synthesize voices = %v, want [%s]", f.tts.voices, providerVoice)
	}
}

func TestRenderTransitionFallback(t *testing.T) {
	f := newRenderFixture(t, 3)
	f.worker.cfg.EnableTransitions = true
	f.media.transitionsErr = &services.AssemblyError{Stage: "transitions", Err: fmt.Errorf("xfade unsupported")}

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}
	if !f.media.transitionsUsed {
		t.Error("transition assembly never attempted")
	}
	if !f.media.plainUsed {
		t.Error("plain assembly fallback never ran")
	}
	if f.store.completedKey == "" {
		t.Error("render did not complete after fallback")
	}
}

func TestRenderTransitionsPreferred(t *testing.T) {
	f := newRenderFixture(t, 3)
	f.worker.cfg.EnableTransitions = true

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("handleRenderVideo: %v", err)
	}
	if !f.media.transitionsUsed {
		t.Error("transition assembly never attempted")
	}
	if f.media.plainUsed {
		t.Error("plain assembly ran despite transitions succeeding")
	}
	// The crossfade path budgets its own per-image timing from the full
	// narration length, so it receives the audio duration, not a split.
	if f.media.transitionsAudio != 9.0 {
		t.Errorf("transitions received %v, want the 9.0s narration duration", f.media.transitionsAudio)
	}
}

func TestRenderRetryOverwritesSameKeys(t *testing.T) {
	f := newRenderFixture(t, 2)

	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	firstKey := f.store.completedKey

	// A retry of the same video lands on the same keys, overwriting in place.
	f.store.video.Status = models.VideoStatusQueued
	if err := f.worker.handleRenderVideo(context.Background(), f.job); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if f.store.completedKey != firstKey {
		t.Errorf("retry changed output key: %q vs %q", f.store.completedKey, firstKey)
	}
}

func TestSpan(t *testing.T) {
	tests := []struct {
		lo, hi, done, total, want int
	}{
		{30, 40, 0, 4, 30},
		{30, 40, 2, 4, 35},
		{30, 40, 4, 4, 40},
		{40, 80, 1, 3, 53},
		{30, 40, 5, 4, 40}, // clamped
		{30, 40, 1, 0, 30}, // empty total
	}
	for _, tt := range tests {
		if got := span(tt.lo, tt.hi, tt.done, tt.total); got != tt.want {
			t.Errorf("span(%d,%d,%d,%d) = %d, want %d", tt.lo, tt.hi, tt.done, tt.total, got, tt.want)
		}
	}
}
