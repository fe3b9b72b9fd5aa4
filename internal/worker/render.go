package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/services"
	"github.com/emberline/keepsake/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Progress sub-ranges per stage. Within a stage the percentage advances with
// completed work, never wall-clock time.
const (
	progressAudioStart    = 0
	progressAudioDone     = 30
	progressDownloadsDone = 40
	progressEncodeDone    = 80
	progressAssemblyDone  = 90
	progressUploadStart   = 90
)

// handleRenderVideo runs one full render attempt. The video record is mutated
// only by this handler for the attempt's lifetime; a failure at any stage
// lands the record in failed with the error message attached.
func (w *Worker) handleRenderVideo(ctx context.Context, job *queue.Job) error {
	if job.VideoID == nil {
		return fmt.Errorf("render job %s has no video id", job.ID)
	}
	videoID := *job.VideoID

	// Hard limit forcibly ends the job; the soft limit only warns so an
	// operator can spot renders that are about to be killed.
	if w.cfg.HardTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.HardTimeLimit)
		defer cancel()
	}
	if w.cfg.SoftTimeLimit > 0 {
		softTimer := time.AfterFunc(w.cfg.SoftTimeLimit, func() {
			log.Printf("[Render] WARNING: video %s exceeded soft time limit (%v)", videoID, w.cfg.SoftTimeLimit)
		})
		defer softTimer.Stop()
	}

	start := time.Now()
	log.Printf("[Render] Starting render for video %s", videoID)

	if err := w.renderVideo(ctx, job.ProjectID, videoID); err != nil {
		w.failVideo(videoID, err)
		return err
	}

	log.Printf("[Render] Video %s completed in %v", videoID, time.Since(start).Round(time.Second))
	return nil
}

// failVideo records the failure on the durable video record. It uses a fresh
// context so the write still lands when the job context is already dead.
func (w *Worker) failVideo(videoID uuid.UUID, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = fmt.Sprintf("render timed out after %v", w.cfg.HardTimeLimit)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.FailVideo(ctx, videoID, msg); err != nil {
		log.Printf("[Render] Failed to mark video %s failed: %v", videoID, err)
	}
}

func (w *Worker) renderVideo(ctx context.Context, projectID, videoID uuid.UUID) error {
	tracker := newProgressTracker(w.store, videoID)

	// --- Preparing -------------------------------------------------------

	tracker.update(ctx, models.VideoStatusPreparing, progressAudioStart)

	video, err := w.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	narrative, err := w.store.GetNarrative(ctx, video.NarrativeID)
	if err != nil {
		return fmt.Errorf("failed to load narrative: %w", err)
	}
	if narrative == nil || narrative.ScriptText == "" {
		return ErrNoNarrative
	}

	items, err := w.store.GetRenderContentItems(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load content items: %w", err)
	}

	// Video-kind items are not rendered yet; only photos enter the pipeline.
	// The sequence is fixed here — edits made after this point do not affect
	// this attempt.
	var photos []models.ContentItem
	for _, item := range items {
		if item.Kind == models.ContentKindPhoto {
			photos = append(photos, item)
		}
	}
	if len(photos) == 0 {
		return ErrNoContent
	}

	workDir, err := os.MkdirTemp(w.cfg.TempDir, "render-"+videoID.String()+"-")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := ctx.Err(); err != nil {
		return err
	}

	// --- GeneratingAudio (0-30) ------------------------------------------

	tracker.update(ctx, models.VideoStatusGeneratingAudio, 5)

	voiceID := ""
	if video.VoiceProfileID != nil {
		profile, err := w.store.GetVoiceProfile(ctx, *video.VoiceProfileID)
		if err != nil {
			return fmt.Errorf("failed to load voice profile: %w", err)
		}
		if profile != nil && profile.ProviderVoiceID != nil {
			voiceID = *profile.ProviderVoiceID
		}
	}

	speech, err := w.tts.Synthesize(ctx, narrative.ScriptText, voiceID)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	tracker.update(ctx, models.VideoStatusGeneratingAudio, 20)

	narrationPath := filepath.Join(workDir, "narration.mp3")
	if err := os.WriteFile(narrationPath, speech.AudioData, 0644); err != nil {
		return fmt.Errorf("failed to write narration audio: %w", err)
	}

	// The narration is a durable artifact in its own right; it survives the
	// attempt regardless of what happens downstream.
	narrationKey := storage.NarrationKey(videoID)
	if err := w.blobs.Upload(ctx, narrationKey, speech.AudioData, "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to upload narration: %w", err)
	}
	if err := w.store.SetVideoNarrationKey(ctx, videoID, narrationKey); err != nil {
		log.Printf("[Render] Failed to persist narration key for video %s: %v", videoID, err)
	}

	tracker.update(ctx, models.VideoStatusGeneratingAudio, progressAudioDone)

	if err := ctx.Err(); err != nil {
		return err
	}

	// --- DownloadingContent (30-40) --------------------------------------

	tracker.update(ctx, models.VideoStatusDownloadingContent, progressAudioDone)

	downloads := w.downloadPhotos(ctx, photos, tracker)
	if err := ctx.Err(); err != nil {
		return err
	}

	tracker.update(ctx, models.VideoStatusDownloadingContent, progressDownloadsDone)

	// --- Rendering (40-90) -----------------------------------------------

	tracker.update(ctx, models.VideoStatusRendering, progressDownloadsDone)

	// Normalize the surviving downloads onto the output canvas. Undecodable
	// files are skipped like failed downloads.
	var framePaths []string
	for i, data := range downloads {
		if data == nil {
			continue
		}
		frame, err := w.frames.Normalize(data, photos[i].StorageKey)
		if err != nil {
			var decodeErr *services.MediaDecodeError
			if errors.As(err, &decodeErr) {
				log.Printf("[Render] Skipping undecodable content %s: %v", photos[i].ID, err)
				continue
			}
			return fmt.Errorf("failed to normalize image: %w", err)
		}

		framePath := filepath.Join(workDir, fmt.Sprintf("frame_%04d.jpg", i))
		if err := os.WriteFile(framePath, frame, 0644); err != nil {
			return fmt.Errorf("failed to write normalized frame: %w", err)
		}
		framePaths = append(framePaths, framePath)
	}

	if len(framePaths) == 0 {
		return ErrNoRenderableContent
	}

	audioDuration, err := w.media.AudioDuration(ctx, narrationPath)
	if err != nil {
		return fmt.Errorf("failed to probe narration duration: %w", err)
	}

	// Screen time is distributed evenly across the images that actually
	// survived download and decode, so the slideshow always spans the full
	// narration.
	perImage := audioDuration / float64(len(framePaths))

	segmentPaths := make([]string, 0, len(framePaths))
	for i, framePath := range framePaths {
		segmentPath := filepath.Join(workDir, fmt.Sprintf("segment_%04d.mp4", i))
		if err := w.media.EncodeSegment(ctx, framePath, segmentPath, perImage); err != nil {
			return err
		}
		segmentPaths = append(segmentPaths, segmentPath)

		tracker.update(ctx, models.VideoStatusRendering,
			span(progressDownloadsDone, progressEncodeDone, i+1, len(framePaths)))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	outputPath := filepath.Join(workDir, "final.mp4")
	result, err := w.assemble(ctx, framePaths, segmentPaths, audioDuration, narrationPath, outputPath)
	if err != nil {
		return err
	}

	tracker.update(ctx, models.VideoStatusRendering, progressAssemblyDone)

	if err := ctx.Err(); err != nil {
		return err
	}

	// --- Uploading (90-100) ----------------------------------------------

	tracker.update(ctx, models.VideoStatusUploading, progressUploadStart)

	videoBytes, err := os.ReadFile(outputPath)
	if err != nil {
		return fmt.Errorf("failed to read final video: %w", err)
	}

	videoKey := storage.VideoKey(videoID)
	if err := w.blobs.Upload(ctx, videoKey, videoBytes, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload final video: %w", err)
	}

	tracker.update(ctx, models.VideoStatusUploading, 95)

	// --- Completed -------------------------------------------------------

	durationSeconds := int(math.Round(result.DurationSeconds))
	if err := w.store.CompleteVideo(ctx, videoID, videoKey, durationSeconds, result.FileSizeBytes); err != nil {
		return fmt.Errorf("failed to mark video completed: %w", err)
	}

	return nil
}

// downloadPhotos fetches photo bytes in parallel, preserving order. A failed
// download leaves a nil slot and the item is excluded from the render.
func (w *Worker) downloadPhotos(ctx context.Context, photos []models.ContentItem, tracker *progressTracker) [][]byte {
	downloads := make([][]byte, len(photos))
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.DownloadWorkers)

	for i, photo := range photos {
		i, photo := i, photo
		g.Go(func() error {
			data, err := w.blobs.Download(gctx, photo.StorageKey)
			if err != nil {
				log.Printf("[Render] Skipping content %s, download failed: %v", photo.ID, err)
			} else {
				downloads[i] = data
			}

			n := atomic.AddInt64(&done, 1)
			tracker.update(gctx, models.VideoStatusDownloadingContent,
				span(progressAudioDone, progressDownloadsDone, int(n), len(photos)))
			return nil
		})
	}
	g.Wait()

	return downloads
}

// assemble produces the final artifact. The crossfade path is opportunistic:
// if it fails for any reason the plain concat assembly runs instead.
func (w *Worker) assemble(ctx context.Context, framePaths, segmentPaths []string, audioSeconds float64, narrationPath, outputPath string) (*services.AssembleResult, error) {
	if w.cfg.EnableTransitions && len(framePaths) > 1 {
		result, err := w.media.AssembleWithTransitions(ctx, framePaths, audioSeconds, narrationPath, outputPath)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[Render] Crossfade assembly failed, falling back to plain concat: %v", err)
	}

	result, err := w.media.Assemble(ctx, segmentPaths, narrationPath, outputPath)
	if err != nil {
		return nil, err
	}
	return result, nil
}
