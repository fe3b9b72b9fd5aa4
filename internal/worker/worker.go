package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/services"
	"github.com/google/uuid"
)

// Precondition failures — job-fatal and user-actionable.
var (
	ErrNoNarrative         = errors.New("video has no narrative")
	ErrNoContent           = errors.New("project has no renderable content items")
	ErrNoRenderableContent = errors.New("no content items could be prepared for rendering")
)

// Store is the slice of the database layer the worker depends on.
// *db.DB satisfies it.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	GetNarrative(ctx context.Context, id uuid.UUID) (*models.Narrative, error)
	GetRenderContentItems(ctx context.Context, projectID uuid.UUID) ([]models.ContentItem, error)
	GetVoiceProfile(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error)
	UpdateVideoProgress(ctx context.Context, id uuid.UUID, status models.VideoStatus, progress int) error
	SetVideoNarrationKey(ctx context.Context, id uuid.UUID, narrationKey string) error
	CompleteVideo(ctx context.Context, id uuid.UUID, storageKey string, durationSeconds int, fileSizeBytes int64) error
	FailVideo(ctx context.Context, id uuid.UUID, errorMessage string) error

	GetContentItem(ctx context.Context, id uuid.UUID) (*models.ContentItem, error)
	GetContentAnalysis(ctx context.Context, contentItemID uuid.UUID) (*models.ContentAnalysis, error)
	CreateContentAnalysis(ctx context.Context, analysis *models.ContentAnalysis) error
	MarkContentAnalyzed(ctx context.Context, id uuid.UUID, analyzedAt time.Time) error
	CreateNarrative(ctx context.Context, narrative *models.Narrative) error
	NextNarrativeVersion(ctx context.Context, projectID uuid.UUID) (int, error)
}

// BlobStore is the object-storage surface the worker uses. Keys are opaque
// strings. *storage.Storage satisfies it.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// MediaEngine runs the encode and assembly subprocesses.
// *services.FFmpegService satisfies it.
type MediaEngine interface {
	EncodeSegment(ctx context.Context, imagePath, outputPath string, durationSeconds float64) error
	Assemble(ctx context.Context, segmentPaths []string, audioPath, outputPath string) (*services.AssembleResult, error)
	AssembleWithTransitions(ctx context.Context, imagePaths []string, audioSeconds float64, audioPath, outputPath string) (*services.AssembleResult, error)
	AudioDuration(ctx context.Context, audioPath string) (float64, error)
}

// FrameNormalizer letterboxes source photos onto the output canvas.
// *services.Normalizer satisfies it.
type FrameNormalizer interface {
	Normalize(data []byte, filename string) ([]byte, error)
}

// PhotoAnalyzer produces a structured description of one photo.
// *services.VisionService satisfies it.
type PhotoAnalyzer interface {
	AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) (*services.PhotoAnalysis, string, error)
	ModelVersion() string
}

// ScriptDrafter writes the narration script from analyzed scenes.
// *services.NarrativeService satisfies it.
type ScriptDrafter interface {
	Draft(ctx context.Context, subjectName string, scenes []services.SceneInput, tone string) (*services.NarrativeDraft, error)
	ModelVersion() string
}

// Config carries the render tuning the worker needs from the environment.
type Config struct {
	FrameWidth        int
	FrameHeight       int
	TempDir           string
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	EnableTransitions bool
	DownloadWorkers   int
}

type Worker struct {
	store   Store
	queue   *queue.Queue
	blobs   BlobStore
	tts     services.SpeechSynthesizer
	vision  PhotoAnalyzer
	drafter ScriptDrafter
	media   MediaEngine
	frames  FrameNormalizer
	cfg     Config
}

func New(
	store Store,
	q *queue.Queue,
	blobs BlobStore,
	tts services.SpeechSynthesizer,
	vision PhotoAnalyzer,
	drafter ScriptDrafter,
	media MediaEngine,
	frames FrameNormalizer,
	cfg Config,
) *Worker {
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 4
	}
	return &Worker{
		store:   store,
		queue:   q,
		blobs:   blobs,
		tts:     tts,
		vision:  vision,
		drafter: drafter,
		media:   media,
		frames:  frames,
		cfg:     cfg,
	}
}

// Start begins processing jobs from all queues. It blocks until ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueRenderVideo, w.handleRenderVideo)
		go w.processQueue(ctx, queue.QueueAnalyzeContent, w.handleAnalyzeContent)
		go w.processQueue(ctx, queue.QueueGenerateNarrative, w.handleGenerateNarrative)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("[Worker] Processing job %s (type: %s, project: %s)", job.ID, job.Type, job.ProjectID)

			if err := handler(ctx, job); err != nil {
				log.Printf("[Worker] Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("[Worker] Job %s completed successfully", job.ID)
			}
		}
	}
}
