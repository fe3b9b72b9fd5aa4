package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/google/uuid"
)

// handleAnalyzeContent runs the vision model over one photo and persists the
// structured analysis. Failures leave the content item untouched so the job
// can simply be enqueued again.
func (w *Worker) handleAnalyzeContent(ctx context.Context, job *queue.Job) error {
	if job.ContentID == nil {
		return fmt.Errorf("analyze job %s has no content id", job.ID)
	}

	item, err := w.store.GetContentItem(ctx, *job.ContentID)
	if err != nil {
		return fmt.Errorf("failed to load content item: %w", err)
	}
	if item.Kind != models.ContentKindPhoto {
		log.Printf("[Analyze] Skipping non-photo content %s (kind=%s)", item.ID, item.Kind)
		return nil
	}

	data, err := w.blobs.Download(ctx, item.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to download content bytes: %w", err)
	}

	mimeType := "image/jpeg"
	if item.MimeType != nil && *item.MimeType != "" {
		mimeType = *item.MimeType
	}

	analysis, raw, err := w.vision.AnalyzePhoto(ctx, data, mimeType)
	if err != nil {
		return fmt.Errorf("vision analysis failed for content %s: %w", item.ID, err)
	}

	modelVersion := w.vision.ModelVersion()
	record := &models.ContentAnalysis{
		ID:            uuid.New(),
		ContentItemID: item.ID,
		Description:   analysis.Description,
		RawResponse:   rawResponseJSONB(raw),
		ModelVersion:  &modelVersion,
	}
	if analysis.SceneType != "" {
		record.SceneType = &analysis.SceneType
	}
	if analysis.Sentiment != "" {
		record.Sentiment = &analysis.Sentiment
	}
	record.NarrativeImportance = &analysis.NarrativeImportance
	if analysis.SuggestedNarrativeText != "" {
		record.SuggestedNarrativeText = &analysis.SuggestedNarrativeText
	}

	if err := w.store.CreateContentAnalysis(ctx, record); err != nil {
		return fmt.Errorf("failed to persist analysis: %w", err)
	}
	if err := w.store.MarkContentAnalyzed(ctx, item.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to stamp analyzed_at: %w", err)
	}

	log.Printf("[Analyze] Content %s analyzed (scene=%s)", item.ID, analysis.SceneType)
	return nil
}

// rawResponseJSONB keeps the model's exact output for auditing. Valid JSON is
// stored as-is, anything else is wrapped under a text field.
func rawResponseJSONB(raw string) models.JSONB {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return models.JSONB(parsed)
	}
	return models.JSONB{"text": raw}
}
