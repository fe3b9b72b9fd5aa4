package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/services"
	"github.com/google/uuid"
)

// handleGenerateNarrative drafts a new narrative version from the project's
// analyzed photos. Each run creates a fresh version in review status;
// approval is a separate, user-driven step.
func (w *Worker) handleGenerateNarrative(ctx context.Context, job *queue.Job) error {
	project, err := w.store.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	items, err := w.store.GetRenderContentItems(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load content items: %w", err)
	}

	scenes := make([]services.SceneInput, 0, len(items))
	for _, item := range items {
		if item.Kind != models.ContentKindPhoto {
			continue
		}

		scene := services.SceneInput{ContentItemID: item.ID.String()}

		analysis, err := w.store.GetContentAnalysis(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("failed to load analysis for content %s: %w", item.ID, err)
		}
		if analysis != nil {
			scene.Description = analysis.Description
			if analysis.Sentiment != nil {
				scene.Sentiment = *analysis.Sentiment
			}
			if analysis.SuggestedNarrativeText != nil {
				scene.SuggestedText = *analysis.SuggestedNarrativeText
			}
			if analysis.NarrativeImportance != nil {
				scene.Importance = *analysis.NarrativeImportance
			}
		} else if item.OriginalCaption != nil && *item.OriginalCaption != "" {
			// Unanalyzed photos still contribute their caption.
			scene.Description = *item.OriginalCaption
		} else {
			log.Printf("[Narrative] Skipping content %s: no analysis or caption", item.ID)
			continue
		}

		scenes = append(scenes, scene)
	}

	if len(scenes) == 0 {
		return ErrNoContent
	}

	subjectName := project.Title
	if project.SubjectName != nil && *project.SubjectName != "" {
		subjectName = *project.SubjectName
	}

	tone := ""
	if v, ok := job.Data["tone"].(string); ok {
		tone = v
	}

	draft, err := w.drafter.Draft(ctx, subjectName, scenes, tone)
	if err != nil {
		return fmt.Errorf("narrative drafting failed: %w", err)
	}

	version, err := w.store.NextNarrativeVersion(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to allocate narrative version: %w", err)
	}

	wordCount := services.WordCount(draft.ScriptText)
	modelVersion := w.drafter.ModelVersion()

	narrative := &models.Narrative{
		ID:           uuid.New(),
		ProjectID:    job.ProjectID,
		Version:      version,
		Status:       models.NarrativeStatusReview,
		ScriptText:   draft.ScriptText,
		Scenes:       scenesJSONB(draft.Scenes),
		WordCount:    &wordCount,
		ModelVersion: &modelVersion,
	}
	if draft.EstimatedDurationSeconds > 0 {
		narrative.EstimatedDurationSeconds = &draft.EstimatedDurationSeconds
	}

	if err := w.store.CreateNarrative(ctx, narrative); err != nil {
		return fmt.Errorf("failed to persist narrative: %w", err)
	}

	log.Printf("[Narrative] Project %s: drafted narrative v%d (%d scenes, %d words)",
		job.ProjectID, version, len(draft.Scenes), wordCount)
	return nil
}

func scenesJSONB(scenes []services.NarrativeScene) models.JSONB {
	list := make([]interface{}, 0, len(scenes))
	for _, s := range scenes {
		list = append(list, map[string]interface{}{
			"content_item_id":        s.ContentItemID,
			"narration_text":         s.NarrationText,
			"estimated_duration_sec": s.EstimatedDurationSec,
		})
	}
	return models.JSONB{"scenes": list}
}
