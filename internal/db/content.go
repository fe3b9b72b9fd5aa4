package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

const contentColumns = `
	id, project_id, kind, source, status, storage_key, thumbnail_key,
	mime_type, file_size_bytes, original_caption, taken_at,
	narrative_order, included_in_narrative, analyzed_at,
	created_at, updated_at, deleted_at
`

func (db *DB) GetContentItem(ctx context.Context, id uuid.UUID) (*models.ContentItem, error) {
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1 AND deleted_at IS NULL`

	item := &models.ContentItem{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.ProjectID, &item.Kind, &item.Source, &item.Status,
		&item.StorageKey, &item.ThumbnailKey, &item.MimeType, &item.FileSizeBytes,
		&item.OriginalCaption, &item.TakenAt, &item.NarrativeOrder,
		&item.IncludedInNarrative, &item.AnalyzedAt,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}

	return item, nil
}

// GetRenderContentItems returns the narrative-included, non-deleted content of
// a project in render order: explicit narrative_order first, then capture
// time, then creation time. Each later key breaks ties in the earlier one.
func (db *DB) GetRenderContentItems(ctx context.Context, projectID uuid.UUID) ([]models.ContentItem, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_items
		WHERE project_id = $1
		  AND deleted_at IS NULL
		  AND included_in_narrative = TRUE
		ORDER BY narrative_order ASC NULLS LAST, taken_at ASC NULLS LAST, created_at ASC
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var item models.ContentItem
		err := rows.Scan(
			&item.ID, &item.ProjectID, &item.Kind, &item.Source, &item.Status,
			&item.StorageKey, &item.ThumbnailKey, &item.MimeType, &item.FileSizeBytes,
			&item.OriginalCaption, &item.TakenAt, &item.NarrativeOrder,
			&item.IncludedInNarrative, &item.AnalyzedAt,
			&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// CreateContentAnalysis upserts the analysis row for a content item. Re-running
// analysis replaces the previous result rather than accumulating rows.
func (db *DB) CreateContentAnalysis(ctx context.Context, analysis *models.ContentAnalysis) error {
	query := `
		INSERT INTO content_analysis (
			id, content_item_id, description, scene_type, sentiment,
			narrative_importance, suggested_narrative_text, raw_response, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (content_item_id) DO UPDATE SET
			description = EXCLUDED.description,
			scene_type = EXCLUDED.scene_type,
			sentiment = EXCLUDED.sentiment,
			narrative_importance = EXCLUDED.narrative_importance,
			suggested_narrative_text = EXCLUDED.suggested_narrative_text,
			raw_response = EXCLUDED.raw_response,
			model_version = EXCLUDED.model_version
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		analysis.ID, analysis.ContentItemID, analysis.Description, analysis.SceneType,
		analysis.Sentiment, analysis.NarrativeImportance, analysis.SuggestedNarrativeText,
		analysis.RawResponse, analysis.ModelVersion,
	).Scan(&analysis.CreatedAt)
}

func (db *DB) GetContentAnalysis(ctx context.Context, contentItemID uuid.UUID) (*models.ContentAnalysis, error) {
	query := `
		SELECT
			id, content_item_id, description, scene_type, sentiment,
			narrative_importance, suggested_narrative_text, raw_response,
			model_version, created_at
		FROM content_analysis
		WHERE content_item_id = $1
	`

	analysis := &models.ContentAnalysis{}
	err := db.QueryRowContext(ctx, query, contentItemID).Scan(
		&analysis.ID, &analysis.ContentItemID, &analysis.Description,
		&analysis.SceneType, &analysis.Sentiment, &analysis.NarrativeImportance,
		&analysis.SuggestedNarrativeText, &analysis.RawResponse,
		&analysis.ModelVersion, &analysis.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // not analyzed yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content analysis: %w", err)
	}

	return analysis, nil
}

func (db *DB) MarkContentAnalyzed(ctx context.Context, id uuid.UUID, analyzedAt time.Time) error {
	query := `UPDATE content_items SET analyzed_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, analyzedAt, id)
	return err
}
