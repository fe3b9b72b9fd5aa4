package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateNarrative(ctx context.Context, narrative *models.Narrative) error {
	query := `
		INSERT INTO narratives (
			id, project_id, version, status, script_text, scenes,
			word_count, estimated_duration_seconds, model_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		narrative.ID, narrative.ProjectID, narrative.Version, narrative.Status,
		narrative.ScriptText, narrative.Scenes, narrative.WordCount,
		narrative.EstimatedDurationSeconds, narrative.ModelVersion,
	).Scan(&narrative.CreatedAt, &narrative.UpdatedAt)
}

func (db *DB) GetNarrative(ctx context.Context, id uuid.UUID) (*models.Narrative, error) {
	query := `
		SELECT
			id, project_id, version, status, script_text, scenes,
			word_count, estimated_duration_seconds, model_version,
			created_at, updated_at
		FROM narratives
		WHERE id = $1
	`

	narrative := &models.Narrative{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&narrative.ID, &narrative.ProjectID, &narrative.Version, &narrative.Status,
		&narrative.ScriptText, &narrative.Scenes, &narrative.WordCount,
		&narrative.EstimatedDurationSeconds, &narrative.ModelVersion,
		&narrative.CreatedAt, &narrative.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // caller decides whether a missing narrative is fatal
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get narrative: %w", err)
	}

	return narrative, nil
}

func (db *DB) GetProjectNarrative(ctx context.Context, projectID, narrativeID uuid.UUID) (*models.Narrative, error) {
	narrative, err := db.GetNarrative(ctx, narrativeID)
	if err != nil || narrative == nil {
		return narrative, err
	}
	if narrative.ProjectID != projectID {
		return nil, nil
	}
	return narrative, nil
}

// NextNarrativeVersion returns 1 + the highest existing version for a project.
func (db *DB) NextNarrativeVersion(ctx context.Context, projectID uuid.UUID) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM narratives WHERE project_id = $1`

	var version int
	if err := db.QueryRowContext(ctx, query, projectID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get narrative version: %w", err)
	}
	return version, nil
}
