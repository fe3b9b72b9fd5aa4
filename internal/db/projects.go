package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (
			id, user_id, title, subject_name, status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, project.UserID, project.Title, project.SubjectName, project.Status,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
}

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT
			id, user_id, title, subject_name, status, current_video_id,
			created_at, updated_at, deleted_at
		FROM projects
		WHERE id = $1 AND deleted_at IS NULL
	`

	project := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.UserID, &project.Title, &project.SubjectName,
		&project.Status, &project.CurrentVideoID,
		&project.CreatedAt, &project.UpdatedAt, &project.DeletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// SetProjectCurrentVideo points the project at its most recent render attempt.
func (db *DB) SetProjectCurrentVideo(ctx context.Context, projectID, videoID uuid.UUID) error {
	query := `UPDATE projects SET current_video_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, videoID, projectID)
	return err
}
