package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

const videoColumns = `
	id, project_id, narrative_id, voice_profile_id, status, resolution,
	storage_key, narration_key, duration_seconds, file_size_bytes,
	render_progress, error_message, render_started_at, render_completed_at,
	created_at, updated_at
`

func scanVideo(row interface{ Scan(...interface{}) error }, video *models.Video) error {
	return row.Scan(
		&video.ID, &video.ProjectID, &video.NarrativeID, &video.VoiceProfileID,
		&video.Status, &video.Resolution, &video.StorageKey, &video.NarrationKey,
		&video.DurationSeconds, &video.FileSizeBytes, &video.RenderProgress,
		&video.ErrorMessage, &video.RenderStartedAt, &video.RenderCompletedAt,
		&video.CreatedAt, &video.UpdatedAt,
	)
}

func (db *DB) CreateVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (
			id, project_id, narrative_id, voice_profile_id, status, resolution, render_progress
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		video.ID, video.ProjectID, video.NarrativeID, video.VoiceProfileID,
		video.Status, video.Resolution, video.RenderProgress,
	).Scan(&video.CreatedAt, &video.UpdatedAt)
}

func (db *DB) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	video := &models.Video{}
	err := scanVideo(db.QueryRowContext(ctx, query, id), video)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("video not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return video, nil
}

func (db *DB) ListProjectVideos(ctx context.Context, projectID uuid.UUID) ([]models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE project_id = $1 ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var video models.Video
		if err := scanVideo(rows, &video); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

// UpdateVideoProgress records the current stage and progress percentage.
// The render start time is stamped on the first transition out of queued.
func (db *DB) UpdateVideoProgress(ctx context.Context, id uuid.UUID, status models.VideoStatus, progress int) error {
	query := `
		UPDATE videos
		SET status = $1, render_progress = $2,
		    render_started_at = COALESCE(render_started_at, NOW()),
		    updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, status, progress, id)
	return err
}

func (db *DB) SetVideoNarrationKey(ctx context.Context, id uuid.UUID, narrationKey string) error {
	query := `UPDATE videos SET narration_key = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, narrationKey, id)
	return err
}

// CompleteVideo stamps the durable output of a successful render. Output
// fields are written only here, so a video never exposes a partial artifact.
func (db *DB) CompleteVideo(ctx context.Context, id uuid.UUID, storageKey string, durationSeconds int, fileSizeBytes int64) error {
	query := `
		UPDATE videos
		SET status = $1, render_progress = 100, storage_key = $2,
		    duration_seconds = $3, file_size_bytes = $4,
		    render_completed_at = $5, error_message = NULL, updated_at = NOW()
		WHERE id = $6
	`
	_, err := db.ExecContext(
		ctx, query,
		models.VideoStatusCompleted, storageKey, durationSeconds, fileSizeBytes,
		time.Now(), id,
	)
	return err
}

// FailVideo marks the attempt failed with a human-readable message. No
// completion time is stamped; output fields are left untouched.
func (db *DB) FailVideo(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE videos
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, models.VideoStatusFailed, errorMessage, id)
	return err
}
