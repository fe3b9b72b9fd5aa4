package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

func (db *DB) GetVoiceProfile(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error) {
	query := `
		SELECT id, user_id, name, provider_voice_id, status, created_at
		FROM voice_profiles
		WHERE id = $1
	`

	profile := &models.VoiceProfile{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID, &profile.UserID, &profile.Name,
		&profile.ProviderVoiceID, &profile.Status, &profile.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // voice profile is optional; the default voice applies
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice profile: %w", err)
	}

	return profile, nil
}
