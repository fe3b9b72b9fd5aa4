package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

// VideoStatus is the render state machine for a video record.
// Rendering walks queued -> preparing -> generating_audio -> downloading_content
// -> rendering -> uploading -> completed. Failed is reachable from every
// non-terminal state. Completed and Failed are terminal; a retry is a new
// attempt against the same video, never a resurrection of this one.
type VideoStatus string

const (
	VideoStatusQueued             VideoStatus = "queued"
	VideoStatusPreparing          VideoStatus = "preparing"
	VideoStatusGeneratingAudio    VideoStatus = "generating_audio"
	VideoStatusDownloadingContent VideoStatus = "downloading_content"
	VideoStatusRendering          VideoStatus = "rendering"
	VideoStatusUploading          VideoStatus = "uploading"
	VideoStatusCompleted          VideoStatus = "completed"
	VideoStatusFailed             VideoStatus = "failed"
)

// Terminal reports whether the status is an end state of the render machine.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

type VideoResolution string

const (
	ResolutionHD  VideoResolution = "720p"
	ResolutionFHD VideoResolution = "1080p"
	ResolutionUHD VideoResolution = "4k"
)

// Dimensions returns the output canvas for a resolution.
// Unknown values fall back to 1080p.
func (r VideoResolution) Dimensions() (width, height int) {
	switch r {
	case ResolutionHD:
		return 1280, 720
	case ResolutionUHD:
		return 3840, 2160
	default:
		return 1920, 1080
	}
}

type ContentKind string

const (
	ContentKindPhoto ContentKind = "photo"
	ContentKindVideo ContentKind = "video"
)

type ContentSource string

const (
	ContentSourceUpload    ContentSource = "upload"
	ContentSourceInstagram ContentSource = "instagram"
	ContentSourceFacebook  ContentSource = "facebook"
)

type ContentStatus string

const (
	ContentStatusUploading  ContentStatus = "uploading"
	ContentStatusProcessing ContentStatus = "processing"
	ContentStatusReady      ContentStatus = "ready"
	ContentStatusFailed     ContentStatus = "failed"
)

type NarrativeStatus string

const (
	NarrativeStatusGenerating NarrativeStatus = "generating"
	NarrativeStatusReview     NarrativeStatus = "review"
	NarrativeStatusApproved   NarrativeStatus = "approved"
	NarrativeStatusRejected   NarrativeStatus = "rejected"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

type Project struct {
	ID             uuid.UUID     `json:"id"`
	UserID         *uuid.UUID    `json:"user_id,omitempty"`
	Title          string        `json:"title"`
	SubjectName    *string       `json:"subject_name,omitempty"`
	Status         ProjectStatus `json:"status"`
	CurrentVideoID *uuid.UUID    `json:"current_video_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
}

type ContentItem struct {
	ID                  uuid.UUID     `json:"id"`
	ProjectID           uuid.UUID     `json:"project_id"`
	Kind                ContentKind   `json:"kind"`
	Source              ContentSource `json:"source"`
	Status              ContentStatus `json:"status"`
	StorageKey          string        `json:"storage_key"`
	ThumbnailKey        *string       `json:"thumbnail_key,omitempty"`
	MimeType            *string       `json:"mime_type,omitempty"`
	FileSizeBytes       *int64        `json:"file_size_bytes,omitempty"`
	OriginalCaption     *string       `json:"original_caption,omitempty"`
	TakenAt             *time.Time    `json:"taken_at,omitempty"`
	NarrativeOrder      *int          `json:"narrative_order,omitempty"`
	IncludedInNarrative bool          `json:"included_in_narrative"`
	AnalyzedAt          *time.Time    `json:"analyzed_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	DeletedAt           *time.Time    `json:"deleted_at,omitempty"`
}

type ContentAnalysis struct {
	ID                     uuid.UUID `json:"id"`
	ContentItemID          uuid.UUID `json:"content_item_id"`
	Description            string    `json:"description"`
	SceneType              *string   `json:"scene_type,omitempty"`
	Sentiment              *string   `json:"sentiment,omitempty"`
	NarrativeImportance    *float64  `json:"narrative_importance,omitempty"`
	SuggestedNarrativeText *string   `json:"suggested_narrative_text,omitempty"`
	RawResponse            JSONB     `json:"raw_response,omitempty"`
	ModelVersion           *string   `json:"model_version,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

type Narrative struct {
	ID                       uuid.UUID       `json:"id"`
	ProjectID                uuid.UUID       `json:"project_id"`
	Version                  int             `json:"version"`
	Status                   NarrativeStatus `json:"status"`
	ScriptText               string          `json:"script_text"`
	Scenes                   JSONB           `json:"scenes,omitempty"`
	WordCount                *int            `json:"word_count,omitempty"`
	EstimatedDurationSeconds *int            `json:"estimated_duration_seconds,omitempty"`
	ModelVersion             *string         `json:"model_version,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

type VoiceProfile struct {
	ID              uuid.UUID  `json:"id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	Name            string     `json:"name"`
	ProviderVoiceID *string    `json:"provider_voice_id,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Video is one render attempt for a project. The orchestrator owning the
// render is the only writer of status, progress and error fields; the output
// key/duration/size are populated only after the attempt completes.
type Video struct {
	ID                uuid.UUID       `json:"id"`
	ProjectID         uuid.UUID       `json:"project_id"`
	NarrativeID       uuid.UUID       `json:"narrative_id"`
	VoiceProfileID    *uuid.UUID      `json:"voice_profile_id,omitempty"`
	Status            VideoStatus     `json:"status"`
	Resolution        VideoResolution `json:"resolution"`
	StorageKey        *string         `json:"storage_key,omitempty"`
	NarrationKey      *string         `json:"narration_key,omitempty"`
	DurationSeconds   *int            `json:"duration_seconds,omitempty"`
	FileSizeBytes     *int64          `json:"file_size_bytes,omitempty"`
	RenderProgress    int             `json:"render_progress"`
	ErrorMessage      *string         `json:"error_message,omitempty"`
	RenderStartedAt   *time.Time      `json:"render_started_at,omitempty"`
	RenderCompletedAt *time.Time      `json:"render_completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DTOs for API responses

type VideoResponse struct {
	ID             uuid.UUID       `json:"id"`
	NarrativeID    uuid.UUID       `json:"narrative_id"`
	Status         VideoStatus     `json:"status"`
	Resolution     VideoResolution `json:"resolution"`
	Duration       *int            `json:"duration,omitempty"`
	FileSize       *int64          `json:"file_size,omitempty"`
	DownloadURL    *string         `json:"download_url,omitempty"`
	RenderProgress int             `json:"render_progress"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CreateProjectRequest struct {
	Title       string  `json:"title"`
	SubjectName *string `json:"subject_name,omitempty"`
}

type RenderRequest struct {
	NarrativeID    uuid.UUID  `json:"narrative_id"`
	VoiceProfileID *uuid.UUID `json:"voice_profile_id,omitempty"`
	Resolution     *string    `json:"resolution,omitempty"` // "720p", "1080p", "4k"; default 1080p
}

type GenerateNarrativeRequest struct {
	Tone *string `json:"tone,omitempty"` // "reflective" when omitted
}

type EnqueuedResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}
