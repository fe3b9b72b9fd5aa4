package api

import (
	"encoding/json"
	"net/http"

	"github.com/emberline/keepsake/internal/db"
	"github.com/emberline/keepsake/internal/models"
	"github.com/emberline/keepsake/internal/queue"
	"github.com/emberline/keepsake/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// downloadURLExpirySeconds is how long a signed download link stays valid.
const downloadURLExpirySeconds = 3600

type Handler struct {
	db      *db.DB
	queue   *queue.Queue
	storage *storage.Storage
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}

	project := &models.Project{
		ID:          uuid.New(),
		Title:       req.Title,
		SubjectName: req.SubjectName,
		Status:      models.ProjectStatusActive,
	}

	if err := h.db.CreateProject(r.Context(), project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, project)
}

// GetProject handles GET /v1/projects/{projectID}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// ListVideos handles GET /v1/projects/{projectID}/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return
	}

	if _, err := h.db.GetProject(r.Context(), projectID); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	videos, err := h.db.ListProjectVideos(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	responses := make([]models.VideoResponse, 0, len(videos))
	for _, video := range videos {
		responses = append(responses, buildVideoResponse(video))
	}

	respondJSON(w, http.StatusOK, responses)
}

// GetVideo handles GET /v1/projects/{projectID}/videos/{videoID}.
// Clients poll this during a render for status and progress.
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadProjectVideo(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, buildVideoResponse(*video))
}

// RenderVideo handles POST /v1/projects/{projectID}/videos/render.
// It validates the narrative and voice profile, inserts a queued video row
// and enqueues the render job. All actual work happens in the worker.
func (h *Handler) RenderVideo(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return
	}

	if _, err := h.db.GetProject(r.Context(), projectID); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	var req models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NarrativeID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "narrative_id is required")
		return
	}

	narrative, err := h.db.GetProjectNarrative(r.Context(), projectID, req.NarrativeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load narrative")
		return
	}
	if narrative == nil {
		respondError(w, http.StatusNotFound, "Narrative not found for this project")
		return
	}
	if narrative.Status != models.NarrativeStatusApproved {
		respondError(w, http.StatusConflict, "Narrative must be approved before rendering")
		return
	}

	if req.VoiceProfileID != nil {
		profile, err := h.db.GetVoiceProfile(r.Context(), *req.VoiceProfileID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load voice profile")
			return
		}
		if profile == nil {
			respondError(w, http.StatusNotFound, "Voice profile not found")
			return
		}
	}

	resolution := models.ResolutionFHD
	if req.Resolution != nil && *req.Resolution != "" {
		switch models.VideoResolution(*req.Resolution) {
		case models.ResolutionHD, models.ResolutionFHD, models.ResolutionUHD:
			resolution = models.VideoResolution(*req.Resolution)
		default:
			respondError(w, http.StatusBadRequest, "Invalid resolution: must be 720p, 1080p or 4k")
			return
		}
	}

	video := &models.Video{
		ID:             uuid.New(),
		ProjectID:      projectID,
		NarrativeID:    req.NarrativeID,
		VoiceProfileID: req.VoiceProfileID,
		Status:         models.VideoStatusQueued,
		Resolution:     resolution,
		RenderProgress: 0,
	}

	if err := h.db.CreateVideo(r.Context(), video); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create video record")
		return
	}

	if err := h.db.SetProjectCurrentVideo(r.Context(), projectID, video.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	jobID := uuid.New()
	if err := h.queue.EnqueueRenderVideo(r.Context(), projectID, video.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue render job")
		return
	}

	respondJSON(w, http.StatusAccepted, buildVideoResponse(*video))
}

// GetVideoDownload handles GET /v1/projects/{projectID}/videos/{videoID}/download.
// Only completed renders have a downloadable artifact.
func (h *Handler) GetVideoDownload(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadProjectVideo(w, r)
	if !ok {
		return
	}

	if video.Status != models.VideoStatusCompleted || video.StorageKey == nil {
		respondError(w, http.StatusConflict, "Video is not completed yet")
		return
	}

	url, err := h.storage.GetSignedURL(r.Context(), *video.StorageKey, downloadURLExpirySeconds)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create download URL")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"download_url": url,
		"expires_in":   downloadURLExpirySeconds,
	})
}

// GenerateNarrative handles POST /v1/projects/{projectID}/narratives/generate
func (h *Handler) GenerateNarrative(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return
	}

	if _, err := h.db.GetProject(r.Context(), projectID); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	tone := ""
	if r.ContentLength > 0 {
		var req models.GenerateNarrativeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Tone != nil {
			tone = *req.Tone
		}
	}

	jobID := uuid.New()
	if err := h.queue.EnqueueGenerateNarrative(r.Context(), projectID, jobID, tone); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue narrative job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueuedResponse{JobID: jobID, Status: "queued"})
}

// AnalyzeContent handles POST /v1/projects/{projectID}/content/{contentID}/analyze
func (h *Handler) AnalyzeContent(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return
	}
	contentID, ok := parseUUIDParam(w, r, "contentID")
	if !ok {
		return
	}

	item, err := h.db.GetContentItem(r.Context(), contentID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Content item not found")
		return
	}
	if item.ProjectID != projectID {
		respondError(w, http.StatusNotFound, "Content item not found")
		return
	}
	if item.Kind != models.ContentKindPhoto {
		respondError(w, http.StatusBadRequest, "Only photos can be analyzed")
		return
	}

	jobID := uuid.New()
	if err := h.queue.EnqueueAnalyzeContent(r.Context(), projectID, contentID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue analyze job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueuedResponse{JobID: jobID, Status: "queued"})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadProjectVideo resolves {projectID}/{videoID} and enforces that the video
// belongs to the project. Writes the error response itself on failure.
func (h *Handler) loadProjectVideo(w http.ResponseWriter, r *http.Request) (*models.Video, bool) {
	projectID, ok := parseUUIDParam(w, r, "projectID")
	if !ok {
		return nil, false
	}
	videoID, ok := parseUUIDParam(w, r, "videoID")
	if !ok {
		return nil, false
	}

	video, err := h.db.GetVideo(r.Context(), videoID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Video not found")
		return nil, false
	}
	if video.ProjectID != projectID {
		respondError(w, http.StatusNotFound, "Video not found")
		return nil, false
	}

	return video, true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func buildVideoResponse(video models.Video) models.VideoResponse {
	return models.VideoResponse{
		ID:             video.ID,
		NarrativeID:    video.NarrativeID,
		Status:         video.Status,
		Resolution:     video.Resolution,
		Duration:       video.DurationSeconds,
		FileSize:       video.FileSizeBytes,
		RenderProgress: video.RenderProgress,
		ErrorMessage:   video.ErrorMessage,
		CreatedAt:      video.CreatedAt,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
