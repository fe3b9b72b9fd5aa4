package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Photo analysis via the Gemini vision model.
// Each uploaded photo gets a structured description that the narrative
// drafter later weaves into the script.
// ---------------------------------------------------------------------------

const visionModel = "gemini-2.0-flash"

const visionPrompt = `You are analyzing a personal photo for a memorial video about someone's life.
Describe what you see and respond with JSON only, using this exact shape:
{
  "description": "one or two sentences describing the photo",
  "scene_type": "one of: portrait, group, place, event, object, document, other",
  "sentiment": "one of: joyful, tender, solemn, nostalgic, neutral",
  "narrative_importance": 0.0,
  "suggested_narrative_text": "a single sentence a narrator could say over this photo"
}
narrative_importance is 0.0-1.0: how central this moment looks to a life story.
Do not include markdown fences or any text outside the JSON object.`

// PhotoAnalysis is the structured result of analyzing one photo.
type PhotoAnalysis struct {
	Description            string  `json:"description"`
	SceneType              string  `json:"scene_type"`
	Sentiment              string  `json:"sentiment"`
	NarrativeImportance    float64 `json:"narrative_importance"`
	SuggestedNarrativeText string  `json:"suggested_narrative_text"`
}

// VisionService analyzes photos with the Gemini API.
type VisionService struct {
	apiKey string
	model  string
}

func NewVisionService(apiKey string) *VisionService {
	return &VisionService{
		apiKey: apiKey,
		model:  visionModel,
	}
}

// ModelVersion reports the model identifier stamped onto persisted analyses.
func (s *VisionService) ModelVersion() string {
	return s.model
}

// AnalyzePhoto sends image bytes to the vision model and parses the
// structured response. The raw model output is returned alongside the parsed
// struct so callers can persist it for auditing.
func (s *VisionService) AnalyzePhoto(ctx context.Context, imageData []byte, mimeType string) (*PhotoAnalysis, string, error) {
	if s.apiKey == "" {
		return nil, "", fmt.Errorf("vision: %w", ErrNotConfigured)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create genai client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(visionPrompt),
		genai.NewPartFromBytes(imageData, mimeType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	log.Printf("[Vision] Analyzing photo (%d bytes, %s)", len(imageData), mimeType)

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, config)
	if err != nil {
		return nil, "", fmt.Errorf("vision analysis failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, "", fmt.Errorf("vision model returned empty response")
	}

	analysis, err := parseVisionResponse(raw)
	if err != nil {
		return nil, raw, err
	}

	return analysis, raw, nil
}

// parseVisionResponse decodes the model's JSON, tolerating markdown fences
// the model occasionally adds despite instructions.
func parseVisionResponse(raw string) (*PhotoAnalysis, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var analysis PhotoAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}

	if analysis.Description == "" {
		return nil, fmt.Errorf("vision response missing description")
	}
	if analysis.NarrativeImportance < 0 {
		analysis.NarrativeImportance = 0
	}
	if analysis.NarrativeImportance > 1 {
		analysis.NarrativeImportance = 1
	}

	return &analysis, nil
}
