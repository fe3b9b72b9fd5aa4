package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// Narrative drafting via the OpenAI chat API.
// The drafter takes the per-photo analyses in display order and produces the
// narration script plus a scene list tying script beats back to photos.
// ---------------------------------------------------------------------------

const narrativeModel = "gpt-4o"

// NarrativeScene ties one beat of the script to a content item.
type NarrativeScene struct {
	ContentItemID        string  `json:"content_item_id"`
	NarrationText        string  `json:"narration_text"`
	EstimatedDurationSec float64 `json:"estimated_duration_sec"`
}

// NarrativeDraft is the structured output of one drafting run.
type NarrativeDraft struct {
	ScriptText               string           `json:"script_text"`
	Scenes                   []NarrativeScene `json:"scenes"`
	EstimatedDurationSeconds int              `json:"estimated_duration_seconds"`
}

// SceneInput describes one analyzed photo handed to the drafter.
type SceneInput struct {
	ContentItemID string  `json:"content_item_id"`
	Description   string  `json:"description"`
	Sentiment     string  `json:"sentiment,omitempty"`
	SuggestedText string  `json:"suggested_text,omitempty"`
	Importance    float64 `json:"importance,omitempty"`
}

// NarrativeService drafts narration scripts with OpenAI.
type NarrativeService struct {
	client *openai.Client
	model  string
	hasKey bool
}

func NewNarrativeService(apiKey string) *NarrativeService {
	return &NarrativeService{
		client: openai.NewClient(apiKey),
		model:  narrativeModel,
		hasKey: apiKey != "",
	}
}

// ModelVersion reports the model identifier stamped onto persisted narratives.
func (s *NarrativeService) ModelVersion() string {
	return s.model
}

const narrativeSystemPrompt = `You are a compassionate writer drafting the narration for a memorial video celebrating one person's life.
You receive a JSON array of photos, each with a description of what it shows, in the order they will appear on screen.
Write a warm, dignified narration that flows through the photos as one continuous story.

Respond with JSON only, using this exact shape:
{
  "script_text": "the full narration as one continuous text",
  "scenes": [
    {"content_item_id": "...", "narration_text": "the sentence(s) spoken over this photo", "estimated_duration_sec": 0.0}
  ],
  "estimated_duration_seconds": 0
}

Rules:
- Include every photo exactly once, in the given order.
- script_text must equal the scene narration texts joined in order.
- Aim for 2-4 spoken seconds per photo; estimate durations at a natural narration pace of ~2.5 words per second.
- Never invent names, dates or facts not present in the photo descriptions.`

// Draft produces a narration script for the given ordered scenes. subjectName
// names the person the video is about; tone ("" = default) adjusts delivery.
func (s *NarrativeService) Draft(ctx context.Context, subjectName string, scenes []SceneInput, tone string) (*NarrativeDraft, error) {
	if !s.hasKey {
		return nil, fmt.Errorf("narrative: %w", ErrNotConfigured)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("narrative: no scenes to draft from")
	}

	scenesJSON, err := json.Marshal(scenes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scene inputs: %w", err)
	}

	var userPrompt strings.Builder
	fmt.Fprintf(&userPrompt, "The video is about %s.\n", subjectName)
	if tone != "" {
		fmt.Fprintf(&userPrompt, "Desired tone: %s.\n", tone)
	}
	userPrompt.WriteString("Photos in display order:\n")
	userPrompt.Write(scenesJSON)

	log.Printf("[Narrative] Drafting script (%d scenes, tone=%q)", len(scenes), tone)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: narrativeSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt.String(),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})

	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var draft NarrativeDraft
	if err := json.Unmarshal([]byte(rawContent), &draft); err != nil {
		log.Printf("[Narrative] parse failed: %v", err)
		return nil, fmt.Errorf("failed to parse narrative draft: %w", err)
	}

	if draft.ScriptText == "" {
		return nil, fmt.Errorf("narrative draft has empty script")
	}
	if len(draft.Scenes) == 0 {
		return nil, fmt.Errorf("narrative draft has no scenes")
	}

	log.Printf("[Narrative] Draft complete (%d scenes, ~%ds)", len(draft.Scenes), draft.EstimatedDurationSeconds)

	return &draft, nil
}

// WordCount counts whitespace-separated words in a script.
func WordCount(script string) int {
	return len(strings.Fields(script))
}
