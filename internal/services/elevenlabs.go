package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses the ElevenLabs REST API to convert narration scripts into speech.
// Model: eleven_multilingual_v2 — slower than Flash but the most natural
// delivery, which matters for long-form narration.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB"
	elevenLabsOutputFormat = "mp3_44100_128" // 44.1kHz 128kbps MP3
)

// ElevenLabsService handles text-to-speech via the ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

// Ensure ElevenLabsService implements SpeechSynthesizer at compile time.
var _ SpeechSynthesizer = (*ElevenLabsService)(nil)

// NewElevenLabsService creates an ElevenLabs TTS service. defaultVoiceID may
// be empty, in which case the built-in default voice is used. An empty apiKey
// is allowed at construction; Synthesize fails with ErrNotConfigured.
func NewElevenLabsService(apiKey, defaultVoiceID string) *ElevenLabsService {
	if defaultVoiceID == "" {
		defaultVoiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: defaultVoiceID,
		modelID: elevenLabsDefaultModel,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// Synthesize converts text to speech. voiceID overrides the service-level
// default when non-empty.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w", ErrNotConfigured)
	}
	if text == "" {
		return nil, fmt.Errorf("elevenlabs: empty narration text")
	}

	effectiveVoice := s.voiceID
	if voiceID != "" {
		effectiveVoice = voiceID
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.55, // moderate stability, allows some emotional range
			SimilarityBoost: 0.80,
			Style:           0.25,
			UseSpeakerBoost: true,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	// POST /v1/text-to-speech/{voice_id}?output_format=mp3_44100_128
	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		elevenLabsBaseURL, effectiveVoice, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d)",
		effectiveVoice, s.modelID, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body IS the audio file.
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	log.Printf("[ElevenLabs] Speech generated (%d bytes)", len(audioData))

	return &SpeechResult{
		AudioData: audioData,
		Format:    "mp3",
	}, nil
}
