package services

import (
	"context"
	"errors"
)

// ---------------------------------------------------------------------------
// Speech synthesis — common interface for text-to-speech providers.
// The render worker depends on this interface so tests can substitute a
// fake and future providers can slot in without touching the pipeline.
// ---------------------------------------------------------------------------

// ErrNotConfigured is returned by a service constructed without the
// credentials it needs. It is checked before any network I/O so the caller
// can classify the failure as a configuration problem rather than a
// provider outage.
var ErrNotConfigured = errors.New("service not configured")

// SpeechResult is the common response type from any TTS provider.
type SpeechResult struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
}

// SpeechSynthesizer converts narration text to audio.
type SpeechSynthesizer interface {
	// Synthesize renders text as speech. voiceID overrides the provider's
	// default voice when non-empty.
	Synthesize(ctx context.Context, text, voiceID string) (*SpeechResult, error)
}
