package storage

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateKeyKeepsExtension(t *testing.T) {
	key := GenerateKey(FolderContent, "IMG_2041.jpeg")

	if !strings.HasPrefix(key, "content/") {
		t.Errorf("key not scoped to folder: %q", key)
	}
	if !strings.HasSuffix(key, ".jpeg") {
		t.Errorf("key lost extension: %q", key)
	}
	if strings.Contains(key, "IMG_2041") {
		t.Errorf("key leaked the original filename: %q", key)
	}
}

func TestGenerateKeyNoExtension(t *testing.T) {
	key := GenerateKey(FolderContent, "noext")
	if strings.Contains(key, ".") {
		t.Errorf("key has unexpected extension: %q", key)
	}
}

func TestStableRenderKeys(t *testing.T) {
	id := uuid.MustParse("7e57a0e5-0000-4000-8000-000000000001")

	if got := NarrationKey(id); got != "narrations/"+id.String()+".mp3" {
		t.Errorf("NarrationKey = %q", got)
	}
	if got := VideoKey(id); got != "videos/"+id.String()+".mp4" {
		t.Errorf("VideoKey = %q", got)
	}

	// Keys are deterministic so a retry overwrites in place.
	if NarrationKey(id) != NarrationKey(id) {
		t.Error("NarrationKey is not stable")
	}
}

func TestRetryDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(attempt)
		if d < baseRetryDelay {
			t.Errorf("attempt %d: delay %v below base", attempt, d)
		}
		// Cap plus the 25% jitter margin.
		if d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("attempt %d: delay %v above cap", attempt, d)
		}
	}
	if retryDelay(1) > 2*time.Second {
		t.Errorf("first retry should be near the base delay, got %v", retryDelay(1))
	}
}

func TestIsRetryableStatus(t *testing.T) {
	retryable := []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	for _, code := range retryable {
		if !isRetryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}

	final := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusRequestEntityTooLarge}
	for _, code := range final {
		if isRetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
