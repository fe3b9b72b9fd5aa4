package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueAnalyzeContent    = "queue:analyze_content"
	QueueGenerateNarrative = "queue:generate_narrative"
	QueueRenderVideo       = "queue:render_video"
)

type Queue struct {
	client *redis.Client
}

// Job is the envelope pushed onto a Redis list. IDs are freshly generated per
// attempt; the payload references the durable records the handler operates on.
type Job struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	ProjectID uuid.UUID              `json:"project_id"`
	VideoID   *uuid.UUID             `json:"video_id,omitempty"`
	ContentID *uuid.UUID             `json:"content_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueAnalyzeContent enqueues a vision-analysis job for one content item.
func (q *Queue) EnqueueAnalyzeContent(ctx context.Context, projectID, contentID, jobID uuid.UUID) error {
	job := &Job{
		ID:        jobID,
		Type:      "analyze_content",
		ProjectID: projectID,
		ContentID: &contentID,
	}
	return q.Enqueue(ctx, QueueAnalyzeContent, job)
}

// EnqueueGenerateNarrative enqueues a narrative drafting job for a project.
// tone is passed through to the LLM prompt ("" = default).
func (q *Queue) EnqueueGenerateNarrative(ctx context.Context, projectID, jobID uuid.UUID, tone string) error {
	job := &Job{
		ID:        jobID,
		Type:      "generate_narrative",
		ProjectID: projectID,
	}
	if tone != "" {
		job.Data = map[string]interface{}{"tone": tone}
	}
	return q.Enqueue(ctx, QueueGenerateNarrative, job)
}

// EnqueueRenderVideo enqueues a render job for an existing queued video record.
func (q *Queue) EnqueueRenderVideo(ctx context.Context, projectID, videoID, jobID uuid.UUID) error {
	job := &Job{
		ID:        jobID,
		Type:      "render_video",
		ProjectID: projectID,
		VideoID:   &videoID,
	}
	return q.Enqueue(ctx, QueueRenderVideo, job)
}
