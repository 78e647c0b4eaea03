// Package queue carries tick triggers between processes. A trigger asks a
// worker to run one tick; the tick lock makes duplicates harmless.
package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TopicTicks is the default trigger queue.
const TopicTicks = "campaign_ticks"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload []byte) error) error
	Close() error
}

// TickTrigger is the payload published to request a tick.
type TickTrigger struct {
	Source      string    `json:"source"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewTickTrigger(source string) TickTrigger {
	return TickTrigger{Source: source, RequestedAt: time.Now().UTC()}
}

// DecodeTickTrigger parses a trigger body. An empty body is a valid trigger.
func DecodeTickTrigger(body []byte) (TickTrigger, error) {
	var t TickTrigger
	if len(body) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return t, fmt.Errorf("decode tick trigger: %w", err)
	}
	return t, nil
}

// InMemoryQueue delivers to in-process subscribers with bounded retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
	wg       sync.WaitGroup
	logger   *slog.Logger

	MaxRetries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

func NewInMemoryQueue(logger *slog.Logger) *InMemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload []byte) error),
		logger:     logger.With("component", "queue", "transport", "memory"),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message body with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish hands payload to every subscriber of topic asynchronously.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		q.wg.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler func(payload []byte) error, job JobPayload) {
	defer q.wg.Done()
	for {
		err := handler(job.Body)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.logger.Error("job permanently failed", "topic", job.Topic, "attempts", job.RetryCount, "error", err)
			return
		}
		q.logger.Warn("job failed, retrying", "topic", job.Topic, "attempt", job.RetryCount, "max", job.MaxRetries, "error", err)
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
