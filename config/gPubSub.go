package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// eventBus lazily opens the Pub/Sub client and keeps one publisher per topic so batching
// settings survive across publishes.
type eventBus struct {
	mu     sync.Mutex
	client *pubsub.Client
	topics map[string]*pubsub.Topic
}

var bus = &eventBus{topics: map[string]*pubsub.Topic{}}

// pubSubProjectID prefers PUBSUB_PROJECT_ID, then the project Cloud Run exposes.
func pubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := envOr(key, ""); v != "" {
			return v
		}
	}
	return ""
}

// open returns the shared client. Unlike the database it is not retried: a publish that cannot
// reach Pub/Sub fails and the notifier logs it.
func (b *eventBus) open(ctx context.Context) (*pubsub.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	projectID := pubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	// without PUBSUB_CREDENTIALS_JSON the client uses Application Default Credentials
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	c, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client (project %s): %w", projectID, err)
	}
	b.client = c
	GetLogger().WithField("project_id", projectID).Info("pubsub client ready")
	return c, nil
}

func (b *eventBus) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	if name == "" {
		return nil, errors.New("topic is required")
	}
	c, err := b.open(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}
	t := c.Topic(name)
	b.topics[name] = t
	return t, nil
}

// EnsureTopic creates the topic when missing.
func EnsureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	t, err := bus.topic(ctx, name)
	if err != nil {
		return nil, err
	}
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return t, nil
	}
	if _, err := bus.client.CreateTopic(ctx, name); err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return t, nil
}

// PublishMatchingEvent publishes a run event on MATCHING_EVENTS_TOPIC and returns the
// server-assigned message ID. The tenant goes out as an attribute so subscribers can filter.
func PublishMatchingEvent(ctx context.Context, tenantId string, event any) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	t, err := bus.topic(ctx, MatchingEventsTopic())
	if err != nil {
		return "", err
	}
	return t.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"tenant_id": tenantId},
	}).Get(ctx)
}
