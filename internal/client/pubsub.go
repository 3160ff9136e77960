package client

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"
)

// PubSubClient wraps the Google Cloud Pub/Sub client for publishing.
type PubSubClient struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubClient creates a new Pub/Sub client. Messages sharing an ordering
// key are delivered in publish order.
func NewPubSubClient(ctx context.Context, projectID, topicID string) (*PubSubClient, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true

	return &PubSubClient{
		client: client,
		topic:  topic,
	}, nil
}

// Close flushes pending messages and closes the client.
func (c *PubSubClient) Close() {
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.client != nil {
		c.client.Close()
	}
}

// PublishWithAttributes publishes a JSON message and waits for the server ack.
func (c *PubSubClient) PublishWithAttributes(ctx context.Context, data interface{}, attrs map[string]string, orderingKey string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	result := c.topic.Publish(ctx, &pubsub.Message{
		Data:        jsonData,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	})

	if _, err = result.Get(ctx); err != nil {
		if orderingKey != "" {
			// a failed ordered publish pauses the key until resumed
			c.topic.ResumePublish(orderingKey)
		}
		return err
	}
	return nil
}
