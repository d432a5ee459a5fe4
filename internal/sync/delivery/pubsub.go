package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Receiver pulls Gmail notifications from a Pub/Sub subscription.
type Receiver struct {
	client    *pubsub.Client
	handler   *NotificationHandler
	topicName string
	subName   string
}

// NewReceiver connects to Pub/Sub. An empty subscription name defaults to
// "<topic>-sub".
func NewReceiver(ctx context.Context, projectID, topicName, subName, credentialsFile string, handler *NotificationHandler) (*Receiver, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	if subName == "" {
		subName = topicName + "-sub"
	}
	return &Receiver{
		client:    client,
		handler:   handler,
		topicName: topicName,
		subName:   subName,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled. The subscription
// is created when the topic exists but the subscription does not.
func (r *Receiver) Start(ctx context.Context) error {
	log.Printf("[PubSub] Starting receiver with topic: %s, subscription: %s", r.topicName, r.subName)

	sub, err := r.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", r.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if _, err := r.handler.Handle(ctx, msg.Data); err != nil {
			if errors.Is(err, ErrMalformed) {
				log.Printf("[PubSub] Dropping malformed message %s: %v", msg.ID, err)
				msg.Ack()
				return
			}
			log.Printf("[PubSub] Failed to handle message %s, will be redelivered: %v", msg.ID, err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error receiving messages: %w", err)
	}
	return nil
}

func (r *Receiver) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := r.client.Subscription(r.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking subscription existence: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := r.client.Topic(r.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking topic existence: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", r.topicName)
	}

	sub, err = r.client.CreateSubscription(ctx, r.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	log.Printf("[PubSub] Created subscription: %s", r.subName)
	return sub, nil
}

// Close releases the Pub/Sub client.
func (r *Receiver) Close() error {
	return r.client.Close()
}
