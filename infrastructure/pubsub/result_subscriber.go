package pubsub

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

// ResultSubscriber relays result events from the topic to a local notifier,
// so API processes can stream results produced by separate worker processes.
type ResultSubscriber struct {
	client    *pubsub.Client
	topicName string
	subID     string
}

func NewResultSubscriber(client *pubsub.Client, topicName, subID string) *ResultSubscriber {
	return &ResultSubscriber{client: client, topicName: topicName, subID: subID}
}

func (s *ResultSubscriber) subscription(ctx context.Context) (*pubsub.Subscription, error) {
	logger.GetLogger().WithField("subID", s.subID).Info("PubSub starting...")
	sub := s.client.Subscription(s.subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return sub, nil
	}
	topic := s.client.Topic(s.topicName)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		if topic, err = s.client.CreateTopic(ctx, s.topicName); err != nil {
			return nil, err
		}
	}
	return s.client.CreateSubscription(ctx, s.subID, pubsub.SubscriptionConfig{Topic: topic})
}

// Run blocks until ctx is done, forwarding every decoded event to notifier.
func (s *ResultSubscriber) Run(ctx context.Context, notifier repository.IResultNotifier) error {
	sub, err := s.subscription(ctx)
	if err != nil {
		return err
	}
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var event model.ResultEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			logger.GetLogger().WithField("error", err).Warn("Dropping undecodable result event")
			m.Ack()
			return
		}
		notifier.NotifyResult(ctx, event)
		m.Ack()
	})
}
