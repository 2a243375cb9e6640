package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
)

const publishTimeout = 10 * time.Second

// NewPubSub creates a Pub/Sub client. An empty project id disables Pub/Sub.
func NewPubSub(ctx context.Context, projectID string, opts ...option.ClientOption) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, errNoProject
	}
	return pubsub.NewClient(ctx, projectID, opts...)
}

var errNoProject = errors.New("pubsub project id is not configured")

// ResultPublisher broadcasts result events to a Pub/Sub topic for
// downstream consumers such as analytics and email.
type ResultPublisher struct {
	client    *pubsub.Client
	topicName string

	once  sync.Once
	topic *pubsub.Topic
	err   error
}

func NewResultPublisher(client *pubsub.Client, topicName string) repository.IResultNotifier {
	return &ResultPublisher{client: client, topicName: topicName}
}

func (p *ResultPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.once.Do(func() {
		topic := p.client.Topic(p.topicName)
		exists, err := topic.Exists(ctx)
		if err != nil {
			p.err = err
			return
		}
		if !exists {
			logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
			if topic, err = p.client.CreateTopic(ctx, p.topicName); err != nil {
				p.err = err
				return
			}
		}
		p.topic = topic
	})
	return p.topic, p.err
}

// NotifyResult publishes the event and waits for the server ack. Failures
// are logged; a lost event never affects the stored result.
func (p *ResultPublisher) NotifyResult(ctx context.Context, event model.ResultEvent) {
	if p.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	topic, err := p.ensureTopic(ctx)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while resolving result topic")
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while encoding result event")
		return
	}
	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"type":     event.Type,
			"post_id":  strconv.FormatInt(event.PostID, 10),
			"platform": string(event.Platform),
			"status":   string(event.Status),
		},
	}
	serverID, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while publishing result event")
		return
	}
	logger.GetLogger().WithField("server ID", serverID).Debug("Result event published")
}
