package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"social-publisher/domain/model"
)

func TestResultPublisher_NotifyResult(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := NewPubSub(ctx, "publisher-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	id := "12345"
	publisher := NewResultPublisher(client, "publish-results")
	publisher.NotifyResult(ctx, model.ResultEvent{
		Type: "publish_result", UserID: "user-1", PostID: 1,
		Platform: model.PlatformTwitter, Status: model.ResultStatusPosted, PlatformPostID: &id,
	})

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "TWITTER", msgs[0].Attributes["platform"])
	assert.Equal(t, "1", msgs[0].Attributes["post_id"])

	var got model.ResultEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "12345", *got.PlatformPostID)
}

func TestNewPubSubRequiresProject(t *testing.T) {
	_, err := NewPubSub(context.Background(), "")
	assert.Error(t, err)
}

func TestResultPublisher_NilClient(t *testing.T) {
	assert.NotPanics(t, func() {
		NewResultPublisher(nil, "publish-results").NotifyResult(context.Background(), model.ResultEvent{})
	})
}

type captureNotifier struct{ events chan model.ResultEvent }

func (c *captureNotifier) NotifyResult(_ context.Context, e model.ResultEvent) { c.events <- e }

func TestResultSubscriber_Relays(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := NewPubSub(ctx, "publisher-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	sub := NewResultSubscriber(client, "publish-results", "publish-results-api")
	_, err = sub.subscription(ctx)
	require.NoError(t, err)

	capture := &captureNotifier{events: make(chan model.ResultEvent, 1)}
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, capture) }()

	NewResultPublisher(client, "publish-results").NotifyResult(ctx, model.ResultEvent{
		Type: "publish_result", UserID: "user-1", PostID: 3, Platform: model.PlatformYouTube, Status: model.ResultStatusFailed,
	})

	select {
	case e := <-capture.events:
		assert.Equal(t, int64(3), e.PostID)
		assert.Equal(t, model.PlatformYouTube, e.Platform)
	case <-ctx.Done():
		t.Fatal("event was not relayed")
	}
	cancel()
	assert.NoError(t, <-done)
}
