package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_RoutesByKind(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NewSlogLogger(slog.Default()))
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stateMsgs, err := ps.Subscribe(ctx, TopicState)
	require.NoError(t, err)
	registryMsgs, err := ps.Subscribe(ctx, TopicRegistry)
	require.NoError(t, err)

	pub := NewWatermillPublisher(ps)
	require.NoError(t, pub.PublishChanged(ctx, &ChangeEvent{Kind: KindRegistered, Name: "servo1", Type: "Servo"}))
	require.NoError(t, pub.PublishChanged(ctx, &ChangeEvent{Kind: KindState, Name: "servo1", Field: "pos", State: map[string]any{"pos": 12.5}}))

	select {
	case msg := <-registryMsgs:
		ev, err := DecodeMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, KindRegistered, ev.Kind)
		assert.Equal(t, "Servo", ev.Type)
		assert.Equal(t, "servo1", msg.Metadata.Get("name"))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for registry event")
	}

	select {
	case msg := <-stateMsgs:
		ev, err := DecodeMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, "pos", ev.Field)
		assert.Equal(t, 12.5, ev.State["pos"])
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state event")
	}
}
