package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/service-mirror/pkg/events"
)

func TestEventLog_KeepsMostRecent(t *testing.T) {
	l := newEventLog(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		l.add(events.ChangeEvent{Kind: events.KindRegistered, Name: name})
	}

	all := l.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Name)
	assert.Equal(t, "e", all[2].Name)

	last := l.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].Name)
}

func TestEventLog_RecordsFromWatermill(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NewSlogLogger(slog.Default()))
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := newEventLog(10)
	run, err := l.subscribe(ctx, ps)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- run() }()

	pub := events.NewWatermillPublisher(ps)
	require.NoError(t, pub.PublishChanged(ctx, &events.ChangeEvent{Kind: events.KindRegistered, Name: "servo1"}))
	require.NoError(t, pub.PublishChanged(ctx, &events.ChangeEvent{Kind: events.KindStatus, Level: "error", Key: "E1"}))

	require.Eventually(t, func() bool { return len(l.Recent(0)) == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("event log did not stop after cancel")
	}
}
