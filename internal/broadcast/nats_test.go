package broadcast

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhub/backend/internal/model"
)

func TestSubjectLayout(t *testing.T) {
	assert.Equal(t, "studyhub.rooms.abc.timer", Subject("studyhub", "abc"))
	assert.Equal(t, "studyhub.rooms.*.timer", subjectWildcard("studyhub"))
}

func TestBridgeDeliversMalformedAndValidMessages(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	bridge := NewBridge(nil, "studyhub", hub)

	bridge.handle(&nats.Msg{Subject: "studyhub.rooms.r1.timer", Data: []byte("{")})
	assert.Len(t, hub.queue, 0)

	data, err := json.Marshal(NewEvent("r1", "paused", model.TimerState{RoomID: "r1", IsPaused: true}, time.Now()))
	require.NoError(t, err)
	bridge.handle(&nats.Msg{Subject: "studyhub.rooms.r1.timer", Data: data})
	require.Len(t, hub.queue, 1)

	evt := <-hub.queue
	assert.Equal(t, "paused", evt.Event)
	assert.True(t, evt.State.IsPaused)
}

func TestNATSPublisherRoundTrip(t *testing.T) {
	url := os.Getenv("STUDYHUB_TEST_NATS_URL")
	if url == "" {
		t.Skip("STUDYHUB_TEST_NATS_URL not set")
	}
	nc, err := ConnectNATS(NATSConfig{URL: url, Name: "studyhub-test"})
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	hub := NewHub(DefaultHubConfig())
	bridge := NewBridge(nc, "studyhub-test", hub)
	require.NoError(t, bridge.Start())
	t.Cleanup(func() { _ = bridge.Stop() })
	require.NoError(t, nc.Flush())

	publisher := NewNATSPublisher(nc, "studyhub-test")
	require.NoError(t, publisher.Publish(context.Background(), "room-1", "started", model.TimerState{RoomID: "room-1", IsRunning: true}))

	select {
	case evt := <-hub.queue:
		assert.Equal(t, "started", evt.Event)
		assert.Equal(t, "room-1", evt.RoomID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not bridged")
	}
}
