package eventsvc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
)

func TestConnect_withoutURL(t *testing.T) {
	pub, closeFn, err := Connect(core.NATSConfig{}, "test")
	require.NoError(t, err)
	assert.Equal(t, core.NoopPublisher, pub)
	closeFn()
}

func TestRecorder(t *testing.T) {
	var rec Recorder
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, "drafts.1.sent", map[string]string{"draft_id": "1"}))
	require.NoError(t, rec.Publish(ctx, "applications.2.submitted", map[string]int{"essays": 3}))

	assert.Equal(t, []string{"drafts.1.sent", "applications.2.submitted"}, rec.Subjects())

	var data map[string]string
	require.NoError(t, json.Unmarshal(rec.Events()[0].Data, &data))
	assert.Equal(t, "1", data["draft_id"])
	assert.False(t, rec.Events()[1].OccurredAt.IsZero())

	rec.Reset()
	assert.Empty(t, rec.Subjects())
	assert.Error(t, rec.Publish(ctx, "bad", make(chan int)))
}
