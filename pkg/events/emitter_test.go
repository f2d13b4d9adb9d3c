package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type capturePublisher struct {
	events []*kafka.MergeEvent
}

func (p *capturePublisher) PublishMergeEvent(ctx context.Context, event *kafka.MergeEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestEmitter_EmitUserMerged(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher)

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := &models.MergeReport{
		MergeID:    "m1",
		AbsorberID: "a",
		AbsorbeeID: "b",
		Applied:    4,
		Skipped:    []models.SkippedTransfer{{Relation: "records.user"}},
		Reconciled: 2,
		Forwarded:  true,
		StartedAt:  started,
		Duration:   time.Second,
	}

	ctx := appctx.SetOperatorID(context.Background(), "ops-7")
	require.NoError(t, emitter.EmitUserMerged(ctx, report))
	require.Len(t, publisher.events, 1)

	event := publisher.events[0]
	assert.Equal(t, kafka.EventTypeUserMerged, event.EventType)
	assert.Equal(t, "m1", event.MergeID)
	assert.Equal(t, 4, event.Applied)
	assert.Equal(t, 1, event.Skipped)
	assert.Equal(t, 2, event.Reconciled)
	assert.True(t, event.Forwarded)
	assert.False(t, event.Deactivated)
	assert.Equal(t, "ops-7", event.OperatorID)
	assert.Equal(t, started.Add(time.Second), event.Timestamp)
}
