// Package events turns committed merges into outbound events.
package events

import (
	"context"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Publisher writes merge events to the broker.
type Publisher interface {
	PublishMergeEvent(ctx context.Context, event *kafka.MergeEvent) error
}

// Emitter publishes user.merged events.
type Emitter struct {
	publisher Publisher
}

func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

// EmitUserMerged publishes the outcome of a committed merge.
func (e *Emitter) EmitUserMerged(ctx context.Context, report *models.MergeReport) error {
	return e.publisher.PublishMergeEvent(ctx, &kafka.MergeEvent{
		EventType:   kafka.EventTypeUserMerged,
		MergeID:     report.MergeID,
		AbsorberID:  report.AbsorberID,
		AbsorbeeID:  report.AbsorbeeID,
		Applied:     report.Applied,
		Skipped:     len(report.Skipped),
		Reconciled:  report.Reconciled,
		Forwarded:   report.Forwarded,
		Deactivated: report.Deactivated,
		OperatorID:  appctx.GetOperatorID(ctx),
		Timestamp:   report.StartedAt.Add(report.Duration),
	})
}
