package merging

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Transferer moves single relation instances from one entity to another.
type Transferer struct {
	scope  database.Scoper
	logger ectologger.Logger
}

// NewTransferer creates a new relation transfer executor
func NewTransferer(scope database.Scoper, logger ectologger.Logger) *Transferer {
	return &Transferer{
		scope:  scope,
		logger: logger,
	}
}

// Transfer repoints rel from one entity to another inside its own scope. A
// duplicate-key conflict rolls back only this attempt and is reported as
// TransferSkippedDuplicate. A relation that no longer points at from is left
// alone and reported as TransferUnchanged. Every other error is returned.
func (t *Transferer) Transfer(ctx context.Context, rel models.RelatedObject, from, to schema.ObjectRef) (models.TransferOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Transferer.Transfer")
	defer span.End()

	desc := rel.Descriptor
	if desc == nil {
		return "", fmt.Errorf("relation %s on %s has no descriptor", rel.Relation, rel.Object)
	}
	tracing.SetAttributes(span, map[string]string{
		"merge.relation": desc.Name,
		"merge.object":   rel.Object.String(),
	})

	if desc.Through {
		t.logger.WithContext(ctx).WithFields(map[string]any{
			"relation": desc.Name,
			"object":   rel.Object.String(),
		}).Debug("Skipping through relation; its junction rows move with their own foreign key")
		metrics.RelationTransfersTotal.WithLabelValues(desc.Name, string(models.TransferSkippedThrough)).Inc()
		return models.TransferSkippedThrough, nil
	}

	changed := false
	err := t.scope.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if !rel.ManyToMany {
			changed, err = desc.Accessor.Set(ctx, rel.Object.ID, from.ID, to.ID)
			return err
		}

		changed, err = desc.Accessor.Remove(ctx, rel.Object.ID, from.ID)
		if err != nil || !changed {
			return err
		}
		// The absorber would end up linked to itself.
		if desc.Owner == desc.Target && rel.Object.ID == to.ID {
			return nil
		}
		return desc.Accessor.Add(ctx, rel.Object.ID, to.ID)
	})

	if err == nil {
		outcome := models.TransferApplied
		if !changed {
			outcome = models.TransferUnchanged
		}
		metrics.RelationTransfersTotal.WithLabelValues(desc.Name, string(outcome)).Inc()
		return outcome, nil
	}

	if database.IsUniqueViolation(err) {
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"object_type": rel.Object.Type,
			"object_id":   rel.Object.ID,
			"field":       rel.Field,
			"relation":    desc.Name,
			"from_id":     from.ID,
			"to_id":       to.ID,
		}).Warnf("Duplicate constraint while merging %s %s.%s from user %s to %s; skipping",
			rel.Object.Type, rel.Object.ID, rel.Field, from.ID, to.ID)
		metrics.RelationTransfersTotal.WithLabelValues(desc.Name, string(models.TransferSkippedDuplicate)).Inc()
		return models.TransferSkippedDuplicate, nil
	}

	tracing.RecordError(span, err)
	return "", err
}
