package merging

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Reconciler copies the many-to-many memberships an absorbee declares itself
// onto the absorber.
type Reconciler struct {
	registry *schema.Registry
	logger   ectologger.Logger
}

// NewReconciler creates a new forward-relation reconciler
func NewReconciler(registry *schema.Registry, logger ectologger.Logger) *Reconciler {
	return &Reconciler{
		registry: registry,
		logger:   logger,
	}
}

// ReconcileForward adds the absorbee's members of every local many-to-many
// field to the absorber's. The absorber never becomes a member of itself.
// Existing memberships are kept, so running it again changes nothing. It
// returns the number of memberships offered to the absorber.
func (r *Reconciler) ReconcileForward(ctx context.Context, absorber, absorbee schema.ObjectRef) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Reconciler.ReconcileForward")
	defer span.End()

	added := 0
	for _, desc := range r.registry.LocalManyToMany(absorber.Type) {
		if desc.Through {
			continue
		}

		members, err := desc.Accessor.Members(ctx, absorbee.ID)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("relation", desc.Name).Error("Failed to read absorbee memberships")
			tracing.RecordError(span, err)
			return added, err
		}

		if desc.Target == absorber.Type {
			members = ectolinq.Filter(members, func(id string) bool {
				return id != absorber.ID
			})
		}
		if len(members) == 0 {
			continue
		}

		if err := desc.Accessor.Add(ctx, absorber.ID, members...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("relation", desc.Name).Error("Failed to add memberships to absorber")
			tracing.RecordError(span, err)
			return added, err
		}

		added += len(members)
		metrics.ForwardMembersAdded.WithLabelValues(desc.Name).Add(float64(len(members)))
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"relation": desc.Name,
			"count":    len(members),
		}).Debug("Reconciled forward memberships")
	}

	return added, nil
}
