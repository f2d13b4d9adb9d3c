package merging

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Discoverer lists the relation instances that point at an entity.
type Discoverer struct {
	registry *schema.Registry
	logger   ectologger.Logger
}

// NewDiscoverer creates a new relation discoverer
func NewDiscoverer(registry *schema.Registry, logger ectologger.Logger) *Discoverer {
	return &Discoverer{
		registry: registry,
		logger:   logger,
	}
}

// Discover returns one entry per owner row linked to target through any
// incoming relation. It only reads. The same owner can appear more than once
// when it reaches target through several relations.
func (d *Discoverer) Discover(ctx context.Context, target schema.ObjectRef) ([]models.RelatedObject, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Discoverer.Discover")
	defer span.End()

	related := []models.RelatedObject{}
	for _, desc := range d.registry.Incoming(target.Type) {
		ownerIDs, err := desc.Accessor.Referencing(ctx, target.ID)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"relation": desc.Name,
				"target":   target.String(),
			}).Error("Failed to discover related objects")
			tracing.RecordError(span, err)
			return nil, err
		}

		for _, ownerID := range ownerIDs {
			related = append(related, models.RelatedObject{
				Object:     schema.ObjectRef{Type: desc.Owner, ID: ownerID},
				Relation:   desc.Name,
				Field:      desc.Field,
				ManyToMany: desc.IsManyToMany(),
				Descriptor: desc,
			})
		}
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"target": target.String(),
		"count":  len(related),
	}).Debug("Discovered related objects")

	return related, nil
}
