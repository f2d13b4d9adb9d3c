// Package merging implements user merges: every relation pointing at the
// absorbee is moved onto the absorber, local many-to-many memberships are
// unioned, and the absorbee is optionally forwarded and deactivated.
package merging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// UserStore loads and deactivates users.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Deactivate(ctx context.Context, id string) error
}

// ForwardRegistrar records that lookups of one user resolve to another.
type ForwardRegistrar interface {
	Forward(ctx context.Context, sourceID, targetID string) error
}

// Engine handles user merging
type Engine struct {
	logger     ectologger.Logger
	scope      database.Scoper
	users      UserStore
	forwarders ForwardRegistrar
	discoverer *Discoverer
	transferer *Transferer
	reconciler *Reconciler
	validate   *validator.Validate
}

// NewEngine creates a new merge engine
func NewEngine(
	logger ectologger.Logger,
	scope database.Scoper,
	registry *schema.Registry,
	users UserStore,
	forwarders ForwardRegistrar,
) *Engine {
	return &Engine{
		logger:     logger,
		scope:      scope,
		users:      users,
		forwarders: forwarders,
		discoverer: NewDiscoverer(registry, logger),
		transferer: NewTransferer(scope, logger),
		reconciler: NewReconciler(registry, logger),
		validate:   validator.New(),
	}
}

// Discoverer exposes the engine's relation discoverer for read-only callers.
func (e *Engine) Discoverer() *Discoverer {
	return e.discoverer
}

// MergeEntities moves everything from the absorbee onto the absorber.
//
// The whole merge runs in one transaction:
//  1. every relation pointing at the absorbee is transferred, each in its own
//     savepoint so a duplicate-key conflict skips only that relation
//  2. the absorbee's local many-to-many memberships are added to the absorber
//  3. with Forward set, the absorbee is forwarded to the absorber
//  4. with Deactivate set, the absorbee is marked inactive
//
// Missing users are reported before anything is written. Any failure other
// than a duplicate-key conflict rolls back the whole merge.
func (e *Engine) MergeEntities(ctx context.Context, req models.MergeRequest) (*models.MergeReport, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeEntities")
	defer span.End()

	mergeID := appctx.GetMergeID(ctx)
	if mergeID == "" {
		mergeID = uuid.New().String()
		ctx = appctx.SetMergeID(ctx, mergeID)
	}
	tracing.SetAttributes(span, map[string]string{
		"merge.id":          mergeID,
		"merge.absorber_id": req.AbsorberID,
		"merge.absorbee_id": req.AbsorbeeID,
	})

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":    mergeID,
		"absorber_id": req.AbsorberID,
		"absorbee_id": req.AbsorbeeID,
		"forward":     req.Forward,
		"deactivate":  req.Deactivate,
		"operator_id": appctx.GetOperatorID(ctx),
	})

	if err := e.validate.Struct(req); err != nil {
		log.WithError(err).Warn("Rejected invalid merge request")
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid merge request: %s", err.Error()))
	}

	absorber, err := e.users.Get(ctx, req.AbsorberID)
	if err != nil {
		return nil, err
	}
	absorbee, err := e.users.Get(ctx, req.AbsorbeeID)
	if err != nil {
		return nil, err
	}

	report := &models.MergeReport{
		MergeID:    mergeID,
		AbsorberID: absorber.ID,
		AbsorbeeID: absorbee.ID,
		Skipped:    []models.SkippedTransfer{},
		StartedAt:  time.Now().UTC(),
	}

	log.Info("Starting user merge")

	err = e.scope.Atomic(ctx, func(ctx context.Context) error {
		if err := e.transferRelations(ctx, absorber.Ref(), absorbee.Ref(), report, log); err != nil {
			return err
		}

		reconciled, err := e.reconciler.ReconcileForward(ctx, absorber.Ref(), absorbee.Ref())
		if err != nil {
			return err
		}
		report.Reconciled = reconciled

		if req.Forward {
			if err := e.forwarders.Forward(ctx, absorbee.ID, absorber.ID); err != nil {
				log.WithError(err).Error("Failed to forward absorbee")
				return err
			}
			report.Forwarded = true
		}

		if req.Deactivate {
			if err := e.users.Deactivate(ctx, absorbee.ID); err != nil {
				log.WithError(err).Error("Failed to deactivate absorbee")
				return err
			}
			report.Deactivated = true
		}

		return nil
	})
	if err != nil {
		log.WithError(err).Error("User merge failed and was rolled back")
		tracing.RecordError(span, err)
		return nil, err
	}

	report.Duration = time.Since(report.StartedAt)

	log.WithFields(map[string]any{
		"discovered":  report.Discovered,
		"applied":     report.Applied,
		"skipped":     len(report.Skipped),
		"unchanged":   report.Unchanged,
		"reconciled":  report.Reconciled,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Merged users")

	return report, nil
}

// transferRelations runs discovery on the absorbee and transfers every result.
func (e *Engine) transferRelations(
	ctx context.Context,
	absorber schema.ObjectRef,
	absorbee schema.ObjectRef,
	report *models.MergeReport,
	log ectologger.Logger,
) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.transferRelations")
	defer span.End()

	related, err := e.discoverer.Discover(ctx, absorbee)
	if err != nil {
		return err
	}
	report.Discovered = len(related)

	for _, rel := range related {
		outcome, err := e.transferer.Transfer(ctx, rel, absorbee, absorber)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{
				"relation": rel.Relation,
				"object":   rel.Object.String(),
			}).Error("Failed to transfer relation")
			return err
		}

		switch outcome {
		case models.TransferApplied:
			report.Applied++
		case models.TransferUnchanged:
			report.Unchanged++
		case models.TransferSkippedDuplicate:
			report.Skipped = append(report.Skipped, models.SkippedTransfer{
				Object:   rel.Object,
				Relation: rel.Relation,
				Field:    rel.Field,
				Reason:   string(outcome),
			})
		}
	}

	return nil
}
