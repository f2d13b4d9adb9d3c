package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const forwardersTable = "user_forwarders"

var forwarderStruct = database.NewStruct(new(models.UserForwarder))

// ForwarderRepository stores user forwarders. A source has at most one
// forwarder and Forward never writes one that points at a forwarded user.
type ForwarderRepository struct {
	*Repository
	maxDepth int
}

// NewForwarderRepository creates a new forwarder repository. maxDepth bounds
// how many hops Resolve follows.
func NewForwarderRepository(db database.DB, logger ectologger.Logger, maxDepth int) *ForwarderRepository {
	return &ForwarderRepository{
		Repository: NewRepository(db, logger),
		maxDepth:   maxDepth,
	}
}

// Forward makes lookups of sourceID resolve to targetID. When targetID is
// itself forwarded the new forwarder points at its target instead. Forwarders
// that pointed at sourceID are repointed the same way, and one that would
// then point at itself is dropped. Running it twice changes nothing.
func (r *ForwarderRepository) Forward(ctx context.Context, sourceID, targetID string) error {
	ctx, span := tracing.StartSpan(ctx, "ForwarderRepository.Forward")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": sourceID,
		"target_id": targetID,
	})

	err := r.Atomic(ctx, func(ctx context.Context) error {
		db := r.Exec(ctx)

		if sourceID == targetID {
			return r.delete(ctx, db, "source_id", sourceID)
		}

		// targetID forwarded to sourceID would become a self-forward
		del := database.NewDeleteBuilder()
		del.DeleteFrom(forwardersTable).Where(del.Equal("source_id", targetID), del.Equal("target_id", sourceID))
		query, args := del.Build()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		sb := database.NewSelectBuilder()
		sb.Select("target_id").From(forwardersTable).Where(sb.Equal("source_id", targetID))
		query, args = sb.Build()
		var resolved []string
		if err := db.SelectContext(ctx, &resolved, query, args...); err != nil {
			return err
		}
		if len(resolved) > 0 {
			targetID = resolved[0]
		}

		ub := database.NewUpdateBuilder()
		ub.Update(forwardersTable).
			Set(ub.Assign("target_id", targetID), ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))).
			Where(ub.Equal("target_id", sourceID))
		query, args = ub.Build()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(forwardersTable).
			Cols("id", "source_id", "target_id", "created_at", "updated_at").
			Values(uuid.New().String(), sourceID, targetID, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
		set := ib.OnConflict("source_id")
		set.Set(
			set.Assign("target_id", database.Excluded("target_id")),
			set.Assign("updated_at", database.Excluded("updated_at")),
		)
		query, args = ib.Build()
		_, err := db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		log.WithError(err).Error("failed to forward user")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to forward user")
	}

	log.Debug("Forwarded user")
	return nil
}

func (r *ForwarderRepository) delete(ctx context.Context, db database.Queryer, column, id string) error {
	del := database.NewDeleteBuilder()
	del.DeleteFrom(forwardersTable).Where(del.Equal(column, id))
	query, args := del.Build()
	_, err := db.ExecContext(ctx, query, args...)
	return err
}

// Get returns the forwarder of sourceID.
func (r *ForwarderRepository) Get(ctx context.Context, sourceID string) (*models.UserForwarder, error) {
	ctx, span := tracing.StartSpan(ctx, "ForwarderRepository.Get")
	defer span.End()

	sb := forwarderStruct.SelectFrom(forwardersTable)
	sb.Where(sb.Equal("source_id", sourceID))

	query, args := sb.Build()
	var fw models.UserForwarder
	err := r.Exec(ctx).GetContext(ctx, &fw, query, args...)
	if database.IsNoRows(err) {
		return nil, NotFound("user %s is not forwarded", sourceID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("failed to get forwarder")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get forwarder")
	}
	return &fw, nil
}

// ListByTarget returns every forwarder pointing at targetID.
func (r *ForwarderRepository) ListByTarget(ctx context.Context, targetID string) ([]models.UserForwarder, error) {
	ctx, span := tracing.StartSpan(ctx, "ForwarderRepository.ListByTarget")
	defer span.End()

	sb := forwarderStruct.SelectFrom(forwardersTable)
	sb.Where(sb.Equal("target_id", targetID))
	sb.OrderBy("source_id")

	query, args := sb.Build()
	forwarders := []models.UserForwarder{}
	if err := r.Exec(ctx).SelectContext(ctx, &forwarders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("target_id", targetID).Error("failed to list forwarders")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list forwarders")
	}
	return forwarders, nil
}

// Resolve follows forwarders from userID until it reaches a user that is not
// forwarded, a cycle, or maxDepth hops.
func (r *ForwarderRepository) Resolve(ctx context.Context, userID string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "ForwarderRepository.Resolve")
	defer span.End()

	res := &models.Resolution{RequestedID: userID, ResolvedID: userID, Path: []string{userID}}
	seen := map[string]bool{userID: true}
	current := userID

	for i := 0; i < r.maxDepth; i++ {
		fw, err := r.Get(ctx, current)
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			break
		}
		if err != nil {
			return nil, err
		}
		if seen[fw.TargetID] {
			r.logger.WithContext(ctx).WithField("user_id", userID).Warnf("Forwarder cycle at %s", fw.TargetID)
			break
		}
		current = fw.TargetID
		seen[current] = true
		res.Path = append(res.Path, current)
	}

	res.ResolvedID = current
	return res, nil
}
