package merging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/locking"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const lockKeyPrefix = "merge:user:"

// Locker serialises merges touching the same users.
type Locker interface {
	LockAll(ctx context.Context, keys ...string) (func(context.Context), error)
}

// EventEmitter publishes completed merges.
type EventEmitter interface {
	EmitUserMerged(ctx context.Context, report *models.MergeReport) error
}

// LineageRecorder mirrors completed merges into the lineage graph.
type LineageRecorder interface {
	RecordMerge(ctx context.Context, report *models.MergeReport) error
}

// Service wraps the engine with the concerns around a merge: locking the two
// users, metrics, and the post-commit event and graph mirror. Locker, emitter
// and lineage are optional.
type Service struct {
	logger  ectologger.Logger
	engine  *Engine
	users   UserStore
	locker  Locker
	emitter EventEmitter
	lineage LineageRecorder
}

// NewService creates a new merge service
func NewService(
	logger ectologger.Logger,
	engine *Engine,
	users UserStore,
	locker Locker,
	emitter EventEmitter,
	lineage LineageRecorder,
) *Service {
	return &Service{
		logger:  logger,
		engine:  engine,
		users:   users,
		locker:  locker,
		emitter: emitter,
		lineage: lineage,
	}
}

// Merge locks both users, merges them and publishes the result. Publishing
// failures are logged; the merge is already committed by then.
func (s *Service) Merge(ctx context.Context, req models.MergeRequest) (*models.MergeReport, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Merge")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"absorber_id": req.AbsorberID,
		"absorbee_id": req.AbsorbeeID,
	})

	if s.locker != nil {
		release, err := s.locker.LockAll(ctx, lockKeyPrefix+req.AbsorberID, lockKeyPrefix+req.AbsorbeeID)
		if err != nil {
			if errors.Is(err, locking.ErrLockNotAcquired) {
				metrics.LockContention.Inc()
				log.Warn("Another merge holds one of the users")
				return nil, httperror.NewHTTPError(http.StatusConflict, "a merge involving these users is already in progress")
			}
			log.WithError(err).Error("Failed to lock users for merge")
			return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to lock users for merge")
		}
		defer release(context.WithoutCancel(ctx))
	}

	report, err := s.engine.MergeEntities(ctx, req)
	metrics.MergeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := metrics.StatusFailed
		var httperr *httperror.HTTPError
		if errors.As(err, &httperr) && httperr.Code < http.StatusInternalServerError {
			status = metrics.StatusInvalid
		}
		metrics.MergesTotal.WithLabelValues(status).Inc()
		tracing.RecordError(span, err)
		return nil, err
	}
	metrics.MergesTotal.WithLabelValues(metrics.StatusSuccess).Inc()

	if s.emitter != nil {
		if err := s.emitter.EmitUserMerged(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to emit user.merged event") // the merge itself is committed
		}
	}

	if s.lineage != nil {
		if err := s.lineage.RecordMerge(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to record merge lineage")
		}
	}

	return report, nil
}

// Related lists what currently points at a user. It only reads.
func (s *Service) Related(ctx context.Context, userID string) ([]models.RelatedObject, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Related")
	defer span.End()

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	related, err := s.engine.Discoverer().Discover(ctx, user.Ref())
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list relations of user %s", userID))
	}
	return related, nil
}
