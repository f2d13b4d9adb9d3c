// Package processor applies merge commands read from Kafka.
package processor

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Merger runs one merge.
type Merger interface {
	Merge(ctx context.Context, req models.MergeRequest) (*models.MergeReport, error)
}

// Processor turns merge commands into merges.
type Processor struct {
	merger         Merger
	logger         ectologger.Logger
	defaultForward bool
}

// New creates a merge command processor. defaultForward applies to commands
// that omit the forward flag.
func New(merger Merger, logger ectologger.Logger, defaultForward bool) *Processor {
	return &Processor{
		merger:         merger,
		logger:         logger,
		defaultForward: defaultForward,
	}
}

// Handle is a kafka.MessageHandler. The consumer retries a message until
// Handle returns nil, so only failures that may succeed later are returned:
// commands that can never succeed are logged and dropped.
func (p *Processor) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Handle")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	})

	cmd, err := msg.ParseMergeCommand()
	if err != nil {
		log.WithError(err).Error("Dropping unparseable merge command")
		metrics.MergeCommandsConsumed.WithLabelValues(metrics.StatusInvalid).Inc()
		return nil
	}

	if cmd.RequestID != "" {
		ctx = appctx.SetRequestID(ctx, cmd.RequestID)
	}
	if cmd.OperatorID != "" {
		ctx = appctx.SetOperatorID(ctx, cmd.OperatorID)
	}

	report, err := p.merger.Merge(ctx, cmd.Request(p.defaultForward))
	if err != nil {
		if permanent(err) {
			log.WithError(err).Warn("Dropping merge command that cannot succeed")
			metrics.MergeCommandsConsumed.WithLabelValues(metrics.StatusInvalid).Inc()
			return nil
		}
		metrics.MergeCommandsConsumed.WithLabelValues(metrics.StatusFailed).Inc()
		tracing.RecordError(span, err)
		return err
	}

	metrics.MergeCommandsConsumed.WithLabelValues(metrics.StatusSuccess).Inc()
	log.WithField("merge_id", report.MergeID).Info("Applied merge command")
	return nil
}

// permanent reports client errors other than lock contention.
func permanent(err error) bool {
	var httperr *httperror.HTTPError
	if !errors.As(err, &httperr) {
		return false
	}
	code := httperr.Code
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError && code != http.StatusConflict
}
