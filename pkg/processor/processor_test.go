package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeMerger struct {
	requests  []models.MergeRequest
	operators []string
	err       error
}

func (m *fakeMerger) Merge(ctx context.Context, req models.MergeRequest) (*models.MergeReport, error) {
	m.requests = append(m.requests, req)
	m.operators = append(m.operators, appctx.GetOperatorID(ctx))
	if m.err != nil {
		return nil, m.err
	}
	return &models.MergeReport{MergeID: "m1"}, nil
}

func TestProcessor_Handle(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	tests := []struct {
		name        string
		value       string
		mergeErr    error
		wantErr     bool
		wantMerges  int
		wantForward bool
	}{
		{
			name:        "applies command with default forward",
			value:       `{"absorber_id":"a","absorbee_id":"b","operator_id":"ops"}`,
			wantMerges:  1,
			wantForward: true,
		},
		{
			name:       "drops malformed command",
			value:      `not json`,
			wantMerges: 0,
		},
		{
			name:       "drops invalid request",
			value:      `{"absorber_id":"a","absorbee_id":"a"}`,
			mergeErr:   httperror.NewHTTPError(http.StatusBadRequest, "invalid merge request"),
			wantMerges: 1,
		},
		{
			name:       "drops missing user",
			value:      `{"absorber_id":"a","absorbee_id":"b"}`,
			mergeErr:   httperror.NewHTTPError(http.StatusNotFound, "user b does not exist"),
			wantMerges: 1,
		},
		{
			name:       "drops wrapped missing user",
			value:      `{"absorber_id":"a","absorbee_id":"b"}`,
			mergeErr:   fmt.Errorf("load absorbee: %w", httperror.NewHTTPError(http.StatusNotFound, "user b does not exist")),
			wantMerges: 1,
		},
		{
			name:       "retries on lock contention",
			value:      `{"absorber_id":"a","absorbee_id":"b"}`,
			mergeErr:   httperror.NewHTTPError(http.StatusConflict, "in progress"),
			wantErr:    true,
			wantMerges: 1,
		},
		{
			name:       "retries on database failure",
			value:      `{"absorber_id":"a","absorbee_id":"b"}`,
			mergeErr:   errors.New("connection refused"),
			wantErr:    true,
			wantMerges: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merger := &fakeMerger{err: tt.mergeErr}
			p := New(merger, logger, true)

			err := p.Handle(context.Background(), &kafka.IncomingMessage{Value: []byte(tt.value)})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			require.Len(t, merger.requests, tt.wantMerges)
			if tt.wantMerges > 0 && tt.mergeErr == nil {
				assert.Equal(t, tt.wantForward, merger.requests[0].Forward)
				assert.Equal(t, "ops", merger.operators[0])
			}
		})
	}
}
