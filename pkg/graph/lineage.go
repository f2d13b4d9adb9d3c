package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const recordMergeCypher = `
	MERGE (absorbee:User {id: $absorbee_id})
	MERGE (absorber:User {id: $absorber_id})
	MERGE (absorbee)-[r:MERGED_INTO {merge_id: $merge_id}]->(absorber)
	SET r.merged_at = $merged_at,
		r.forwarded = $forwarded,
		r.deactivated = $deactivated,
		r.applied = $applied,
		r.skipped = $skipped
`

// Hop count is inlined because Cypher does not accept a parameter there.
const lineageCypher = `
	MATCH (src:User)-[rels:MERGED_INTO*1..%d]->(u:User {id: $id})
	RETURN src.id AS user_id,
		size(rels) AS depth,
		head(rels).merge_id AS merge_id,
		head(rels).merged_at AS merged_at
	ORDER BY depth, user_id
`

// Executor runs managed graph transactions.
type Executor interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
	ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
}

// LineageEntry is one account folded, directly or transitively, into a user.
type LineageEntry struct {
	UserID   string    `json:"user_id"`
	MergeID  string    `json:"merge_id"`
	MergedAt time.Time `json:"merged_at"`
	Depth    int       `json:"depth"`
}

// LineageService records merges as (:User)-[:MERGED_INTO]->(:User) edges.
type LineageService struct {
	client   Executor
	logger   ectologger.Logger
	maxDepth int
}

// NewLineageService creates a new lineage service. maxDepth bounds how many
// merges Lineage walks back.
func NewLineageService(client Executor, logger ectologger.Logger, maxDepth int) *LineageService {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return &LineageService{
		client:   client,
		logger:   logger,
		maxDepth: maxDepth,
	}
}

// RecordMerge adds the merge edge. Recording the same merge twice keeps one
// edge.
func (s *LineageService) RecordMerge(ctx context.Context, report *models.MergeReport) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.RecordMerge")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, recordMergeCypher, mergeParams(report))
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("merge_id", report.MergeID).Error("Failed to record merge lineage")
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to record merge lineage: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":    report.MergeID,
		"absorber_id": report.AbsorberID,
		"absorbee_id": report.AbsorbeeID,
	}).Debug("Recorded merge lineage")
	return nil
}

// Lineage lists the accounts merged into userID, nearest first.
func (s *LineageService) Lineage(ctx context.Context, userID string) ([]LineageEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.Lineage")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, fmt.Sprintf(lineageCypher, s.maxDepth), map[string]any{"id": userID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return lineageFromRecords(records), nil
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("Failed to read merge lineage")
		return nil, fmt.Errorf("failed to read merge lineage: %w", err)
	}

	return result.([]LineageEntry), nil
}

func mergeParams(report *models.MergeReport) map[string]any {
	return map[string]any{
		"merge_id":    report.MergeID,
		"absorber_id": report.AbsorberID,
		"absorbee_id": report.AbsorbeeID,
		"merged_at":   report.StartedAt.UTC().Format(time.RFC3339),
		"forwarded":   report.Forwarded,
		"deactivated": report.Deactivated,
		"applied":     int64(report.Applied),
		"skipped":     int64(len(report.Skipped)),
	}
}

func lineageFromRecords(records []*neo4j.Record) []LineageEntry {
	entries := make([]LineageEntry, 0, len(records))
	for _, record := range records {
		var entry LineageEntry
		if v, ok := record.Get("user_id"); ok {
			entry.UserID, _ = v.(string)
		}
		if v, ok := record.Get("merge_id"); ok {
			entry.MergeID, _ = v.(string)
		}
		if v, ok := record.Get("depth"); ok {
			if depth, ok := v.(int64); ok {
				entry.Depth = int(depth)
			}
		}
		if v, ok := record.Get("merged_at"); ok {
			if s, ok := v.(string); ok {
				entry.MergedAt, _ = time.Parse(time.RFC3339, s)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
