package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestMergeParams(t *testing.T) {
	started := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	params := mergeParams(&models.MergeReport{
		MergeID:    "m1",
		AbsorberID: "a",
		AbsorbeeID: "b",
		Applied:    5,
		Skipped:    []models.SkippedTransfer{{}, {}},
		Forwarded:  true,
		StartedAt:  started,
	})

	assert.Equal(t, "m1", params["merge_id"])
	assert.Equal(t, "a", params["absorber_id"])
	assert.Equal(t, "b", params["absorbee_id"])
	assert.Equal(t, "2024-03-09T10:30:00Z", params["merged_at"])
	assert.Equal(t, int64(5), params["applied"])
	assert.Equal(t, int64(2), params["skipped"])
	assert.Equal(t, true, params["forwarded"])
	assert.Equal(t, false, params["deactivated"])
}

func TestLineageFromRecords(t *testing.T) {
	keys := []string{"user_id", "depth", "merge_id", "merged_at"}
	records := []*neo4j.Record{
		{Keys: keys, Values: []any{"b", int64(1), "m2", "2024-03-09T10:30:00Z"}},
		{Keys: keys, Values: []any{"a", int64(2), "m1", nil}},
	}

	entries := lineageFromRecords(records)
	require.Len(t, entries, 2)

	assert.Equal(t, LineageEntry{
		UserID:   "b",
		MergeID:  "m2",
		Depth:    1,
		MergedAt: time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
	}, entries[0])
	assert.Equal(t, "a", entries[1].UserID)
	assert.Equal(t, 2, entries[1].Depth)
	assert.True(t, entries[1].MergedAt.IsZero())

	assert.Empty(t, lineageFromRecords(nil))
}
