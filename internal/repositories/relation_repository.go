package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/schema"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RelationRepository builds relation accessors over Postgres tables.
type RelationRepository struct {
	*Repository
}

// NewRelationRepository creates a new relation repository
func NewRelationRepository(db database.DB, logger ectologger.Logger) *RelationRepository {
	return &RelationRepository{
		Repository: NewRepository(db, logger),
	}
}

// ForeignKey returns the accessor of a relation stored as column on table,
// whose rows are identified by id.
func (r *RelationRepository) ForeignKey(table, column string) schema.Accessor {
	return schema.Accessor{
		Referencing: func(ctx context.Context, targetID string) ([]string, error) {
			return r.selectColumn(ctx, table, "id", column, targetID)
		},
		Set: func(ctx context.Context, ownerID, from, to string) (bool, error) {
			ctx, span := tracing.StartSpan(ctx, "RelationRepository.Set")
			defer span.End()

			ub := database.NewUpdateBuilder()
			ub.Update(table).
				Set(ub.Assign(column, to)).
				Where(ub.Equal("id", ownerID), ub.Equal(column, from))

			query, args := ub.Build()
			result, err := r.Exec(ctx).ExecContext(ctx, query, args...)
			if err != nil {
				return false, r.writeError(ctx, err, table, ownerID)
			}
			return r.changed(ctx, result, table)
		},
	}
}

// Junction returns the accessor of a many-to-many relation stored in a plain
// junction table. Symmetric junctions hold every link in both directions.
func (r *RelationRepository) Junction(table, ownerColumn, targetColumn string, symmetric bool) schema.Accessor {
	return schema.Accessor{
		Referencing: func(ctx context.Context, targetID string) ([]string, error) {
			return r.selectColumn(ctx, table, ownerColumn, targetColumn, targetID)
		},
		Members: func(ctx context.Context, ownerID string) ([]string, error) {
			return r.selectColumn(ctx, table, targetColumn, ownerColumn, ownerID)
		},
		Add: func(ctx context.Context, ownerID string, targetIDs ...string) error {
			ctx, span := tracing.StartSpan(ctx, "RelationRepository.Add")
			defer span.End()

			if len(targetIDs) == 0 {
				return nil
			}

			ib := database.NewInsertBuilder()
			ib.InsertInto(table).Cols(ownerColumn, targetColumn)
			for _, targetID := range targetIDs {
				ib.Values(ownerID, targetID)
				if symmetric {
					ib.Values(targetID, ownerID)
				}
			}
			ib.OnConflictDoNothing()

			query, args := ib.Build()
			if _, err := r.Exec(ctx).ExecContext(ctx, query, args...); err != nil {
				return r.writeError(ctx, err, table, ownerID)
			}
			return nil
		},
		Remove: func(ctx context.Context, ownerID string, targetIDs ...string) (bool, error) {
			ctx, span := tracing.StartSpan(ctx, "RelationRepository.Remove")
			defer span.End()

			if len(targetIDs) == 0 {
				return false, nil
			}

			targets := make([]any, len(targetIDs))
			for i, id := range targetIDs {
				targets[i] = id
			}

			del := database.NewDeleteBuilder()
			del.DeleteFrom(table)
			forward := del.And(del.Equal(ownerColumn, ownerID), del.In(targetColumn, targets...))
			if symmetric {
				backward := del.And(del.In(ownerColumn, targets...), del.Equal(targetColumn, ownerID))
				del.Where(del.Or(forward, backward))
			} else {
				del.Where(forward)
			}

			query, args := del.Build()
			result, err := r.Exec(ctx).ExecContext(ctx, query, args...)
			if err != nil {
				return false, r.writeError(ctx, err, table, ownerID)
			}
			return r.changed(ctx, result, table)
		},
	}
}

// Through returns the read-only accessor of a many-to-many relation whose
// junction rows carry their own columns and are moved by the junction's own
// foreign-key relation.
func (r *RelationRepository) Through(table, ownerColumn, targetColumn string) schema.Accessor {
	return schema.Accessor{
		Referencing: func(ctx context.Context, targetID string) ([]string, error) {
			return r.selectColumn(ctx, table, ownerColumn, targetColumn, targetID)
		},
		Members: func(ctx context.Context, ownerID string) ([]string, error) {
			return r.selectColumn(ctx, table, targetColumn, ownerColumn, ownerID)
		},
	}
}

func (r *RelationRepository) selectColumn(ctx context.Context, table, column, whereColumn, value string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationRepository.selectColumn")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(column).From(table).Where(sb.Equal(whereColumn, value)).OrderBy(column)

	query, args := sb.Build()
	ids := []string{}
	if err := r.Exec(ctx).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"table":  table,
			"column": whereColumn,
			"value":  value,
		}).Error("failed to read relation")
		tracing.RecordError(span, err)
		return nil, errors.Wrapf(err, "read %s.%s", table, column)
	}
	return ids, nil
}

// writeError keeps constraint violations recognisable to callers and logs the
// rest.
func (r *RelationRepository) writeError(ctx context.Context, err error, table, ownerID string) error {
	err = database.TranslateError(err)
	if database.IsUniqueViolation(err) {
		return errors.Wrap(err, fmt.Sprintf("%s(%s)", table, ownerID))
	}
	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"table":    table,
		"owner_id": ownerID,
	}).Error("failed to write relation")
	return errors.Wrapf(err, "write %s(%s)", table, ownerID)
}

func (r *RelationRepository) changed(ctx context.Context, result sql.Result, table string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("failed to read rows affected")
		return false, errors.Wrapf(err, "rows affected on %s", table)
	}
	return n > 0, nil
}
