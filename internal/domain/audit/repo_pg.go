package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payerlink/payerlink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, action, actor_id, branch_id, entity_type, entity_id, meta, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.Action, &e.ActorID, &e.BranchID,
		&e.EntityType, &e.EntityID, &e.Meta, &e.CreatedAt,
	)
	return &e, err
}

func (r *RepoPG) Create(ctx context.Context, e *Event) error {
	q := fmt.Sprintf(`INSERT INTO audit_event (action, actor_id, branch_id, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, auditCols)

	created, err := scanEvent(r.conn(ctx).QueryRow(ctx, q,
		e.Action, e.ActorID, e.BranchID, e.EntityType, e.EntityID, e.Meta,
	))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	*e = *created
	return nil
}

func (r *RepoPG) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Event, int, error) {
	var total int
	countQ := `SELECT COUNT(*) FROM audit_event WHERE entity_type = $1 AND entity_id = $2`
	if err := r.conn(ctx).QueryRow(ctx, countQ, entityType, entityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, auditCols)

	rows, err := r.conn(ctx).Query(ctx, q, entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
