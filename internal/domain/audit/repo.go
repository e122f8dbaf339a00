package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// InsertTx appends an event inside the mutating transaction so the audit
// record commits or rolls back together with the state change.
func (r *Repo) InsertTx(ctx context.Context, tx pgx.Tx, e Event) error {
	if e.Trace == uuid.Nil {
		e.Trace = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO events (trace, actor, action, entity, entity_id, old, new, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.Trace, e.Actor, e.Action, e.Entity, e.EntityID, e.Old, e.New, e.Note)
	return err
}

func (r *Repo) Insert(ctx context.Context, e Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := r.InsertTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, trace, at, actor, action, entity, entity_id, old, new, note
		FROM events
		WHERE entity = $1 AND entity_id = $2
		ORDER BY id DESC
		LIMIT $3
	`, entity, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Trace, &e.At, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.Old, &e.New, &e.Note); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
