package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool

	// bootstrapAdmin is granted admin implicitly so the capability table
	// can be populated without a prior admin row.
	bootstrapAdmin string
}

func NewRepo(pool *pgxpool.Pool, bootstrapAdmin string) *Repo {
	return &Repo{pool: pool, bootstrapAdmin: bootstrapAdmin}
}

func (r *Repo) Grant(ctx context.Context, account string, role Role, grantedBy string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO roles (account, role, granted_by)
		VALUES ($1,$2,$3)
		ON CONFLICT (account, role) DO NOTHING
	`, account, string(role), grantedBy)
	return err
}

func (r *Repo) Revoke(ctx context.Context, account string, role Role) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM roles WHERE account = $1 AND role = $2
	`, account, string(role))
	return err
}

func (r *Repo) Has(ctx context.Context, account string, role Role) (bool, error) {
	if role == RoleAdmin && account != "" && account == r.bootstrapAdmin {
		return true, nil
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM roles WHERE account = $1 AND role = $2
	`, account, string(role)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) Roles(ctx context.Context, account string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role FROM roles WHERE account = $1 ORDER BY role
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, Role(s))
	}
	if account == r.bootstrapAdmin && account != "" && !contains(out, RoleAdmin) {
		out = append(out, RoleAdmin)
	}
	return out, rows.Err()
}

// Require returns ErrUnauthorized unless account holds at least one of the
// given roles. Admin passes every check.
func (r *Repo) Require(ctx context.Context, account string, roles ...Role) error {
	if ok, err := r.Has(ctx, account, RoleAdmin); err != nil {
		return err
	} else if ok {
		return nil
	}
	for _, role := range roles {
		if role == RoleAdmin {
			continue
		}
		if ok, err := r.Has(ctx, account, role); err != nil {
			return err
		} else if ok {
			return nil
		}
	}
	return ErrUnauthorized
}

func contains(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
