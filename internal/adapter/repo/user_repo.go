package repo

import (
	"context"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserStore backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// UpsertByEmail inserts the user on first sight and reports creation.
func (r *UserRepositoryPG) UpsertByEmail(ctx context.Context, email, locale string) (*domain.User, bool, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertUserByEmail, email, locale)
	var u domain.User
	var created bool
	if err := row.Scan(&u.ID, &u.Email, &u.Locale, &u.Credits, &u.CreatedAt, &u.UpdatedAt, &created); err != nil {
		if infra.IsNoRows(err) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, err
	}
	return &u, created, nil
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Locale, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserStore = (*UserRepositoryPG)(nil)
