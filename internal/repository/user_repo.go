package repository

import (
	"context"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
)

const userColumns = `
	id, first_name, last_name, email, phone, sector, privilege,
	is_admin, active, on_leave, supervisor_id
`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Phone,
		&u.Sector,
		&u.Privilege,
		&u.IsAdmin,
		&u.Active,
		&u.OnLeave,
		&u.SupervisorID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID implements Repository.
func (p *pgRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(p.db.QueryRow(ctx, query, id))
}

// ListActiveUsers implements Repository.
func (p *pgRepo) ListActiveUsers(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE active = true ORDER BY id ASC`
	return p.listUsers(ctx, query)
}

// ListUsersBySectors implements Repository.
func (p *pgRepo) ListUsersBySectors(ctx context.Context, sectors []string) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE active = true AND sector = ANY($1)
		ORDER BY id ASC
	`
	return p.listUsers(ctx, query, sectors)
}

func (p *pgRepo) listUsers(ctx context.Context, query string, args ...interface{}) ([]*domain.User, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}
