package db

import (
	"context"

	"github.com/lib/pq"

	"procurement/models"
)

func (s *txStore) CreateUser(ctx context.Context, u *models.User) error {
	query := `
        INSERT INTO users (name, role, jurisdiction, points, reputation, warnings, verified, blacklisted, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, u.Name, u.Role, u.Jurisdiction, u.Points, u.Reputation,
		u.Warnings, u.Verified, u.Blacklisted, u.CreatedAt).Scan(&u.ID)
	return mapErr("user.create", "user", err)
}

func (s *txStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	err := s.tx.GetContext(ctx, u, `SELECT * FROM users WHERE id=$1`, id)
	if err != nil {
		return nil, mapErr("user.get", "user", err)
	}
	return u, nil
}

func (s *txStore) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	out := []models.User{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	return out, mapErr("user.list", "user", err)
}

func (s *txStore) AdjustUserTotals(ctx context.Context, id int64, points int, reputation float64) (*models.User, error) {
	u := &models.User{}
	query := `
        UPDATE users
        SET points = points + $2, reputation = reputation + $3
        WHERE id = $1
        RETURNING *`
	if err := s.tx.GetContext(ctx, u, query, id, points, reputation); err != nil {
		return nil, mapErr("user.adjust", "user", err)
	}
	return u, nil
}

func (s *txStore) IncrementWarnings(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.tx.GetContext(ctx, &n, `UPDATE users SET warnings = warnings + 1 WHERE id = $1 RETURNING warnings`, id)
	return n, mapErr("user.warn", "user", err)
}

func (s *txStore) SetUserStanding(ctx context.Context, id int64, verified, blacklisted bool) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE users SET verified = $2, blacklisted = $3 WHERE id = $1`, id, verified, blacklisted)
	return exactlyOne("user.standing", "user", res, err)
}
