// Package db is the PostgreSQL implementation of store.Store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"procurement/internal/apperr"
	"procurement/internal/store"
)

const uniqueViolation = "23505"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// InTx runs fn in a READ COMMITTED transaction. Lock* methods take row
// locks with SELECT ... FOR UPDATE.
func (s *Storage) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sqlx.Tx
}

var (
	_ store.Store = (*Storage)(nil)
	_ store.Tx    = (*txStore)(nil)
)

// mapErr turns driver errors into the core's error kinds.
func mapErr(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "%s not found", entity)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.Conflict(op, "%s already exists", entity)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// exactlyOne reports a missing row when an UPDATE touched nothing.
func exactlyOne(op, entity string, res sql.Result, err error) error {
	if err != nil {
		return mapErr(op, entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, "%s not found", entity)
	}
	return nil
}
