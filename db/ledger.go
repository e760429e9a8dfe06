package db

import (
	"context"

	"procurement/models"
)

func (s *txStore) InsertPointsEntry(ctx context.Context, e *models.PointsEntry) error {
	query := `
        INSERT INTO points_ledger (user_id, points, reputation, reason, reference_type, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, e.UserID, e.Points, e.Reputation, e.Reason,
		e.ReferenceType, e.ReferenceID, e.CreatedAt).Scan(&e.ID)
	return mapErr("points.insert", "points entry", err)
}

func (s *txStore) ListPointsEntries(ctx context.Context, userID int64) ([]models.PointsEntry, error) {
	out := []models.PointsEntry{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM points_ledger WHERE user_id=$1 ORDER BY id`, userID)
	return out, mapErr("points.list", "points entry", err)
}

// Audit chain

func (s *txStore) LockChainHead(ctx context.Context) (string, error) {
	var head string
	err := s.tx.GetContext(ctx, &head, `SELECT head FROM audit_chain_head WHERE id = 1 FOR UPDATE`)
	return head, mapErr("audit.head", "audit chain head", err)
}

func (s *txStore) SetChainHead(ctx context.Context, hash string) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE audit_chain_head SET head=$1 WHERE id = 1`, hash)
	return exactlyOne("audit.head", "audit chain head", res, err)
}

func (s *txStore) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	query := `
        INSERT INTO audit_log (entry_id, actor_id, actor_role, action, entity_type, entity_id,
                               details, prev_hash, entry_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, e.EntryID, e.ActorID, e.ActorRole, e.Action, e.EntityType,
		e.EntityID, string(e.Details), e.PrevHash, e.EntryHash, e.CreatedAt).Scan(&e.ID)
	return mapErr("audit.insert", "audit entry", err)
}

func (s *txStore) ListAuditEntries(ctx context.Context) ([]models.AuditEntry, error) {
	out := []models.AuditEntry{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM audit_log ORDER BY id`)
	return out, mapErr("audit.list", "audit entry", err)
}
