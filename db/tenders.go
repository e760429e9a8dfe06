package db

import (
	"context"
	"time"

	"procurement/models"
)

func (s *txStore) CreateTender(ctx context.Context, t *models.Tender) error {
	query := `
        INSERT INTO tenders (title, description, jurisdiction, budget, bid_deadline, project_deadline,
                             status, tranche_count, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, t.Title, t.Description, t.Jurisdiction, t.Budget,
		t.BidDeadline, t.ProjectDeadline, t.Status, t.TrancheCount, t.CreatedBy, t.CreatedAt, t.UpdatedAt).
		Scan(&t.ID)
	return mapErr("tender.create", "tender", err)
}

func (s *txStore) GetTender(ctx context.Context, id int64) (*models.Tender, error) {
	return s.tender(ctx, "tender.get", `SELECT * FROM tenders WHERE id=$1`, id)
}

func (s *txStore) LockTender(ctx context.Context, id int64) (*models.Tender, error) {
	return s.tender(ctx, "tender.lock", `SELECT * FROM tenders WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) tender(ctx context.Context, op, query string, id int64) (*models.Tender, error) {
	t := &models.Tender{}
	if err := s.tx.GetContext(ctx, t, query, id); err != nil {
		return nil, mapErr(op, "tender", err)
	}
	return t, nil
}

func (s *txStore) UpdateTenderStatus(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE tenders SET status=$2, updated_at=$3 WHERE id=$1`, id, status, at)
	return exactlyOne("tender.status", "tender", res, err)
}

// Bids

func (s *txStore) CreateBid(ctx context.Context, b *models.Bid) error {
	query := `
        INSERT INTO bids (tender_id, contractor_id, amount, timeline_days, proposal,
                          proximity_score, ai_score, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, b.TenderID, b.ContractorID, b.Amount, b.TimelineDays, b.Proposal,
		b.ProximityScore, b.AIScore, b.Status, b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	return mapErr("bid.create", "bid", err)
}

func (s *txStore) ListBids(ctx context.Context, tenderID int64) ([]models.Bid, error) {
	out := []models.Bid{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM bids WHERE tender_id=$1 ORDER BY id`, tenderID)
	return out, mapErr("bid.list", "bid", err)
}

func (s *txStore) UpdateBidScores(ctx context.Context, id int64, proximity, ai float64) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE bids SET proximity_score=$2, ai_score=$3 WHERE id=$1`, id, proximity, ai)
	return exactlyOne("bid.score", "bid", res, err)
}

func (s *txStore) UpdateBidStatus(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE bids SET status=$2, updated_at=$3 WHERE id=$1`, id, status, at)
	return exactlyOne("bid.status", "bid", res, err)
}
