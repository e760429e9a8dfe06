package db

import (
	"context"
	"time"

	"procurement/internal/apperr"
	"procurement/models"
)

func (s *txStore) CreateContract(ctx context.Context, c *models.Contract) error {
	query := `
        INSERT INTO contracts (tender_id, bid_id, contractor_id, total_amount, escrow_balance,
                               tranche_count, current_tranche, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, c.TenderID, c.BidID, c.ContractorID, c.TotalAmount, c.EscrowBalance,
		c.TrancheCount, c.CurrentTranche, c.Status, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	return mapErr("contract.create", "contract", err)
}

func (s *txStore) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	return s.contract(ctx, "contract.get", `SELECT * FROM contracts WHERE id=$1`, id)
}

func (s *txStore) LockContract(ctx context.Context, id int64) (*models.Contract, error) {
	return s.contract(ctx, "contract.lock", `SELECT * FROM contracts WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) GetContractByTender(ctx context.Context, tenderID int64) (*models.Contract, error) {
	return s.contract(ctx, "contract.by_tender", `SELECT * FROM contracts WHERE tender_id=$1`, tenderID)
}

func (s *txStore) contract(ctx context.Context, op, query string, arg int64) (*models.Contract, error) {
	c := &models.Contract{}
	if err := s.tx.GetContext(ctx, c, query, arg); err != nil {
		return nil, mapErr(op, "contract", err)
	}
	return c, nil
}

func (s *txStore) UpdateContract(ctx context.Context, c *models.Contract) error {
	query := `
        UPDATE contracts
        SET escrow_balance=$2, current_tranche=$3, status=$4, updated_at=$5
        WHERE id=$1`
	res, err := s.tx.ExecContext(ctx, query, c.ID, c.EscrowBalance, c.CurrentTranche, c.Status, c.UpdatedAt)
	return exactlyOne("contract.update", "contract", res, err)
}

// Tranches and payments

func (s *txStore) CreateTranche(ctx context.Context, tr *models.ContractTranche) error {
	query := `
        INSERT INTO contract_tranches (contract_id, sequence, amount, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, tr.ContractID, tr.Sequence, tr.Amount, tr.Status).Scan(&tr.ID)
	return mapErr("tranche.create", "tranche", err)
}

func (s *txStore) ListTranches(ctx context.Context, contractID int64) ([]models.ContractTranche, error) {
	out := []models.ContractTranche{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM contract_tranches WHERE contract_id=$1 ORDER BY sequence`, contractID)
	return out, mapErr("tranche.list", "tranche", err)
}

func (s *txStore) MarkTrancheDisbursed(ctx context.Context, id int64, at time.Time) error {
	const op = "tranche.disburse"
	res, err := s.tx.ExecContext(ctx,
		`UPDATE contract_tranches SET status=$2, disbursed_at=$3 WHERE id=$1 AND status=$4`,
		id, models.TrancheDisbursed, at, models.TranchePending)
	if err != nil {
		return mapErr(op, "tranche", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, "tranche", err)
	}
	if n == 0 {
		return apperr.Conflict(op, "tranche %d is not pending", id)
	}
	return nil
}

func (s *txStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
        INSERT INTO payments (contract_id, tranche_id, amount, reference, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, p.ContractID, p.TrancheID, p.Amount, p.Reference, p.CreatedAt).Scan(&p.ID)
	return mapErr("payment.create", "payment", err)
}

func (s *txStore) ListPayments(ctx context.Context, contractID int64) ([]models.Payment, error) {
	out := []models.Payment{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM payments WHERE contract_id=$1 ORDER BY id`, contractID)
	return out, mapErr("payment.list", "payment", err)
}

// Milestones

func (s *txStore) CreateMilestone(ctx context.Context, m *models.Milestone) error {
	query := `
        INSERT INTO milestones (contract_id, sequence, title, status, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, m.ContractID, m.Sequence, m.Title, m.Status, m.UpdatedAt).Scan(&m.ID)
	return mapErr("milestone.create", "milestone", err)
}

func (s *txStore) GetMilestone(ctx context.Context, id int64) (*models.Milestone, error) {
	m := &models.Milestone{}
	if err := s.tx.GetContext(ctx, m, `SELECT * FROM milestones WHERE id=$1`, id); err != nil {
		return nil, mapErr("milestone.get", "milestone", err)
	}
	return m, nil
}

func (s *txStore) ListMilestones(ctx context.Context, contractID int64) ([]models.Milestone, error) {
	out := []models.Milestone{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM milestones WHERE contract_id=$1 ORDER BY sequence`, contractID)
	return out, mapErr("milestone.list", "milestone", err)
}

func (s *txStore) UpdateMilestoneStatus(ctx context.Context, id int64, status string, at time.Time) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE milestones SET status=$2, updated_at=$3 WHERE id=$1`, id, status, at)
	return exactlyOne("milestone.status", "milestone", res, err)
}
