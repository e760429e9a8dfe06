package db

import (
	"context"

	"procurement/models"
)

func (s *txStore) CreateProof(ctx context.Context, p *models.WorkProof) error {
	query := `
        INSERT INTO work_proofs (contract_id, contractor_id, milestone_id, description, evidence,
                                 work_percentage, amount_requested, status, reviewer_count,
                                 required_approvals, approval_count, rejection_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, p.ContractID, p.ContractorID, p.MilestoneID, p.Description, p.Evidence,
		p.WorkPercentage, p.AmountRequested, p.Status, p.ReviewerCount,
		p.RequiredApprovals, p.ApprovalCount, p.RejectionCount, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	return mapErr("proof.create", "work proof", err)
}

func (s *txStore) GetProof(ctx context.Context, id int64) (*models.WorkProof, error) {
	return s.proof(ctx, "proof.get", `SELECT * FROM work_proofs WHERE id=$1`, id)
}

func (s *txStore) LockProof(ctx context.Context, id int64) (*models.WorkProof, error) {
	return s.proof(ctx, "proof.lock", `SELECT * FROM work_proofs WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) proof(ctx context.Context, op, query string, id int64) (*models.WorkProof, error) {
	p := &models.WorkProof{}
	if err := s.tx.GetContext(ctx, p, query, id); err != nil {
		return nil, mapErr(op, "work proof", err)
	}
	return p, nil
}

func (s *txStore) UpdateProof(ctx context.Context, p *models.WorkProof) error {
	query := `
        UPDATE work_proofs
        SET status=$2, reviewer_count=$3, required_approvals=$4,
            approval_count=$5, rejection_count=$6, updated_at=$7
        WHERE id=$1`
	res, err := s.tx.ExecContext(ctx, query, p.ID, p.Status, p.ReviewerCount, p.RequiredApprovals,
		p.ApprovalCount, p.RejectionCount, p.UpdatedAt)
	return exactlyOne("proof.update", "work proof", res, err)
}

func (s *txStore) ListProofs(ctx context.Context, contractID int64, status string) ([]models.WorkProof, error) {
	out := []models.WorkProof{}
	query := `SELECT * FROM work_proofs WHERE contract_id=$1 AND ($2 = '' OR status = $2) ORDER BY id`
	err := s.tx.SelectContext(ctx, &out, query, contractID, status)
	return out, mapErr("proof.list", "work proof", err)
}

func (s *txStore) AddReviewer(ctx context.Context, r *models.ProofReviewer) error {
	query := `
        INSERT INTO proof_reviewers (proof_id, reviewer_id, assigned_by, assigned_at)
        VALUES ($1, $2, $3, $4)`
	_, err := s.tx.ExecContext(ctx, query, r.ProofID, r.ReviewerID, r.AssignedBy, r.AssignedAt)
	return mapErr("proof.assign", "reviewer assignment", err)
}

func (s *txStore) ListReviewers(ctx context.Context, proofID int64) ([]models.ProofReviewer, error) {
	out := []models.ProofReviewer{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM proof_reviewers WHERE proof_id=$1 ORDER BY assigned_at, reviewer_id`, proofID)
	return out, mapErr("proof.reviewers", "reviewer assignment", err)
}

func (s *txStore) CreateVote(ctx context.Context, v *models.ProofVote) error {
	query := `
        INSERT INTO proof_votes (proof_id, reviewer_id, decision, comment, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, v.ProofID, v.ReviewerID, v.Decision, v.Comment, v.CreatedAt).Scan(&v.ID)
	return mapErr("proof.vote", "vote", err)
}

func (s *txStore) ListVotes(ctx context.Context, proofID int64) ([]models.ProofVote, error) {
	out := []models.ProofVote{}
	err := s.tx.SelectContext(ctx, &out, `SELECT * FROM proof_votes WHERE proof_id=$1 ORDER BY id`, proofID)
	return out, mapErr("proof.votes", "vote", err)
}
