package memstore

import (
	"context"

	"procurement/internal/apperr"
	"procurement/models"
)

func (t *tx) CreateProof(_ context.Context, p *models.WorkProof) error {
	p.ID = t.st.next("proofs")
	t.st.proofs[p.ID] = *p
	return nil
}

func (t *tx) GetProof(_ context.Context, id int64) (*models.WorkProof, error) {
	p, ok := t.st.proofs[id]
	if !ok {
		return nil, apperr.NotFound("proof.get", "work proof %d not found", id)
	}
	return &p, nil
}

func (t *tx) LockProof(ctx context.Context, id int64) (*models.WorkProof, error) {
	return t.GetProof(ctx, id)
}

func (t *tx) UpdateProof(_ context.Context, p *models.WorkProof) error {
	if _, ok := t.st.proofs[p.ID]; !ok {
		return apperr.NotFound("proof.update", "work proof %d not found", p.ID)
	}
	t.st.proofs[p.ID] = *p
	return nil
}

func (t *tx) ListProofs(_ context.Context, contractID int64, status string) ([]models.WorkProof, error) {
	return sortedValues(t.st.proofs, func(p models.WorkProof) bool {
		return p.ContractID == contractID && (status == "" || p.Status == status)
	}), nil
}

func (t *tx) AddReviewer(_ context.Context, r *models.ProofReviewer) error {
	for _, other := range t.st.reviewers {
		if other.ProofID == r.ProofID && other.ReviewerID == r.ReviewerID {
			return apperr.Conflict("proof.assign", "reviewer %d already assigned", r.ReviewerID)
		}
	}
	t.st.reviewers = append(t.st.reviewers, *r)
	return nil
}

func (t *tx) ListReviewers(_ context.Context, proofID int64) ([]models.ProofReviewer, error) {
	var out []models.ProofReviewer
	for _, r := range t.st.reviewers {
		if r.ProofID == proofID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *tx) CreateVote(_ context.Context, v *models.ProofVote) error {
	for _, other := range t.st.votes {
		if other.ProofID == v.ProofID && other.ReviewerID == v.ReviewerID {
			return apperr.Conflict("proof.vote", "reviewer %d already voted on proof %d", v.ReviewerID, v.ProofID)
		}
	}
	v.ID = t.st.next("votes")
	t.st.votes[v.ID] = *v
	return nil
}

func (t *tx) ListVotes(_ context.Context, proofID int64) ([]models.ProofVote, error) {
	return sortedValues(t.st.votes, func(v models.ProofVote) bool { return v.ProofID == proofID }), nil
}

// Complaints

func (t *tx) CreateComplaint(_ context.Context, c *models.Complaint) error {
	c.ID = t.st.next("complaints")
	t.st.complaints[c.ID] = *c
	return nil
}

func (t *tx) GetComplaint(_ context.Context, id int64) (*models.Complaint, error) {
	c, ok := t.st.complaints[id]
	if !ok {
		return nil, apperr.NotFound("complaint.get", "complaint %d not found", id)
	}
	return &c, nil
}

func (t *tx) LockComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	return t.GetComplaint(ctx, id)
}

func (t *tx) UpdateComplaint(_ context.Context, c *models.Complaint) error {
	if _, ok := t.st.complaints[c.ID]; !ok {
		return apperr.NotFound("complaint.update", "complaint %d not found", c.ID)
	}
	t.st.complaints[c.ID] = *c
	return nil
}

func (t *tx) CreateCase(_ context.Context, c *models.Case) error {
	for _, other := range t.st.cases {
		if other.ComplaintID == c.ComplaintID {
			return apperr.Conflict("case.create", "complaint %d already escalated", c.ComplaintID)
		}
	}
	c.ID = t.st.next("cases")
	t.st.cases[c.ID] = *c
	return nil
}

func (t *tx) GetCaseByComplaint(_ context.Context, complaintID int64) (*models.Case, error) {
	for _, c := range t.st.cases {
		if c.ComplaintID == complaintID {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("case.get", "complaint %d has no case", complaintID)
}

func (t *tx) UpdateCase(_ context.Context, c *models.Case) error {
	if _, ok := t.st.cases[c.ID]; !ok {
		return apperr.NotFound("case.update", "case %d not found", c.ID)
	}
	t.st.cases[c.ID] = *c
	return nil
}

// Points ledger

func (t *tx) InsertPointsEntry(_ context.Context, e *models.PointsEntry) error {
	e.ID = t.st.next("points")
	t.st.points[e.ID] = *e
	return nil
}

func (t *tx) ListPointsEntries(_ context.Context, userID int64) ([]models.PointsEntry, error) {
	return sortedValues(t.st.points, func(e models.PointsEntry) bool { return e.UserID == userID }), nil
}

// Audit chain

func (t *tx) LockChainHead(_ context.Context) (string, error) {
	return t.st.chainHead, nil
}

func (t *tx) SetChainHead(_ context.Context, hash string) error {
	t.st.chainHead = hash
	return nil
}

func (t *tx) InsertAuditEntry(_ context.Context, e *models.AuditEntry) error {
	e.ID = t.st.next("audit")
	t.st.audit = append(t.st.audit, *e)
	return nil
}

func (t *tx) ListAuditEntries(_ context.Context) ([]models.AuditEntry, error) {
	return append([]models.AuditEntry(nil), t.st.audit...), nil
}
