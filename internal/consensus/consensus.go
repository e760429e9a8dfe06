// Package consensus runs reviewer voting on work proofs and releases the
// next escrow tranche when a proof reaches quorum.
package consensus

import (
	"context"
	"strings"
	"time"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/config"
	"procurement/internal/effects"
	"procurement/internal/escrow"
	"procurement/internal/notify"
	"procurement/internal/points"
	"procurement/internal/store"
	"procurement/internal/tender"
	"procurement/models"
)

const (
	maxEvidence  = 20
	maxReviewers = 50
)

const (
	OutcomePending  = "pending"
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// Quorum is ceil(pct*n/100).
func Quorum(pct, n int) int {
	return (pct*n + 99) / 100
}

type Service struct {
	store  store.Store
	ledger *points.Ledger
	fx     *effects.Effects
	pct    int
	now    func() time.Time
}

func NewService(st store.Store, ledger *points.Ledger, cfg config.Voting, fx *effects.Effects) *Service {
	return &Service{store: st, ledger: ledger, fx: fx, pct: cfg.QuorumPercent, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type SubmitInput struct {
	ContractID      int64                `json:"contractId"`
	MilestoneID     *int64               `json:"milestoneId"`
	Description     string               `json:"description"`
	Evidence        []models.EvidenceRef `json:"evidence"`
	WorkPercentage  float64              `json:"workPercentage"`
	AmountRequested int64                `json:"amountRequested"`
}

func validateSubmit(in *SubmitInput) error {
	const op = "proof.submit"
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" || len(in.Description) > 5000 {
		return apperr.Validation(op, "description is required and max length 5000")
	}
	if len(in.Evidence) > maxEvidence {
		return apperr.Validation(op, "at most %d evidence references", maxEvidence)
	}
	for i, ev := range in.Evidence {
		if strings.TrimSpace(ev.URL) == "" {
			return apperr.Validation(op, "evidence %d has no url", i)
		}
		if ev.Latitude != nil && (*ev.Latitude < -90 || *ev.Latitude > 90) {
			return apperr.Validation(op, "evidence %d latitude out of range", i)
		}
		if ev.Longitude != nil && (*ev.Longitude < -180 || *ev.Longitude > 180) {
			return apperr.Validation(op, "evidence %d longitude out of range", i)
		}
	}
	if in.WorkPercentage < 0 || in.WorkPercentage > 100 {
		return apperr.Validation(op, "workPercentage must be between 0 and 100")
	}
	if in.AmountRequested < 0 {
		return apperr.Validation(op, "amountRequested must not be negative")
	}
	return nil
}

// Submit records a contractor's proof of work against their active contract.
func (s *Service) Submit(ctx context.Context, a actor.Actor, in SubmitInput) (*models.WorkProof, error) {
	const op = "proof.submit"
	if err := a.Require(op, actor.SubmitProof); err != nil {
		return nil, err
	}
	if err := validateSubmit(&in); err != nil {
		return nil, err
	}

	var (
		p  *models.WorkProof
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockContract(ctx, in.ContractID)
		if err != nil {
			return err
		}
		if c.ContractorID != a.ID {
			return apperr.Forbidden(op, "contract %d belongs to another contractor", c.ID)
		}
		if c.Status != models.ContractActive {
			return apperr.Conflict(op, "contract %d is %s", c.ID, c.Status)
		}
		now := s.now().UTC()
		if in.MilestoneID != nil {
			m, err := tx.GetMilestone(ctx, *in.MilestoneID)
			if err != nil {
				return err
			}
			if m.ContractID != c.ID {
				return apperr.Validation(op, "milestone %d is not part of contract %d", m.ID, c.ID)
			}
			if m.Status != models.MilestoneInProgress && m.Status != models.MilestoneRejected {
				return apperr.Conflict(op, "milestone %d is %s", m.Sequence, m.Status).
					WithValidNext(models.MilestoneInProgress, models.MilestoneRejected)
			}
			if err := tx.UpdateMilestoneStatus(ctx, m.ID, models.MilestoneProofUploaded, now); err != nil {
				return err
			}
		}
		p = &models.WorkProof{
			ContractID:      c.ID,
			ContractorID:    a.ID,
			MilestoneID:     in.MilestoneID,
			Description:     in.Description,
			Evidence:        models.EvidenceRefs(in.Evidence),
			WorkPercentage:  in.WorkPercentage,
			AmountRequested: in.AmountRequested,
			Status:          models.ProofPendingAssignment,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if p.Evidence == nil {
			p.Evidence = models.EvidenceRefs{}
		}
		if err := tx.CreateProof(ctx, p); err != nil {
			return err
		}
		fx.Audit(a, "proof.submitted", "work_proof", p.ID, map[string]any{
			"contract_id":      c.ID,
			"evidence":         len(p.Evidence),
			"work_percentage":  p.WorkPercentage,
			"amount_requested": p.AmountRequested,
		})
		fx.Notify(notify.Notification{
			Roles:      []string{string(actor.RoleStateOfficer)},
			Type:       "proof.submitted",
			Title:      "Work proof awaiting reviewers",
			Message:    p.Description,
			EntityType: "work_proof",
			EntityID:   p.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return p, nil
}

// AssignReviewers fixes the reviewer set and quorum of a proof.
func (s *Service) AssignReviewers(ctx context.Context, a actor.Actor, proofID int64, reviewerIDs []int64) (*models.WorkProof, error) {
	const op = "proof.assign"
	if err := a.Require(op, actor.AssignReviewers); err != nil {
		return nil, err
	}
	ids := dedupe(reviewerIDs)
	if len(ids) == 0 || len(ids) > maxReviewers {
		return nil, apperr.Validation(op, "between 1 and %d reviewers required", maxReviewers)
	}

	var (
		p  *models.WorkProof
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.LockProof(ctx, proofID)
		if err != nil {
			return err
		}
		if p.Status != models.ProofPendingAssignment {
			return apperr.Conflict(op, "proof %d is %s", p.ID, p.Status)
		}
		c, err := tx.GetContract(ctx, p.ContractID)
		if err != nil {
			return err
		}
		t, err := tx.GetTender(ctx, c.TenderID)
		if err != nil {
			return err
		}
		if err := a.RequireJurisdiction(op, t.Jurisdiction); err != nil {
			return err
		}
		users, err := tx.GetUsers(ctx, ids)
		if err != nil {
			return err
		}
		if len(users) != len(ids) {
			return apperr.NotFound(op, "some reviewers do not exist")
		}
		for _, u := range users {
			switch {
			case u.Role != string(actor.RoleReviewer):
				return apperr.Validation(op, "user %d is not a reviewer", u.ID)
			case u.Jurisdiction != t.Jurisdiction:
				return apperr.Validation(op, "reviewer %d is outside jurisdiction %s", u.ID, t.Jurisdiction)
			case u.ID == c.ContractorID:
				return apperr.Validation(op, "contractor cannot review own work")
			case !u.Verified || u.Blacklisted:
				return apperr.Validation(op, "reviewer %d is not eligible", u.ID)
			}
		}

		now := s.now().UTC()
		for _, id := range ids {
			if err := tx.AddReviewer(ctx, &models.ProofReviewer{
				ProofID: p.ID, ReviewerID: id, AssignedBy: a.ID, AssignedAt: now,
			}); err != nil {
				return err
			}
		}
		p.ReviewerCount = len(ids)
		p.RequiredApprovals = Quorum(s.pct, len(ids))
		p.Status = models.ProofUnderReview
		p.UpdatedAt = now
		if err := tx.UpdateProof(ctx, p); err != nil {
			return err
		}
		if p.MilestoneID != nil {
			if err := tx.UpdateMilestoneStatus(ctx, *p.MilestoneID, models.MilestoneUnderReview, now); err != nil {
				return err
			}
		}

		fx.Audit(a, "proof.reviewers_assigned", "work_proof", p.ID, map[string]any{
			"reviewers":          ids,
			"required_approvals": p.RequiredApprovals,
		})
		for _, id := range ids {
			fx.Notify(notify.Notification{
				UserID:     id,
				Type:       "proof.review_requested",
				Title:      "Work proof assigned for review",
				Message:    p.Description,
				EntityType: "work_proof",
				EntityID:   p.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return p, nil
}

type VoteResult struct {
	Proof    models.WorkProof `json:"proof"`
	Vote     models.ProofVote `json:"vote"`
	Outcome  string           `json:"outcome"`
	Payment  *models.Payment  `json:"payment,omitempty"`
	Contract *models.Contract `json:"contract,omitempty"`
}

// Vote casts an assigned reviewer's single vote and settles the proof once
// either side reaches quorum.
func (s *Service) Vote(ctx context.Context, a actor.Actor, proofID int64, decision, comment string) (*VoteResult, error) {
	const op = "proof.vote"
	if err := a.Require(op, actor.ReviewProof); err != nil {
		return nil, err
	}
	if decision != models.VoteApprove && decision != models.VoteReject {
		return nil, apperr.Validation(op, "decision must be %s or %s", models.VoteApprove, models.VoteReject)
	}
	if len(comment) > 2000 {
		return nil, apperr.Validation(op, "comment max length 2000")
	}

	var (
		res VoteResult
		fx  effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.LockProof(ctx, proofID)
		if err != nil {
			return err
		}
		if p.Status != models.ProofUnderReview {
			return apperr.Conflict(op, "proof %d is %s", p.ID, p.Status)
		}
		reviewers, err := tx.ListReviewers(ctx, p.ID)
		if err != nil {
			return err
		}
		if !assigned(reviewers, a.ID) {
			return apperr.Forbidden(op, "reviewer %d is not assigned to proof %d", a.ID, p.ID)
		}

		now := s.now().UTC()
		v := models.ProofVote{ProofID: p.ID, ReviewerID: a.ID, Decision: decision, Comment: comment, CreatedAt: now}
		if err := tx.CreateVote(ctx, &v); err != nil {
			return err
		}
		if decision == models.VoteApprove {
			p.ApprovalCount++
		} else {
			p.RejectionCount++
		}
		if p.ApprovalCount+p.RejectionCount > p.ReviewerCount {
			return apperr.Invariant(op, "proof %d has %d votes from %d reviewers", p.ID, p.ApprovalCount+p.RejectionCount, p.ReviewerCount)
		}
		fx.Audit(a, "proof.vote_cast", "work_proof", p.ID, map[string]any{
			"decision":   decision,
			"approvals":  p.ApprovalCount,
			"rejections": p.RejectionCount,
		})

		res.Outcome = OutcomePending
		switch {
		case p.ApprovalCount >= p.RequiredApprovals:
			res.Outcome = OutcomeApproved
			p.Status = models.ProofApproved
			if err := s.approve(ctx, tx, a, p, &res, &fx, now); err != nil {
				return err
			}
		case p.RejectionCount >= p.RequiredApprovals:
			res.Outcome = OutcomeRejected
			p.Status = models.ProofRejected
			if err := s.reject(ctx, tx, a, p, &fx, now); err != nil {
				return err
			}
		}
		p.UpdatedAt = now
		if err := tx.UpdateProof(ctx, p); err != nil {
			return err
		}
		if _, err := s.ledger.Apply(ctx, tx, a.ID, points.VerificationVote, points.Ref{Type: "work_proof", ID: p.ID}); err != nil {
			return err
		}
		res.Proof = *p
		res.Vote = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return &res, nil
}

func (s *Service) approve(ctx context.Context, tx store.Tx, a actor.Actor, p *models.WorkProof, res *VoteResult, fx *effects.Batch, now time.Time) error {
	c, err := tx.LockContract(ctx, p.ContractID)
	if err != nil {
		return err
	}
	ref := points.Ref{Type: "work_proof", ID: p.ID}
	if _, err := s.ledger.Apply(ctx, tx, p.ContractorID, points.TrancheApproved, ref); err != nil {
		return err
	}

	if p.MilestoneID != nil {
		if err := promote(ctx, tx, c.ID, *p.MilestoneID, now); err != nil {
			return err
		}
	}

	tranches, err := tx.ListTranches(ctx, c.ID)
	if err != nil {
		return err
	}
	fx.Audit(a, "proof.approved", "work_proof", p.ID, map[string]any{"approvals": p.ApprovalCount})
	fx.Notify(notify.Notification{
		UserID:     p.ContractorID,
		Type:       "proof.approved",
		Title:      "Work proof approved",
		Message:    p.Description,
		EntityType: "work_proof",
		EntityID:   p.ID,
	})

	next, ok := escrow.NextPending(tranches)
	res.Contract = c
	if c.Status != models.ContractActive {
		return nil
	}
	if !ok {
		// every tranche is already released; this approval closes the work
		return s.complete(ctx, tx, a, c, fx, now)
	}
	pay, err := escrow.Disburse(ctx, tx, c, next, now)
	if err != nil {
		return err
	}
	res.Payment = pay
	fx.Audit(a, "tranche.disbursed", "contract", c.ID, map[string]any{
		"sequence":       next.Sequence,
		"amount":         pay.Amount,
		"payment_ref":    pay.Reference,
		"escrow_balance": c.EscrowBalance,
		"proof_id":       p.ID,
	})
	return nil
}

// complete closes a contract whose tranches have all been released.
func (s *Service) complete(ctx context.Context, tx store.Tx, a actor.Actor, c *models.Contract, fx *effects.Batch, now time.Time) error {
	c.Status = models.ContractCompleted
	c.UpdatedAt = now
	if err := tx.UpdateContract(ctx, c); err != nil {
		return err
	}
	t, err := tx.LockTender(ctx, c.TenderID)
	if err != nil {
		return err
	}
	if err := tender.Walk(ctx, tx, t, now, models.TenderCompleted); err != nil {
		return err
	}
	if _, err := s.ledger.Apply(ctx, tx, c.ContractorID, points.Completion, points.Ref{Type: "contract", ID: c.ID}); err != nil {
		return err
	}
	fx.Audit(a, "contract.completed", "contract", c.ID, map[string]any{"tender_id": t.ID, "total_amount": c.TotalAmount})
	fx.Notify(notify.Notification{
		UserID:     c.ContractorID,
		Type:       "contract.completed",
		Title:      "Contract completed",
		Message:    t.Title,
		EntityType: "contract",
		EntityID:   c.ID,
	})
	return nil
}

// promote approves milestone id and starts the next pending one.
func promote(ctx context.Context, tx store.Tx, contractID, id int64, now time.Time) error {
	m, err := tx.GetMilestone(ctx, id)
	if err != nil {
		return err
	}
	if err := tx.UpdateMilestoneStatus(ctx, m.ID, models.MilestoneApproved, now); err != nil {
		return err
	}
	all, err := tx.ListMilestones(ctx, contractID)
	if err != nil {
		return err
	}
	for _, n := range all {
		if n.Sequence == m.Sequence+1 && n.Status == models.MilestonePending {
			return tx.UpdateMilestoneStatus(ctx, n.ID, models.MilestoneInProgress, now)
		}
	}
	return nil
}

func (s *Service) reject(ctx context.Context, tx store.Tx, a actor.Actor, p *models.WorkProof, fx *effects.Batch, now time.Time) error {
	if p.MilestoneID != nil {
		if err := tx.UpdateMilestoneStatus(ctx, *p.MilestoneID, models.MilestoneRejected, now); err != nil {
			return err
		}
	}
	warnings, err := tx.IncrementWarnings(ctx, p.ContractorID)
	if err != nil {
		return err
	}
	fx.Audit(a, "proof.rejected", "work_proof", p.ID, map[string]any{
		"rejections": p.RejectionCount,
		"warnings":   warnings,
	})
	fx.Notify(notify.Notification{
		UserID:     p.ContractorID,
		Type:       "proof.rejected",
		Title:      "Work proof rejected",
		Message:    p.Description,
		EntityType: "work_proof",
		EntityID:   p.ID,
	})
	return nil
}

type ProofView struct {
	Proof     models.WorkProof       `json:"proof"`
	Reviewers []models.ProofReviewer `json:"reviewers"`
	Votes     []models.ProofVote     `json:"votes"`
}

func (s *Service) Get(ctx context.Context, proofID int64) (*ProofView, error) {
	var v ProofView
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProof(ctx, proofID)
		if err != nil {
			return err
		}
		if v.Reviewers, err = tx.ListReviewers(ctx, p.ID); err != nil {
			return err
		}
		if v.Votes, err = tx.ListVotes(ctx, p.ID); err != nil {
			return err
		}
		v.Proof = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns the proofs of a contract, filtered by status when given.
func (s *Service) List(ctx context.Context, contractID int64, status string) ([]models.WorkProof, error) {
	var out []models.WorkProof
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetContract(ctx, contractID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListProofs(ctx, contractID, status)
		return err
	})
	return out, err
}

func assigned(reviewers []models.ProofReviewer, id int64) bool {
	for _, r := range reviewers {
		if r.ReviewerID == id {
			return true
		}
	}
	return false
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
