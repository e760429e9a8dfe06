// Package tender owns the tender lifecycle and bid intake.
package tender

import (
	"context"
	"strings"
	"time"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/effects"
	"procurement/internal/notify"
	"procurement/internal/store"
	"procurement/models"
)

const MaxTranches = 20

// engineOwned statuses are entered only by the award and consensus engines,
// which create the contract state that must accompany them.
var engineOwned = map[string]bool{
	models.TenderAwarded:    true,
	models.TenderInProgress: true,
	models.TenderCompleted:  true,
}

type Service struct {
	store store.Store
	fx    *effects.Effects
	now   func() time.Time
}

func NewService(st store.Store, fx *effects.Effects) *Service {
	return &Service{store: st, fx: fx, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Jurisdiction    string    `json:"jurisdiction"`
	Budget          int64     `json:"budget"`
	BidDeadline     time.Time `json:"bidDeadline"`
	ProjectDeadline time.Time `json:"projectDeadline"`
	TrancheCount    int       `json:"trancheCount"`
}

func validateCreate(in *CreateInput) error {
	const op = "tender.create"
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > 200 {
		return apperr.Validation(op, "title is required and max length 200")
	}
	if len(in.Description) > 5000 {
		return apperr.Validation(op, "description max length 5000")
	}
	if in.Budget <= 0 {
		return apperr.Validation(op, "budget must be positive")
	}
	if in.TrancheCount < 1 || in.TrancheCount > MaxTranches {
		return apperr.Validation(op, "trancheCount must be between 1 and %d", MaxTranches)
	}
	if int64(in.TrancheCount) > in.Budget {
		return apperr.Validation(op, "budget too small for %d tranches", in.TrancheCount)
	}
	if in.BidDeadline.IsZero() || in.ProjectDeadline.IsZero() {
		return apperr.Validation(op, "bidDeadline and projectDeadline are required")
	}
	if !in.BidDeadline.Before(in.ProjectDeadline) {
		return apperr.Validation(op, "bidDeadline must be before projectDeadline")
	}
	return nil
}

// Create drafts a tender in the actor's jurisdiction.
func (s *Service) Create(ctx context.Context, a actor.Actor, in CreateInput) (*models.Tender, error) {
	const op = "tender.create"
	if err := a.Require(op, actor.ManageTender); err != nil {
		return nil, err
	}
	if in.Jurisdiction == "" {
		in.Jurisdiction = a.Jurisdiction
	}
	if err := a.RequireJurisdiction(op, in.Jurisdiction); err != nil {
		return nil, err
	}
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &models.Tender{
		Title:           in.Title,
		Description:     in.Description,
		Jurisdiction:    in.Jurisdiction,
		Budget:          in.Budget,
		BidDeadline:     in.BidDeadline.UTC(),
		ProjectDeadline: in.ProjectDeadline.UTC(),
		Status:          models.TenderDraft,
		TrancheCount:    in.TrancheCount,
		CreatedBy:       a.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	var fx effects.Batch
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateTender(ctx, t); err != nil {
			return err
		}
		fx.Audit(a, "tender.created", "tender", t.ID, map[string]any{
			"title": t.Title, "jurisdiction": t.Jurisdiction, "tranche_count": t.TrancheCount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return t, nil
}

// Get returns a tender; the budget is hidden from anyone who cannot manage it.
func (s *Service) Get(ctx context.Context, a actor.Actor, id int64) (*models.Tender, error) {
	var t *models.Tender
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.GetTender(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !a.Can(actor.ManageTender) || !a.InJurisdiction(t.Jurisdiction) {
		t.Budget = 0
	}
	return t, nil
}

// Transition moves a tender along one edge of the status table.
func (s *Service) Transition(ctx context.Context, a actor.Actor, id int64, next string) (*models.Tender, error) {
	const op = "tender.transition"
	if err := a.Require(op, actor.ManageTender); err != nil {
		return nil, err
	}
	if !IsKnownStatus(next) {
		return nil, apperr.Validation(op, "unknown status %q", next)
	}

	var (
		t    *models.Tender
		prev string
		fx   effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		// contract before tender, the order work-proof votes lock in
		var c *models.Contract
		if next == models.TenderCancelled {
			var err error
			if c, err = lockContractOf(ctx, tx, id); err != nil {
				return err
			}
		}
		var err error
		t, err = tx.LockTender(ctx, id)
		if err != nil {
			return err
		}
		if err := a.RequireJurisdiction(op, t.Jurisdiction); err != nil {
			return err
		}
		if IsTerminal(t.Status) {
			return apperr.Conflict(op, "tender %d is %s", t.ID, t.Status)
		}
		if !IsValidTransition(t.Status, next) {
			return apperr.Conflict(op, "cannot move tender from %s to %s", t.Status, next).
				WithValidNext(ValidTransitions(t.Status)...)
		}
		if engineOwned[next] {
			return apperr.Conflict(op, "status %s is set by the award and work-proof engines", next).
				WithValidNext(manualTransitions(t.Status)...)
		}
		prev = t.Status
		t.Status = next
		t.UpdatedAt = s.now().UTC()
		if err := tx.UpdateTenderStatus(ctx, t.ID, next, t.UpdatedAt); err != nil {
			return err
		}
		fx.Audit(a, "tender.status_changed", "tender", t.ID, map[string]any{"from": prev, "to": next})
		if c != nil && c.Status == models.ContractActive {
			c.Status = models.ContractTerminated
			c.UpdatedAt = t.UpdatedAt
			if err := tx.UpdateContract(ctx, c); err != nil {
				return err
			}
			fx.Audit(a, "contract.terminated", "contract", c.ID, map[string]any{
				"tender_id":      t.ID,
				"escrow_balance": c.EscrowBalance,
			})
			fx.Notify(notify.Notification{
				UserID:     c.ContractorID,
				Type:       "contract.terminated",
				Title:      "Contract terminated",
				Message:    t.Title,
				EntityType: "contract",
				EntityID:   c.ID,
			})
		}
		if next == models.TenderOpen {
			fx.Notify(notify.Notification{
				Roles:      []string{string(actor.RoleContractor)},
				Type:       "tender.opened",
				Title:      "New tender open for bids",
				Message:    t.Title,
				EntityType: "tender",
				EntityID:   t.ID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return t, nil
}

// lockContractOf locks the contract awarded on tender id, if there is one.
func lockContractOf(ctx context.Context, tx store.Tx, tenderID int64) (*models.Contract, error) {
	c, err := tx.GetContractByTender(ctx, tenderID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx.LockContract(ctx, c.ID)
}

func manualTransitions(current string) []string {
	var out []string
	for _, s := range ValidTransitions(current) {
		if !engineOwned[s] {
			out = append(out, s)
		}
	}
	return out
}

// Transitions returns the statuses the actor could move the tender to now.
func (s *Service) Transitions(ctx context.Context, id int64) (current string, next []string, err error) {
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTender(ctx, id)
		if err != nil {
			return err
		}
		current, next = t.Status, ValidTransitions(t.Status)
		return nil
	})
	return current, next, err
}

type BidInput struct {
	Amount       int64  `json:"amount"`
	TimelineDays *int   `json:"timelineDays"`
	Proposal     string `json:"proposal"`
}

// SubmitBid records a contractor's single bid on an open tender.
func (s *Service) SubmitBid(ctx context.Context, a actor.Actor, tenderID int64, in BidInput) (*models.Bid, error) {
	const op = "bid.submit"
	if err := a.Require(op, actor.SubmitBid); err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, apperr.Validation(op, "amount must be positive")
	}
	if in.TimelineDays != nil && *in.TimelineDays <= 0 {
		return nil, apperr.Validation(op, "timelineDays must be positive")
	}
	if len(in.Proposal) > 5000 {
		return nil, apperr.Validation(op, "proposal max length 5000")
	}

	var (
		b  *models.Bid
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTender(ctx, tenderID)
		if err != nil {
			return err
		}
		if t.Status != models.TenderOpen {
			return apperr.Conflict(op, "tender %d is %s, not open", t.ID, t.Status)
		}
		now := s.now().UTC()
		if now.After(t.BidDeadline) {
			return apperr.Conflict(op, "bid deadline %s has passed", t.BidDeadline.Format(time.RFC3339))
		}
		u, err := tx.GetUser(ctx, a.ID)
		if err != nil {
			return err
		}
		if !u.Verified || u.Blacklisted {
			return apperr.Forbidden(op, "contractor %d is not eligible to bid", u.ID)
		}
		b = &models.Bid{
			TenderID:     t.ID,
			ContractorID: a.ID,
			Amount:       in.Amount,
			TimelineDays: in.TimelineDays,
			Proposal:     in.Proposal,
			Status:       models.BidSubmitted,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateBid(ctx, b); err != nil {
			return err
		}
		fx.Audit(a, "bid.submitted", "bid", b.ID, map[string]any{"tender_id": t.ID, "amount": b.Amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return b, nil
}

// Shortlist marks a submitted bid for closer evaluation. Shortlisted bids
// stay in the ranking the award engine scores.
func (s *Service) Shortlist(ctx context.Context, a actor.Actor, tenderID, bidID int64) (*models.Bid, error) {
	const op = "bid.shortlist"
	if err := a.Require(op, actor.ManageTender); err != nil {
		return nil, err
	}

	var (
		b  *models.Bid
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTender(ctx, tenderID)
		if err != nil {
			return err
		}
		if err := a.RequireJurisdiction(op, t.Jurisdiction); err != nil {
			return err
		}
		if t.Status != models.TenderOpen && t.Status != models.TenderClosed {
			return apperr.Conflict(op, "tender %d is %s", t.ID, t.Status)
		}
		bids, err := tx.ListBids(ctx, t.ID)
		if err != nil {
			return err
		}
		for i := range bids {
			if bids[i].ID == bidID {
				b = &bids[i]
				break
			}
		}
		if b == nil {
			return apperr.NotFound(op, "bid %d not found on tender %d", bidID, t.ID)
		}
		if b.Status != models.BidSubmitted {
			return apperr.Conflict(op, "bid %d is %s", b.ID, b.Status)
		}
		b.Status = models.BidShortlisted
		b.UpdatedAt = s.now().UTC()
		if err := tx.UpdateBidStatus(ctx, b.ID, b.Status, b.UpdatedAt); err != nil {
			return err
		}
		fx.Audit(a, "bid.shortlisted", "bid", b.ID, map[string]any{"tender_id": t.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return b, nil
}

// ListBids returns every bid to the tender's managers and only their own
// bid to contractors.
func (s *Service) ListBids(ctx context.Context, a actor.Actor, tenderID int64) ([]models.Bid, error) {
	var out []models.Bid
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTender(ctx, tenderID)
		if err != nil {
			return err
		}
		bids, err := tx.ListBids(ctx, tenderID)
		if err != nil {
			return err
		}
		if a.Can(actor.ManageTender) && a.InJurisdiction(t.Jurisdiction) {
			out = bids
			return nil
		}
		out = []models.Bid{}
		for _, b := range bids {
			if b.ContractorID == a.ID {
				out = append(out, b)
			}
		}
		return nil
	})
	return out, err
}
