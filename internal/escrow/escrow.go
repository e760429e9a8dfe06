// Package escrow tracks a contract's escrow balance and tranche schedule.
//
// Invariants: tranche amounts sum exactly to the contract total; the escrow
// balance stays in [0, total] and only decreases; every disbursed tranche
// has exactly one payment.
package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"procurement/internal/apperr"
	"procurement/internal/store"
	"procurement/models"
)

// Partition splits total into n tranches by floor division; the last
// tranche absorbs the remainder so the parts always sum to total.
func Partition(total int64, n int) ([]int64, error) {
	const op = "escrow.partition"
	if n < 1 {
		return nil, apperr.Validation(op, "tranche count must be positive")
	}
	if total < int64(n) {
		return nil, apperr.Validation(op, "total %d cannot cover %d tranches", total, n)
	}
	base := total / int64(n)
	out := make([]int64, n)
	for i := range out {
		out[i] = base
	}
	out[n-1] += total - base*int64(n)
	return out, nil
}

// Schedule creates the pending tranches of c.
func Schedule(ctx context.Context, tx store.Tx, c *models.Contract) ([]models.ContractTranche, error) {
	parts, err := Partition(c.TotalAmount, c.TrancheCount)
	if err != nil {
		return nil, err
	}
	out := make([]models.ContractTranche, 0, len(parts))
	for i, amount := range parts {
		tr := models.ContractTranche{
			ContractID: c.ID,
			Sequence:   i + 1,
			Amount:     amount,
			Status:     models.TranchePending,
		}
		if err := tx.CreateTranche(ctx, &tr); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// Disburse releases tr from c's escrow inside tx: the tranche flips to
// disbursed, a payment is recorded, the escrow balance drops by the tranche
// amount and current_tranche advances. c is updated in place.
func Disburse(ctx context.Context, tx store.Tx, c *models.Contract, tr models.ContractTranche, now time.Time) (*models.Payment, error) {
	const op = "escrow.disburse"
	if tr.ContractID != c.ID {
		return nil, apperr.Invariant(op, "tranche %d does not belong to contract %d", tr.ID, c.ID)
	}
	if tr.Status != models.TranchePending {
		return nil, apperr.Conflict(op, "tranche %d is %s", tr.Sequence, tr.Status)
	}
	if tr.Amount <= 0 || tr.Amount > c.EscrowBalance {
		return nil, apperr.Invariant(op, "tranche %d amount %d exceeds escrow balance %d", tr.Sequence, tr.Amount, c.EscrowBalance)
	}
	if err := tx.MarkTrancheDisbursed(ctx, tr.ID, now); err != nil {
		return nil, err
	}
	p := &models.Payment{
		ContractID: c.ID,
		TrancheID:  tr.ID,
		Amount:     tr.Amount,
		Reference:  "pay_" + uuid.NewString(),
		CreatedAt:  now,
	}
	if err := tx.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	c.EscrowBalance -= tr.Amount
	if tr.Sequence > c.CurrentTranche {
		c.CurrentTranche = tr.Sequence
	}
	c.UpdatedAt = now
	if err := tx.UpdateContract(ctx, c); err != nil {
		return nil, err
	}
	return p, nil
}

// NextPending returns the lowest-sequence pending tranche.
func NextPending(tranches []models.ContractTranche) (models.ContractTranche, bool) {
	var (
		best  models.ContractTranche
		found bool
	)
	for _, tr := range tranches {
		if tr.Status != models.TranchePending {
			continue
		}
		if !found || tr.Sequence < best.Sequence {
			best, found = tr, true
		}
	}
	return best, found
}

// CheckInvariants verifies a contract against its tranches and payments.
func CheckInvariants(c models.Contract, tranches []models.ContractTranche, payments []models.Payment) error {
	const op = "escrow.check"
	if len(tranches) != c.TrancheCount {
		return apperr.Invariant(op, "contract %d has %d tranches, want %d", c.ID, len(tranches), c.TrancheCount)
	}
	if c.EscrowBalance < 0 || c.EscrowBalance > c.TotalAmount {
		return apperr.Invariant(op, "escrow balance %d outside [0, %d]", c.EscrowBalance, c.TotalAmount)
	}
	paid := make(map[int64]int64, len(payments))
	for _, p := range payments {
		if _, dup := paid[p.TrancheID]; dup {
			return apperr.Invariant(op, "tranche %d paid twice", p.TrancheID)
		}
		paid[p.TrancheID] = p.Amount
	}
	var sum, disbursed int64
	for _, tr := range tranches {
		sum += tr.Amount
		amount, hasPayment := paid[tr.ID]
		switch {
		case tr.Status == models.TrancheDisbursed && !hasPayment:
			return apperr.Invariant(op, "tranche %d disbursed without payment", tr.Sequence)
		case tr.Status != models.TrancheDisbursed && hasPayment:
			return apperr.Invariant(op, "tranche %d paid but %s", tr.Sequence, tr.Status)
		case hasPayment && amount != tr.Amount:
			return apperr.Invariant(op, "tranche %d paid %d, want %d", tr.Sequence, amount, tr.Amount)
		}
		if tr.Status == models.TrancheDisbursed {
			disbursed += tr.Amount
		}
	}
	if sum != c.TotalAmount {
		return apperr.Invariant(op, "tranches sum to %d, contract total is %d", sum, c.TotalAmount)
	}
	if disbursed != c.TotalAmount-c.EscrowBalance {
		return apperr.Invariant(op, "disbursed %d but escrow released %d", disbursed, c.TotalAmount-c.EscrowBalance)
	}
	return nil
}

// Ledger is the public view of a contract's money.
type Ledger struct {
	Contract   models.Contract          `json:"contract"`
	Tranches   []models.ContractTranche `json:"tranches"`
	Payments   []models.Payment         `json:"payments"`
	Milestones []models.Milestone       `json:"milestones"`
	Disbursed  int64                    `json:"disbursed"`
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Ledger loads a contract with its schedule and checks the invariants.
func (s *Service) Ledger(ctx context.Context, contractID int64) (*Ledger, error) {
	var l Ledger
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if l.Tranches, err = tx.ListTranches(ctx, c.ID); err != nil {
			return err
		}
		if l.Payments, err = tx.ListPayments(ctx, c.ID); err != nil {
			return err
		}
		if l.Milestones, err = tx.ListMilestones(ctx, c.ID); err != nil {
			return err
		}
		l.Contract = *c
		l.Disbursed = c.TotalAmount - c.EscrowBalance
		return CheckInvariants(*c, l.Tranches, l.Payments)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}
