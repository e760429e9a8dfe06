// Package points keeps the points and reputation ledger.
//
// An adjustment is always one ledger row plus an increment of the user's
// denormalized totals, written through the caller's transaction.
package points

import (
	"context"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/config"
	"procurement/internal/store"
	"procurement/models"
)

type Reason string

const (
	Completion       Reason = "COMPLETION"
	TrancheApproved  Reason = "TRANCHE_APPROVED"
	VerificationVote Reason = "VERIFICATION_VOTE"
	FalseComplaint   Reason = "FALSE_COMPLAINT"
	FraudContractor  Reason = "FRAUD_CONTRACTOR"
	FraudReviewer    Reason = "FRAUD_REVIEWER"
	ValidComplaint   Reason = "VALID_COMPLAINT"
)

// Ref names the business entity that caused an adjustment.
type Ref struct {
	Type string
	ID   int64
}

type Ledger struct {
	store store.Store
	table map[Reason]config.Delta
	now   func() time.Time
}

func NewLedger(st store.Store, cfg config.Points) *Ledger {
	table := make(map[Reason]config.Delta, len(cfg.Table))
	for k, v := range cfg.Table {
		table[Reason(k)] = v
	}
	return &Ledger{store: st, table: table, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Apply records reason for userID inside tx and returns the updated user.
func (l *Ledger) Apply(ctx context.Context, tx store.Tx, userID int64, r Reason, ref Ref) (*models.User, error) {
	d, ok := l.table[r]
	if !ok {
		return nil, apperr.Invariant("points.apply", "no delta configured for %s", r)
	}
	entry := &models.PointsEntry{
		UserID:        userID,
		Points:        d.Points,
		Reputation:    d.Reputation,
		Reason:        string(r),
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
		CreatedAt:     l.now().UTC(),
	}
	if err := tx.InsertPointsEntry(ctx, entry); err != nil {
		return nil, err
	}
	return tx.AdjustUserTotals(ctx, userID, d.Points, d.Reputation)
}

type Statement struct {
	User    models.User          `json:"user"`
	Entries []models.PointsEntry `json:"entries"`
}

// History returns a user's totals together with every ledger row.
func (l *Ledger) History(ctx context.Context, userID int64) (*Statement, error) {
	var out Statement
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		entries, err := tx.ListPointsEntries(ctx, userID)
		if err != nil {
			return err
		}
		out = Statement{User: *u, Entries: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
