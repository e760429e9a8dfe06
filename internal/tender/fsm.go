package tender

import (
	"context"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/store"
	"procurement/models"
)

var transitions = map[string][]string{
	models.TenderDraft:      {models.TenderOpen, models.TenderCancelled},
	models.TenderOpen:       {models.TenderClosed, models.TenderCancelled},
	models.TenderClosed:     {models.TenderAwarded, models.TenderOpen, models.TenderCancelled},
	models.TenderAwarded:    {models.TenderInProgress, models.TenderCancelled},
	models.TenderInProgress: {models.TenderCompleted, models.TenderCancelled},
	models.TenderCompleted:  {},
	models.TenderCancelled:  {},
}

// IsValidTransition reports whether a tender may move from current to next.
func IsValidTransition(current, next string) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// ValidTransitions lists the statuses reachable from current in one step.
func ValidTransitions(current string) []string {
	return append([]string{}, transitions[current]...)
}

func IsTerminal(status string) bool {
	next, known := transitions[status]
	return known && len(next) == 0
}

func IsKnownStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// Walk moves t through each status of path in order inside tx, checking
// every edge. Engines use it to enter the statuses they own.
func Walk(ctx context.Context, tx store.Tx, t *models.Tender, at time.Time, path ...string) error {
	for _, next := range path {
		if !IsValidTransition(t.Status, next) {
			return apperr.Conflict("tender.walk", "cannot move tender from %s to %s", t.Status, next).
				WithValidNext(ValidTransitions(t.Status)...)
		}
		if err := tx.UpdateTenderStatus(ctx, t.ID, next, at); err != nil {
			return err
		}
		t.Status = next
		t.UpdatedAt = at
	}
	return nil
}
