package complaint

import (
	"context"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/effects"
	"procurement/internal/store"
	"procurement/models"
)

// A formal case runs its own status cycle, apart from the complaint.
var caseTransitions = map[string][]string{
	models.CaseOpen:      {models.CaseInReview, models.CaseEscalated, models.CaseClosed},
	models.CaseInReview:  {models.CaseEscalated, models.CaseClosed},
	models.CaseEscalated: {models.CaseInReview, models.CaseClosed},
	models.CaseClosed:    {},
}

var priorities = map[string]bool{
	models.PriorityLow:      true,
	models.PriorityMedium:   true,
	models.PriorityHigh:     true,
	models.PriorityCritical: true,
}

func validCaseTransition(cur, next string) bool {
	for _, s := range caseTransitions[cur] {
		if s == next {
			return true
		}
	}
	return false
}

// Escalate opens the formal case of a complaint. A complaint has at most one.
func (s *Service) Escalate(ctx context.Context, a actor.Actor, complaintID int64, priority, notes string) (*models.Case, error) {
	const op = "case.open"
	if err := a.Require(op, actor.ManageComplaints); err != nil {
		return nil, err
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priorities[priority] {
		return nil, apperr.Validation(op, "unknown priority %q", priority)
	}
	if len(notes) > 5000 {
		return nil, apperr.Validation(op, "notes max length 5000")
	}

	var (
		cs *models.Case
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		cs = &models.Case{
			ComplaintID: c.ID,
			Status:      models.CaseOpen,
			Priority:    priority,
			Notes:       notes,
			CreatedBy:   a.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateCase(ctx, cs); err != nil {
			return err
		}
		fx.Audit(a, "case.opened", "case", cs.ID, map[string]any{"complaint_id": c.ID, "priority": priority})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return cs, nil
}

type CaseUpdate struct {
	Status   string  `json:"status"`
	Priority string  `json:"priority"`
	Notes    *string `json:"notes"`
}

// UpdateCase moves a case along its own status table and re-prioritizes it.
func (s *Service) UpdateCase(ctx context.Context, a actor.Actor, complaintID int64, in CaseUpdate) (*models.Case, error) {
	const op = "case.update"
	if err := a.Require(op, actor.ManageComplaints); err != nil {
		return nil, err
	}
	if in.Priority != "" && !priorities[in.Priority] {
		return nil, apperr.Validation(op, "unknown priority %q", in.Priority)
	}
	if in.Notes != nil && len(*in.Notes) > 5000 {
		return nil, apperr.Validation(op, "notes max length 5000")
	}

	var (
		cs *models.Case
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockComplaint(ctx, complaintID); err != nil {
			return err
		}
		var err error
		cs, err = tx.GetCaseByComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		prev := *cs
		if cs.Status == models.CaseClosed {
			return apperr.Conflict(op, "case %d is closed", cs.ID)
		}
		if in.Status != "" && in.Status != cs.Status {
			if !validCaseTransition(cs.Status, in.Status) {
				return apperr.Conflict(op, "cannot move case from %s to %s", cs.Status, in.Status).
					WithValidNext(caseTransitions[cs.Status]...)
			}
			cs.Status = in.Status
		}
		if in.Priority != "" {
			cs.Priority = in.Priority
		}
		if in.Notes != nil {
			cs.Notes = *in.Notes
		}
		cs.UpdatedAt = s.now().UTC()
		if err := tx.UpdateCase(ctx, cs); err != nil {
			return err
		}
		fx.Audit(a, "case.updated", "case", cs.ID, map[string]any{
			"from_status":   prev.Status,
			"status":        cs.Status,
			"from_priority": prev.Priority,
			"priority":      cs.Priority,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return cs, nil
}
