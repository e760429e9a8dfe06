// Package complaint runs complaint investigations and the penalty cascade a
// verdict triggers.
package complaint

import (
	"context"
	"strings"
	"time"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/config"
	"procurement/internal/effects"
	"procurement/internal/notify"
	"procurement/internal/points"
	"procurement/internal/store"
	"procurement/models"
)

type Service struct {
	store    store.Store
	ledger   *points.Ledger
	fx       *effects.Effects
	lowWater float64
	now      func() time.Time
}

func NewService(st store.Store, ledger *points.Ledger, cfg config.Penalty, fx *effects.Effects) *Service {
	return &Service{store: st, ledger: ledger, fx: fx, lowWater: cfg.ReviewReputation, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type FileInput struct {
	TenderID    *int64 `json:"tenderId"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// File records a complaint, optionally against a tender.
func (s *Service) File(ctx context.Context, a actor.Actor, in FileInput) (*models.Complaint, error) {
	const op = "complaint.file"
	if err := a.Require(op, actor.FileComplaint); err != nil {
		return nil, err
	}
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" || len(in.Subject) > 200 {
		return nil, apperr.Validation(op, "subject is required and max length 200")
	}
	if len(in.Description) > 5000 {
		return nil, apperr.Validation(op, "description max length 5000")
	}

	var (
		c  *models.Complaint
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if in.TenderID != nil {
			if _, err := tx.GetTender(ctx, *in.TenderID); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		c = &models.Complaint{
			ReporterID:          a.ID,
			TenderID:            in.TenderID,
			Subject:             in.Subject,
			Description:         in.Description,
			Status:              models.ComplaintSubmitted,
			InvestigationResult: models.ResultPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.CreateComplaint(ctx, c); err != nil {
			return err
		}
		fx.Audit(a, "complaint.filed", "complaint", c.ID, map[string]any{"tender_id": in.TenderID, "subject": c.Subject})
		fx.Notify(notify.Notification{
			Roles:      []string{string(actor.RoleAdmin)},
			Type:       "complaint.filed",
			Title:      "New complaint",
			Message:    c.Subject,
			EntityType: "complaint",
			EntityID:   c.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return c, nil
}

// Assign hands a submitted complaint to an NGO investigator.
func (s *Service) Assign(ctx context.Context, a actor.Actor, id, investigatorID int64) (*models.Complaint, error) {
	const op = "complaint.assign"
	if err := a.Require(op, actor.ManageComplaints); err != nil {
		return nil, err
	}
	var fx effects.Batch
	c, err := s.advance(ctx, op, id, models.ComplaintSubmitted, models.ComplaintAssigned, func(tx store.Tx, c *models.Complaint) error {
		u, err := tx.GetUser(ctx, investigatorID)
		if err != nil {
			return err
		}
		if u.Role != string(actor.RoleNGO) || !u.Verified || u.Blacklisted {
			return apperr.Validation(op, "user %d cannot investigate", u.ID)
		}
		if u.ID == c.ReporterID {
			return apperr.Validation(op, "reporter cannot investigate own complaint")
		}
		c.InvestigatorID = &u.ID
		fx.Audit(a, "complaint.assigned", "complaint", c.ID, map[string]any{"investigator_id": u.ID})
		fx.Notify(notify.Notification{
			UserID:     u.ID,
			Type:       "complaint.assigned",
			Title:      "Complaint assigned for investigation",
			Message:    c.Subject,
			EntityType: "complaint",
			EntityID:   c.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return c, nil
}

// StartInvestigation is called by the assigned investigator.
func (s *Service) StartInvestigation(ctx context.Context, a actor.Actor, id int64) (*models.Complaint, error) {
	const op = "complaint.investigate"
	if err := a.Require(op, actor.Investigate); err != nil {
		return nil, err
	}
	var fx effects.Batch
	c, err := s.advance(ctx, op, id, models.ComplaintAssigned, models.ComplaintInvestigating, func(_ store.Tx, c *models.Complaint) error {
		if err := requireInvestigator(op, a, c); err != nil {
			return err
		}
		fx.Audit(a, "complaint.investigating", "complaint", c.ID, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return c, nil
}

// advance locks a complaint, checks it is in from, runs fn and stores it in to.
func (s *Service) advance(ctx context.Context, op string, id int64, from, to string, fn func(tx store.Tx, c *models.Complaint) error) (*models.Complaint, error) {
	var c *models.Complaint
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.LockComplaint(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != from {
			return apperr.Conflict(op, "complaint %d is %s", c.ID, c.Status).WithValidNext(nextStatuses[c.Status]...)
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		c.Status = to
		c.UpdatedAt = s.now().UTC()
		return tx.UpdateComplaint(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

var nextStatuses = map[string][]string{
	models.ComplaintSubmitted:     {models.ComplaintAssigned},
	models.ComplaintAssigned:      {models.ComplaintInvestigating},
	models.ComplaintInvestigating: {models.ComplaintVerified, models.ComplaintActionTaken, models.ComplaintDismissed},
}

func requireInvestigator(op string, a actor.Actor, c *models.Complaint) error {
	if c.InvestigatorID == nil || *c.InvestigatorID != a.ID {
		return apperr.Forbidden(op, "complaint %d is assigned to another investigator", c.ID)
	}
	return nil
}

// Outcome reports what a verdict changed.
type Outcome struct {
	Complaint           models.Complaint `json:"complaint"`
	PenalizedContractor *int64           `json:"penalizedContractor,omitempty"`
	PenalizedReviewers  []int64          `json:"penalizedReviewers"`
	ReviewNeeded        bool             `json:"reviewNeeded"`
}

// Conclude applies the investigator's verdict and its penalties in one
// transaction.
//
// A valid complaint against a tender with an active contract penalizes the
// contractor and every reviewer who approved one of the contract's approved
// proofs, each once, and rewards the reporter. A fake complaint penalizes
// the reporter only.
func (s *Service) Conclude(ctx context.Context, a actor.Actor, id int64, verdict, findings string) (*Outcome, error) {
	const op = "complaint.conclude"
	if err := a.Require(op, actor.Investigate); err != nil {
		return nil, err
	}
	if verdict != models.ResultConfirmedValid && verdict != models.ResultConfirmedFake {
		return nil, apperr.Validation(op, "verdict must be %s or %s", models.ResultConfirmedValid, models.ResultConfirmedFake)
	}
	if len(findings) > 5000 {
		return nil, apperr.Validation(op, "findings max length 5000")
	}

	var (
		out Outcome
		fx  effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockComplaint(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != models.ComplaintInvestigating {
			return apperr.Conflict(op, "complaint %d is %s", c.ID, c.Status).WithValidNext(nextStatuses[c.Status]...)
		}
		if err := requireInvestigator(op, a, c); err != nil {
			return err
		}

		ref := points.Ref{Type: "complaint", ID: c.ID}
		out.PenalizedReviewers = []int64{}
		if verdict == models.ResultConfirmedFake {
			if _, err := s.ledger.Apply(ctx, tx, c.ReporterID, points.FalseComplaint, ref); err != nil {
				return err
			}
			c.Status = models.ComplaintDismissed
		} else {
			if err := s.penalize(ctx, tx, c, ref, &out, &fx); err != nil {
				return err
			}
			if _, err := s.ledger.Apply(ctx, tx, c.ReporterID, points.ValidComplaint, ref); err != nil {
				return err
			}
			c.Status = models.ComplaintVerified
			if out.PenalizedContractor != nil {
				c.Status = models.ComplaintActionTaken
			}
		}

		now := s.now().UTC()
		c.InvestigationResult = verdict
		c.Findings = findings
		c.UpdatedAt = now
		c.ResolvedAt = &now
		if err := tx.UpdateComplaint(ctx, c); err != nil {
			return err
		}
		out.Complaint = *c

		fx.Audit(a, "complaint.concluded", "complaint", c.ID, map[string]any{
			"verdict":              verdict,
			"status":               c.Status,
			"penalized_contractor": out.PenalizedContractor,
			"penalized_reviewers":  out.PenalizedReviewers,
		})
		fx.Notify(notify.Notification{
			UserID:     c.ReporterID,
			Type:       "complaint.concluded",
			Title:      "Your complaint was " + c.Status,
			Message:    c.Subject,
			EntityType: "complaint",
			EntityID:   c.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return &out, nil
}

func (s *Service) penalize(ctx context.Context, tx store.Tx, c *models.Complaint, ref points.Ref, out *Outcome, fx *effects.Batch) error {
	if c.TenderID == nil {
		return nil
	}
	contract, err := tx.GetContractByTender(ctx, *c.TenderID)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		return nil
	case err != nil:
		return err
	case contract.Status != models.ContractActive:
		return nil
	}

	u, err := s.ledger.Apply(ctx, tx, contract.ContractorID, points.FraudContractor, ref)
	if err != nil {
		return err
	}
	out.PenalizedContractor = &u.ID
	if u.Reputation <= s.lowWater {
		out.ReviewNeeded = true
		fx.Notify(notify.Notification{
			Roles:      []string{string(actor.RoleAdmin)},
			Type:       "contractor.review_needed",
			Title:      "Contractor reputation below review threshold",
			Message:    u.Name,
			EntityType: "user",
			EntityID:   u.ID,
		})
	}

	approvers, err := approvingReviewers(ctx, tx, contract.ID)
	if err != nil {
		return err
	}
	for _, id := range approvers {
		if _, err := s.ledger.Apply(ctx, tx, id, points.FraudReviewer, ref); err != nil {
			return err
		}
		out.PenalizedReviewers = append(out.PenalizedReviewers, id)
	}
	return nil
}

// approvingReviewers lists, once each, the reviewers who voted approve on
// an approved proof of the contract.
func approvingReviewers(ctx context.Context, tx store.Tx, contractID int64) ([]int64, error) {
	proofs, err := tx.ListProofs(ctx, contractID, models.ProofApproved)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var out []int64
	for _, p := range proofs {
		votes, err := tx.ListVotes(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range votes {
			if v.Decision != models.VoteApprove || seen[v.ReviewerID] {
				continue
			}
			seen[v.ReviewerID] = true
			out = append(out, v.ReviewerID)
		}
	}
	return out, nil
}

type View struct {
	Complaint models.Complaint `json:"complaint"`
	Case      *models.Case     `json:"case,omitempty"`
}

func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	var v View
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetComplaint(ctx, id)
		if err != nil {
			return err
		}
		v.Complaint = *c
		cs, err := tx.GetCaseByComplaint(ctx, id)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			return nil
		case err != nil:
			return err
		}
		v.Case = cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}
