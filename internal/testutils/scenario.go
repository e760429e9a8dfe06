package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/award"
	"procurement/internal/consensus"
	"procurement/internal/tender"
	"procurement/models"
)

// Jurisdiction is where every Scenario actor lives.
const Jurisdiction = "north"

// Scenario drives tenders through award and proof review.
type Scenario struct {
	*World
	Officer actor.Actor
	Tenders *tender.Service
	Awards  *award.Engine
	Proofs  *consensus.Service
}

func NewScenario(w *World) *Scenario {
	return &Scenario{
		World:   w,
		Officer: w.NewActor(actor.RoleStateOfficer, Jurisdiction),
		Tenders: tender.NewService(w.Store, w.Effects).WithClock(w.Now),
		Awards:  award.NewEngine(w.Store, w.Config.Scoring, w.Effects).WithClock(w.Now),
		Proofs:  consensus.NewService(w.Store, w.Ledger, w.Config.Voting, w.Effects).WithClock(w.Now),
	}
}

// AwardedContract opens a tender with a budget equal to amount, takes a
// single bid of amount and awards it.
func (s *Scenario) AwardedContract(amount int64, tranches int) (actor.Actor, *award.Result) {
	s.t.Helper()
	ctx := context.Background()
	tn, err := s.Tenders.Create(ctx, s.Officer, tender.CreateInput{
		Title:           "Road resurfacing",
		Budget:          amount,
		BidDeadline:     s.Now().Add(7 * 24 * time.Hour),
		ProjectDeadline: s.Now().Add(365 * 24 * time.Hour),
		TrancheCount:    tranches,
	})
	require.NoError(s.t, err)
	_, err = s.Tenders.Transition(ctx, s.Officer, tn.ID, models.TenderOpen)
	require.NoError(s.t, err)

	contractor := s.NewActor(actor.RoleContractor, Jurisdiction)
	_, err = s.Tenders.SubmitBid(ctx, contractor, tn.ID, tender.BidInput{Amount: amount})
	require.NoError(s.t, err)

	res, err := s.Awards.Award(ctx, s.Officer, tn.ID)
	require.NoError(s.t, err)
	return contractor, res
}

func (s *Scenario) Reviewers(n int) []actor.Actor {
	out := make([]actor.Actor, n)
	for i := range out {
		out[i] = s.NewActor(actor.RoleReviewer, Jurisdiction)
	}
	return out
}

func IDs(actors []actor.Actor) []int64 {
	out := make([]int64, len(actors))
	for i, a := range actors {
		out[i] = a.ID
	}
	return out
}

// ReviewedProof submits a proof for milestone and has the reviewers vote:
// the first approvals approve, the rest reject, until the proof settles.
func (s *Scenario) ReviewedProof(contractor actor.Actor, milestone models.Milestone, reviewers []actor.Actor, approvals int) *models.WorkProof {
	s.t.Helper()
	ctx := context.Background()
	p, err := s.Proofs.Submit(ctx, contractor, consensus.SubmitInput{
		ContractID:     milestone.ContractID,
		MilestoneID:    &milestone.ID,
		Description:    "Stage complete",
		Evidence:       []models.EvidenceRef{{URL: "https://evidence.example/site.jpg", SHA256: "ab12"}},
		WorkPercentage: 100,
	})
	require.NoError(s.t, err)
	_, err = s.Proofs.AssignReviewers(ctx, s.Officer, p.ID, IDs(reviewers))
	require.NoError(s.t, err)

	for i, r := range reviewers {
		decision := models.VoteReject
		if i < approvals {
			decision = models.VoteApprove
		}
		res, err := s.Proofs.Vote(ctx, r, p.ID, decision, "")
		require.NoError(s.t, err)
		if res.Outcome != consensus.OutcomePending {
			return &res.Proof
		}
	}
	return p
}
