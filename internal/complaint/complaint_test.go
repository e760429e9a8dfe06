package complaint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/complaint"
	"procurement/internal/config"
	"procurement/internal/consensus"
	"procurement/internal/points"
	"procurement/internal/store"
	"procurement/internal/testutils"
	"procurement/models"
)

type fixture struct {
	*testutils.Scenario
	admin    actor.Actor
	ngo      actor.Actor
	reporter actor.Actor
	svc      *complaint.Service
}

func newFixture(t *testing.T) *fixture {
	s := testutils.NewScenario(testutils.NewWorld(t))
	return &fixture{
		Scenario: s,
		admin:    s.NewActor(actor.RoleAdmin, ""),
		ngo:      s.NewActor(actor.RoleNGO, testutils.Jurisdiction),
		reporter: s.NewActor(actor.RoleCitizen, testutils.Jurisdiction),
		svc:      complaint.NewService(s.Store, s.Ledger, s.Config.Penalty, s.Effects).WithClock(s.Now),
	}
}

// investigating files a complaint and brings it to the investigating state.
func (f *fixture) investigating(t *testing.T, svc *complaint.Service, tenderID *int64) *models.Complaint {
	t.Helper()
	ctx := context.Background()
	c, err := svc.File(ctx, f.reporter, complaint.FileInput{TenderID: tenderID, Subject: "Substandard asphalt"})
	require.NoError(t, err)
	require.Equal(t, models.ComplaintSubmitted, c.Status)
	require.Equal(t, models.ResultPending, c.InvestigationResult)

	c, err = svc.Assign(ctx, f.admin, c.ID, f.ngo.ID)
	require.NoError(t, err)
	require.Equal(t, models.ComplaintAssigned, c.Status)

	c, err = svc.StartInvestigation(ctx, f.ngo, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.ComplaintInvestigating, c.Status)
	return c
}

func (f *fixture) vote(t *testing.T, proofID int64, r actor.Actor, decision string) {
	t.Helper()
	_, err := f.Proofs.Vote(context.Background(), r, proofID, decision, "")
	require.NoError(t, err)
}

func (f *fixture) assigned(t *testing.T, contractor actor.Actor, m models.Milestone, reviewers []actor.Actor) int64 {
	t.Helper()
	ctx := context.Background()
	p, err := f.Proofs.Submit(ctx, contractor, consensus.SubmitInput{
		ContractID:  m.ContractID,
		MilestoneID: &m.ID,
		Description: "stage done",
	})
	require.NoError(t, err)
	_, err = f.Proofs.AssignReviewers(ctx, f.Officer, p.ID, testutils.IDs(reviewers))
	require.NoError(t, err)
	return p.ID
}

func TestValidComplaintPenalizesEachApproverOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	contractor, award := f.AwardedContract(100000, 5)

	first := f.Reviewers(5)
	p1 := f.assigned(t, contractor, award.Milestones[0], first)
	f.vote(t, p1, first[0], models.VoteApprove)
	f.vote(t, p1, first[1], models.VoteReject)
	f.vote(t, p1, first[2], models.VoteApprove)
	f.vote(t, p1, first[3], models.VoteApprove)

	second := f.Reviewers(5)
	f.ReviewedProof(contractor, award.Milestones[1], second, 3)

	c := f.investigating(t, f.svc, &award.Contract.TenderID)
	out, err := f.svc.Conclude(ctx, f.ngo, c.ID, models.ResultConfirmedValid, "asphalt depth 2cm, 5cm required")
	require.NoError(t, err)

	require.Equal(t, models.ComplaintActionTaken, out.Complaint.Status)
	require.Equal(t, models.ResultConfirmedValid, out.Complaint.InvestigationResult)
	require.NotNil(t, out.Complaint.ResolvedAt)
	require.NotNil(t, out.PenalizedContractor)
	require.Equal(t, contractor.ID, *out.PenalizedContractor)
	require.False(t, out.ReviewNeeded)

	approvers := []int64{first[0].ID, first[2].ID, first[3].ID, second[0].ID, second[1].ID, second[2].ID}
	require.ElementsMatch(t, approvers, out.PenalizedReviewers)
	for _, id := range approvers {
		u := f.User(id)
		require.Equal(t, 5-50, u.Points)
		require.InDelta(t, 35, u.Reputation, 0.001)
	}
	require.Equal(t, 5, f.User(first[1].ID).Points)
	require.InDelta(t, 50, f.User(first[1].ID).Reputation, 0.001)

	u := f.User(contractor.ID)
	require.Equal(t, 20+20-30, u.Points)
	require.InDelta(t, 50+2+2-10, u.Reputation, 0.001)

	r := f.User(f.reporter.ID)
	require.Equal(t, 10, r.Points)
	require.InDelta(t, 52, r.Reputation, 0.001)

	stmt, err := f.Ledger.History(ctx, first[0].ID)
	require.NoError(t, err)
	require.Len(t, stmt.Entries, 2)
	require.Equal(t, string(points.FraudReviewer), stmt.Entries[1].Reason)

	rep, err := f.Chain.Verify(ctx)
	require.NoError(t, err)
	require.True(t, rep.Valid)
	require.Len(t, f.Notes.OfType("complaint.concluded"), 1)
}

func TestReviewerOnTwoProofsPenalizedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	contractor, award := f.AwardedContract(100000, 5)
	rs := f.Reviewers(5)

	f.ReviewedProof(contractor, award.Milestones[0], rs[:3], 3)
	f.ReviewedProof(contractor, award.Milestones[1], rs[1:4], 3)

	c := f.investigating(t, f.svc, &award.Contract.TenderID)
	out, err := f.svc.Conclude(ctx, f.ngo, c.ID, models.ResultConfirmedValid, "")
	require.NoError(t, err)

	// quorum of 3 is 2, so each proof settles after two approvals
	require.ElementsMatch(t, []int64{rs[0].ID, rs[1].ID, rs[2].ID}, out.PenalizedReviewers)
	require.Equal(t, 5+5-50, f.User(rs[1].ID).Points)
	require.Equal(t, 5-50, f.User(rs[0].ID).Points)
	require.Equal(t, 5-50, f.User(rs[2].ID).Points)
	require.Zero(t, f.User(rs[3].ID).Points)
}

func TestFakeComplaintPenalizesReporter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	contractor, award := f.AwardedContract(100000, 2)

	c := f.investigating(t, f.svc, &award.Contract.TenderID)
	out, err := f.svc.Conclude(ctx, f.ngo, c.ID, models.ResultConfirmedFake, "photos predate the contract")
	require.NoError(t, err)
	require.Equal(t, models.ComplaintDismissed, out.Complaint.Status)
	require.Nil(t, out.PenalizedContractor)
	require.Empty(t, out.PenalizedReviewers)

	r := f.User(f.reporter.ID)
	require.Equal(t, -20, r.Points)
	require.InDelta(t, 47, r.Reputation, 0.001)
	require.Zero(t, f.User(contractor.ID).Points)
}

func TestValidComplaintWithoutContract(t *testing.T) {
	f := newFixture(t)
	c := f.investigating(t, f.svc, nil)

	out, err := f.svc.Conclude(context.Background(), f.ngo, c.ID, models.ResultConfirmedValid, "")
	require.NoError(t, err)
	require.Equal(t, models.ComplaintVerified, out.Complaint.Status)
	require.Nil(t, out.PenalizedContractor)
	require.Equal(t, 10, f.User(f.reporter.ID).Points)
}

func TestLowWaterMarkRaisesReview(t *testing.T) {
	f := newFixture(t)
	contractor, award := f.AwardedContract(100000, 2)
	f.Read(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AdjustUserTotals(ctx, contractor.ID, 0, -20)
		return err
	})

	c := f.investigating(t, f.svc, &award.Contract.TenderID)
	out, err := f.svc.Conclude(context.Background(), f.ngo, c.ID, models.ResultConfirmedValid, "")
	require.NoError(t, err)
	require.True(t, out.ReviewNeeded)
	require.InDelta(t, 20, f.User(contractor.ID).Reputation, 0.001)

	notes := f.Notes.OfType("contractor.review_needed")
	require.Len(t, notes, 1)
	require.Equal(t, []string{string(actor.RoleAdmin)}, notes[0].Roles)
	require.Equal(t, contractor.ID, notes[0].EntityID)

	// the signal never blacklists on its own
	require.False(t, f.User(contractor.ID).Blacklisted)
}

func TestCascadeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	contractor, award := f.AwardedContract(100000, 3)
	rs := f.Reviewers(1)
	f.ReviewedProof(contractor, award.Milestones[0], rs, 1)

	table := config.Default().Points
	delete(table.Table, string(points.FraudReviewer))
	broken := complaint.NewService(f.Store, points.NewLedger(f.Store, table), f.Config.Penalty, f.Effects)

	c := f.investigating(t, broken, &award.Contract.TenderID)
	_, err := broken.Conclude(ctx, f.ngo, c.ID, models.ResultConfirmedValid, "")
	require.True(t, apperr.Is(err, apperr.KindInvariant))

	require.Equal(t, 20, f.User(contractor.ID).Points)
	require.Zero(t, f.User(f.reporter.ID).Points)
	view, err := broken.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.ComplaintInvestigating, view.Complaint.Status)
	require.Equal(t, models.ResultPending, view.Complaint.InvestigationResult)
}

func TestLifecycleChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.File(ctx, f.Officer, complaint.FileInput{Subject: "x"})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.File(ctx, f.reporter, complaint.FileInput{Subject: " "})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	missing := int64(404)
	_, err = f.svc.File(ctx, f.reporter, complaint.FileInput{Subject: "x", TenderID: &missing})
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	c, err := f.svc.File(ctx, f.ngo, complaint.FileInput{Subject: "ngo report"})
	require.NoError(t, err)

	_, err = f.svc.StartInvestigation(ctx, f.ngo, c.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Equal(t, []string{models.ComplaintAssigned}, apperr.ValidNext(err))

	_, err = f.svc.Assign(ctx, f.Officer, c.ID, f.ngo.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.Assign(ctx, f.admin, c.ID, f.reporter.ID)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Assign(ctx, f.admin, c.ID, f.ngo.ID)
	require.True(t, apperr.Is(err, apperr.KindValidation), "reporter investigating own complaint")

	other := f.NewActor(actor.RoleNGO, testutils.Jurisdiction)
	_, err = f.svc.Assign(ctx, f.admin, c.ID, other.ID)
	require.NoError(t, err)

	_, err = f.svc.StartInvestigation(ctx, f.ngo, c.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.svc.Conclude(ctx, other, c.ID, models.ResultConfirmedValid, "")
	require.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.StartInvestigation(ctx, other, c.ID)
	require.NoError(t, err)

	_, err = f.svc.Conclude(ctx, other, c.ID, "maybe", "")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Conclude(ctx, other, c.ID, models.ResultConfirmedFake, "")
	require.NoError(t, err)

	_, err = f.svc.Conclude(ctx, other, c.ID, models.ResultConfirmedValid, "")
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCaseLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.svc.File(ctx, f.reporter, complaint.FileInput{Subject: "ghost workers"})
	require.NoError(t, err)

	_, err = f.svc.Escalate(ctx, f.admin, c.ID, "urgent", "")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Escalate(ctx, f.ngo, c.ID, "", "")
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	cs, err := f.svc.Escalate(ctx, f.admin, c.ID, "", "first look")
	require.NoError(t, err)
	require.Equal(t, models.CaseOpen, cs.Status)
	require.Equal(t, models.PriorityMedium, cs.Priority)

	_, err = f.svc.Escalate(ctx, f.admin, c.ID, models.PriorityHigh, "")
	require.True(t, apperr.Is(err, apperr.KindConflict))

	cs, err = f.svc.UpdateCase(ctx, f.admin, c.ID, complaint.CaseUpdate{Status: models.CaseEscalated, Priority: models.PriorityCritical})
	require.NoError(t, err)
	require.Equal(t, models.CaseEscalated, cs.Status)
	require.Equal(t, models.PriorityCritical, cs.Priority)

	_, err = f.svc.UpdateCase(ctx, f.admin, c.ID, complaint.CaseUpdate{Status: models.CaseOpen})
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Equal(t, []string{models.CaseInReview, models.CaseClosed}, apperr.ValidNext(err))

	notes := "handed to the auditor general"
	cs, err = f.svc.UpdateCase(ctx, f.admin, c.ID, complaint.CaseUpdate{Status: models.CaseClosed, Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, notes, cs.Notes)

	_, err = f.svc.UpdateCase(ctx, f.admin, c.ID, complaint.CaseUpdate{Priority: models.PriorityLow})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	view, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Case)
	require.Equal(t, models.CaseClosed, view.Case.Status)
	require.Equal(t, models.ComplaintSubmitted, view.Complaint.Status)
}
