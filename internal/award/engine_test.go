package award_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/award"
	"procurement/internal/store"
	"procurement/internal/tender"
	"procurement/internal/testutils"
	"procurement/models"
)

type fixture struct {
	*testutils.World
	officer actor.Actor
	tenders *tender.Service
	engine  *award.Engine
}

func newFixture(t *testing.T) *fixture {
	w := testutils.NewWorld(t)
	return &fixture{
		World:   w,
		officer: w.NewActor(actor.RoleStateOfficer, "north"),
		tenders: tender.NewService(w.Store, w.Effects).WithClock(w.Now),
		engine:  award.NewEngine(w.Store, w.Config.Scoring, w.Effects).WithClock(w.Now),
	}
}

func (f *fixture) openTender(t *testing.T, budget int64, tranches int) *models.Tender {
	t.Helper()
	ctx := context.Background()
	tn, err := f.tenders.Create(ctx, f.officer, tender.CreateInput{
		Title:           "Bridge repair",
		Budget:          budget,
		BidDeadline:     f.Now().Add(7 * 24 * time.Hour),
		ProjectDeadline: f.Now().Add(180 * 24 * time.Hour),
		TrancheCount:    tranches,
	})
	require.NoError(t, err)
	tn, err = f.tenders.Transition(ctx, f.officer, tn.ID, models.TenderOpen)
	require.NoError(t, err)
	return tn
}

func (f *fixture) bid(t *testing.T, tenderID int64, amount int64, opts ...testutils.UserOption) (actor.Actor, *models.Bid) {
	t.Helper()
	c := f.NewActor(actor.RoleContractor, "north", opts...)
	b, err := f.tenders.SubmitBid(context.Background(), c, tenderID, tender.BidInput{Amount: amount, TimelineDays: days(120)})
	require.NoError(t, err)
	return c, b
}

func TestAwardRanksShortlistedBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 2)
	winner, winBid := f.bid(t, tn.ID, 98000, testutils.WithReputation(80))
	_, loseBid := f.bid(t, tn.ID, 99000, testutils.WithReputation(20))

	_, err := f.tenders.Shortlist(ctx, f.officer, tn.ID, winBid.ID)
	require.NoError(t, err)

	res, err := f.engine.Award(ctx, f.officer, tn.ID)
	require.NoError(t, err)
	require.Len(t, res.Ranking, 2)
	require.Equal(t, winBid.ID, res.Ranking[0].Bid.ID)
	require.Equal(t, models.BidAwarded, res.Ranking[0].Bid.Status)
	require.Equal(t, loseBid.ID, res.Ranking[1].Bid.ID)
	require.Equal(t, models.BidRejected, res.Ranking[1].Bid.Status)
	require.Equal(t, winner.ID, res.Contract.ContractorID)
}

func TestAwardOpensContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 5)
	winner, winBid := f.bid(t, tn.ID, 100000, testutils.WithReputation(90))
	loser, loseBid := f.bid(t, tn.ID, 95000, testutils.WithReputation(10))

	res, err := f.engine.Award(ctx, f.officer, tn.ID)
	require.NoError(t, err)

	require.Equal(t, winBid.ID, res.Ranking[0].Bid.ID)
	require.Equal(t, loseBid.ID, res.Ranking[1].Bid.ID)
	require.Equal(t, winner.ID, res.Contract.ContractorID)
	require.Equal(t, int64(100000), res.Contract.TotalAmount)
	require.Equal(t, int64(80000), res.Contract.EscrowBalance)
	require.Equal(t, 1, res.Contract.CurrentTranche)
	require.Equal(t, int64(20000), res.Payment.Amount)
	require.Len(t, res.Tranches, 5)
	for _, tr := range res.Tranches {
		require.Equal(t, int64(20000), tr.Amount)
	}
	require.Equal(t, models.TrancheDisbursed, res.Tranches[0].Status)
	require.Len(t, res.Milestones, 5)
	require.Equal(t, models.MilestoneInProgress, res.Milestones[0].Status)
	for _, m := range res.Milestones[1:] {
		require.Equal(t, models.MilestonePending, m.Status)
	}

	f.Read(func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetTender(ctx, tn.ID)
		require.NoError(t, err)
		require.Equal(t, models.TenderInProgress, got.Status)

		bids, err := tx.ListBids(ctx, tn.ID)
		require.NoError(t, err)
		status := map[int64]string{}
		for _, b := range bids {
			status[b.ID] = b.Status
			require.NotZero(t, b.AIScore)
		}
		require.Equal(t, models.BidAwarded, status[winBid.ID])
		require.Equal(t, models.BidRejected, status[loseBid.ID])
		return nil
	})

	require.Equal(t, []string{"tender.created", "tender.status_changed", "bid.submitted", "bid.submitted", "tender.awarded", "tranche.disbursed"}, f.AuditActions())
	require.Len(t, f.Notes.OfType("bid.awarded"), 1)
	rejected := f.Notes.OfType("bid.rejected")
	require.Len(t, rejected, 1)
	require.Equal(t, loser.ID, rejected[0].UserID)

	rep, err := f.Chain.Verify(ctx)
	require.NoError(t, err)
	require.True(t, rep.Valid)
}

func TestAwardTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 50000, 2)
	f.bid(t, tn.ID, 48000)

	_, err := f.engine.Award(ctx, f.officer, tn.ID)
	require.NoError(t, err)

	_, err = f.engine.Award(ctx, f.officer, tn.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestConcurrentAwardCommitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 4)
	f.bid(t, tn.ID, 90000)
	f.bid(t, tn.ID, 97000)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Award(ctx, f.officer, tn.ID)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, conflicts)

	f.Read(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetContractByTender(ctx, tn.ID)
		return err
	})
}

func TestAwardRejectsIneligibleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 2)
	c, _ := f.bid(t, tn.ID, 90000, testutils.WithReputation(100))
	f.bid(t, tn.ID, 100000, testutils.WithReputation(0))
	f.SetStanding(c.ID, true, true)

	_, err := f.engine.Award(ctx, f.officer, tn.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))

	f.Read(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetContractByTender(ctx, tn.ID)
		require.True(t, apperr.Is(err, apperr.KindNotFound))
		got, err := tx.GetTender(ctx, tn.ID)
		require.NoError(t, err)
		require.Equal(t, models.TenderOpen, got.Status)
		bids, err := tx.ListBids(ctx, tn.ID)
		require.NoError(t, err)
		for _, b := range bids {
			require.Equal(t, models.BidSubmitted, b.Status)
			require.Zero(t, b.AIScore)
		}
		return nil
	})
}

func TestAwardRequiresJurisdiction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 2)
	f.bid(t, tn.ID, 90000)

	outsider := f.NewActor(actor.RoleStateOfficer, "south")
	_, err := f.engine.Award(ctx, outsider, tn.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	contractor := f.NewActor(actor.RoleContractor, "north")
	_, err = f.engine.Award(ctx, contractor, tn.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	admin := f.NewActor(actor.RoleAdmin, "")
	_, err = f.engine.Award(ctx, admin, tn.ID)
	require.NoError(t, err)
}

func TestAwardWithoutBids(t *testing.T) {
	f := newFixture(t)
	tn := f.openTender(t, 100000, 2)

	_, err := f.engine.Award(context.Background(), f.officer, tn.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))

	f.Read(func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetTender(ctx, tn.ID)
		require.NoError(t, err)
		require.Equal(t, models.TenderOpen, got.Status)
		return nil
	})
}

func TestEvaluateBackfillsScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.openTender(t, 100000, 2)
	f.bid(t, tn.ID, 100000)
	f.bid(t, tn.ID, 100400)
	f.bid(t, tn.ID, 85000)

	ev, err := f.engine.Evaluate(ctx, f.officer, tn.ID)
	require.NoError(t, err)
	require.Len(t, ev.Ranking, 3)
	require.Equal(t, int64(85000), ev.Ranking[0].Bid.Amount)
	require.Equal(t, 1, ev.Ranking[0].Rank)
	require.Len(t, ev.Anomalies, 1)
	require.Equal(t, award.AnomalyPriceCluster, ev.Anomalies[0].Type)

	f.Read(func(ctx context.Context, tx store.Tx) error {
		bids, err := tx.ListBids(ctx, tn.ID)
		require.NoError(t, err)
		for _, b := range bids {
			require.NotZero(t, b.AIScore)
			require.Equal(t, models.BidSubmitted, b.Status)
		}
		got, err := tx.GetTender(ctx, tn.ID)
		require.NoError(t, err)
		require.Equal(t, models.TenderOpen, got.Status)
		return nil
	})
}
