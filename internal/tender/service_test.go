package tender_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/store"
	"procurement/internal/tender"
	"procurement/internal/testutils"
	"procurement/models"
)

const day = 24 * time.Hour

func newService(t *testing.T) (*testutils.World, *tender.Service, actor.Actor) {
	w := testutils.NewWorld(t)
	return w, tender.NewService(w.Store, w.Effects).WithClock(w.Now), w.NewActor(actor.RoleStateOfficer, "north")
}

func validInput(w *testutils.World) tender.CreateInput {
	return tender.CreateInput{
		Title:           "School roof",
		Description:     "Replace the roof of the district school",
		Budget:          250000,
		BidDeadline:     w.Now().Add(10 * day),
		ProjectDeadline: w.Now().Add(200 * day),
		TrancheCount:    4,
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)

	tests := []struct {
		name   string
		mutate func(*tender.CreateInput)
	}{
		{"empty title", func(in *tender.CreateInput) { in.Title = "   " }},
		{"zero budget", func(in *tender.CreateInput) { in.Budget = 0 }},
		{"no tranches", func(in *tender.CreateInput) { in.TrancheCount = 0 }},
		{"too many tranches", func(in *tender.CreateInput) { in.TrancheCount = 21 }},
		{"deadlines reversed", func(in *tender.CreateInput) { in.ProjectDeadline = in.BidDeadline.Add(-day) }},
		{"missing deadline", func(in *tender.CreateInput) { in.BidDeadline = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(w)
			tt.mutate(&in)
			_, err := svc.Create(ctx, officer, in)
			require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	tn, err := svc.Create(ctx, officer, validInput(w))
	require.NoError(t, err)
	require.Equal(t, models.TenderDraft, tn.Status)
	require.Equal(t, "north", tn.Jurisdiction)
}

func TestCreateRequiresOfficer(t *testing.T) {
	w, svc, _ := newService(t)
	citizen := w.NewActor(actor.RoleCitizen, "north")
	_, err := svc.Create(context.Background(), citizen, validInput(w))
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	officer := w.NewActor(actor.RoleStateOfficer, "south")
	in := validInput(w)
	in.Jurisdiction = "north"
	_, err = svc.Create(context.Background(), officer, in)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestTransitionFollowsTable(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn, err := svc.Create(ctx, officer, validInput(w))
	require.NoError(t, err)

	_, err = svc.Transition(ctx, officer, tn.ID, models.TenderClosed)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Equal(t, []string{models.TenderOpen, models.TenderCancelled}, apperr.ValidNext(err))

	for _, next := range []string{models.TenderOpen, models.TenderClosed, models.TenderOpen, models.TenderClosed} {
		tn, err = svc.Transition(ctx, officer, tn.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, tn.Status)
	}

	_, err = svc.Transition(ctx, officer, tn.ID, models.TenderAwarded)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Equal(t, []string{models.TenderOpen, models.TenderCancelled}, apperr.ValidNext(err))

	_, err = svc.Transition(ctx, officer, tn.ID, "archived")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	cur, next, err := svc.Transitions(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderClosed, cur)
	require.Len(t, next, 3)

	tn, err = svc.Transition(ctx, officer, tn.ID, models.TenderCancelled)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, officer, tn.ID, models.TenderOpen)
	require.True(t, apperr.Is(err, apperr.KindConflict))
	require.Empty(t, apperr.ValidNext(err))

	require.Len(t, w.Notes.OfType("tender.opened"), 2)
}

func TestGetHidesBudget(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn, err := svc.Create(ctx, officer, validInput(w))
	require.NoError(t, err)

	got, err := svc.Get(ctx, officer, tn.ID)
	require.NoError(t, err)
	require.Equal(t, int64(250000), got.Budget)

	contractor := w.NewActor(actor.RoleContractor, "north")
	got, err = svc.Get(ctx, contractor, tn.ID)
	require.NoError(t, err)
	require.Zero(t, got.Budget)

	_, err = svc.Get(ctx, contractor, 404)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func openTender(t *testing.T, w *testutils.World, svc *tender.Service, officer actor.Actor) *models.Tender {
	t.Helper()
	tn, err := svc.Create(context.Background(), officer, validInput(w))
	require.NoError(t, err)
	tn, err = svc.Transition(context.Background(), officer, tn.ID, models.TenderOpen)
	require.NoError(t, err)
	return tn
}

func TestSubmitBid(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)
	c := w.NewActor(actor.RoleContractor, "north")

	b, err := svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: 240000})
	require.NoError(t, err)
	require.Equal(t, models.BidSubmitted, b.Status)

	_, err = svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: 230000})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: 0})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.SubmitBid(ctx, officer, tn.ID, tender.BidInput{Amount: 1})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	unverified := w.NewActor(actor.RoleContractor, "north", testutils.Unverified())
	_, err = svc.SubmitBid(ctx, unverified, tn.ID, tender.BidInput{Amount: 1000})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	banned := w.NewActor(actor.RoleContractor, "north", testutils.Blacklisted())
	_, err = svc.SubmitBid(ctx, banned, tn.ID, tender.BidInput{Amount: 1000})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	other := w.NewActor(actor.RoleContractor, "north")
	_, err = svc.SubmitBid(ctx, other, tn.ID, tender.BidInput{Amount: 200000})
	require.NoError(t, err)

	all, err := svc.ListBids(ctx, officer, tn.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	mine, err := svc.ListBids(ctx, c, tn.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, b.ID, mine[0].ID)
}

func TestShortlist(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)
	c := w.NewActor(actor.RoleContractor, "north")
	b, err := svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: 240000})
	require.NoError(t, err)

	_, err = svc.Shortlist(ctx, c, tn.ID, b.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	south := w.NewActor(actor.RoleStateOfficer, "south")
	_, err = svc.Shortlist(ctx, south, tn.ID, b.ID)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = svc.Shortlist(ctx, officer, tn.ID, b.ID+100)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := svc.Shortlist(ctx, officer, tn.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.BidShortlisted, got.Status)

	_, err = svc.Shortlist(ctx, officer, tn.ID, b.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))

	bids, err := svc.ListBids(ctx, officer, tn.ID)
	require.NoError(t, err)
	require.Equal(t, models.BidShortlisted, bids[0].Status)
	require.Contains(t, w.AuditActions(), "bid.shortlisted")

	_, err = svc.Transition(ctx, officer, tn.ID, models.TenderCancelled)
	require.NoError(t, err)
	other := w.NewActor(actor.RoleContractor, "north")
	_, err = svc.Shortlist(ctx, officer, tn.ID, other.ID)
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSubmitBidAfterDeadline(t *testing.T) {
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)
	c := w.NewActor(actor.RoleContractor, "north")

	w.Advance(11 * day)
	_, err := svc.SubmitBid(context.Background(), c, tn.ID, tender.BidInput{Amount: 1000})
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSubmitBidOnClosedTender(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)
	_, err := svc.Transition(ctx, officer, tn.ID, models.TenderClosed)
	require.NoError(t, err)

	c := w.NewActor(actor.RoleContractor, "north")
	_, err = svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: 1000})
	require.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestConcurrentDuplicateBids(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)
	c := w.NewActor(actor.RoleContractor, "north")

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SubmitBid(ctx, c, tn.ID, tender.BidInput{Amount: int64(1000 + i)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, oks)
	for _, err := range errs {
		require.True(t, apperr.Is(err, apperr.KindConflict))
	}

	w.Read(func(ctx context.Context, tx store.Tx) error {
		bids, err := tx.ListBids(ctx, tn.ID)
		require.Len(t, bids, 1)
		return err
	})
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	w, svc, officer := newService(t)
	tn := openTender(t, w, svc, officer)

	err := w.Store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.LockTender(ctx, tn.ID)
		if err != nil {
			return err
		}
		return tender.Walk(ctx, tx, cur, w.Now(), models.TenderClosed, models.TenderAwarded, models.TenderCompleted)
	})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	got, err := svc.Get(ctx, officer, tn.ID)
	require.NoError(t, err)
	require.Equal(t, models.TenderOpen, got.Status)
}
