package award

import (
	"context"
	"fmt"
	"sort"
	"time"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/config"
	"procurement/internal/effects"
	"procurement/internal/escrow"
	"procurement/internal/notify"
	"procurement/internal/store"
	"procurement/internal/tender"
	"procurement/models"
)

// Ranked is a scored bid. Rank 1 wins.
type Ranked struct {
	Rank  int        `json:"rank"`
	Bid   models.Bid `json:"bid"`
	Score Breakdown  `json:"score"`
}

type Evaluation struct {
	TenderID  int64     `json:"tenderId"`
	Ranking   []Ranked  `json:"ranking"`
	Anomalies []Anomaly `json:"anomalies"`
}

// Result is everything an award created.
type Result struct {
	Evaluation
	Contract   models.Contract          `json:"contract"`
	Tranches   []models.ContractTranche `json:"tranches"`
	Payment    models.Payment           `json:"payment"`
	Milestones []models.Milestone       `json:"milestones"`
}

type Engine struct {
	store  store.Store
	scorer Scorer
	ratio  float64
	fx     *effects.Effects
	now    func() time.Time
}

func NewEngine(st store.Store, cfg config.Scoring, fx *effects.Effects) *Engine {
	return &Engine{
		store:  st,
		scorer: NewScorer(cfg),
		ratio:  cfg.CollusionRatio,
		fx:     fx,
		now:    time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Evaluate scores and ranks the live bids of a tender without awarding it.
// The computed scores are written back to the bids.
func (e *Engine) Evaluate(ctx context.Context, a actor.Actor, tenderID int64) (*Evaluation, error) {
	const op = "award.evaluate"
	if err := a.Require(op, actor.AwardTender); err != nil {
		return nil, err
	}
	var ev *Evaluation
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTender(ctx, tenderID)
		if err != nil {
			return err
		}
		if err := a.RequireJurisdiction(op, t.Jurisdiction); err != nil {
			return err
		}
		ev, err = e.rank(ctx, tx, t)
		if err != nil {
			return err
		}
		return e.backfill(ctx, tx, ev.Ranking)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Award picks the best bid and opens its contract in one transaction.
// A tender can be awarded once; any later attempt is a conflict.
func (e *Engine) Award(ctx context.Context, a actor.Actor, tenderID int64) (*Result, error) {
	const op = "award.award"
	if err := a.Require(op, actor.AwardTender); err != nil {
		return nil, err
	}

	var (
		res Result
		fx  effects.Batch
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		t, err := tx.LockTender(ctx, tenderID)
		if err != nil {
			return err
		}
		if t.Status != models.TenderOpen && t.Status != models.TenderClosed {
			return apperr.Conflict(op, "tender %d is %s and cannot be awarded", t.ID, t.Status).
				WithValidNext(tender.ValidTransitions(t.Status)...)
		}
		if err := a.RequireJurisdiction(op, t.Jurisdiction); err != nil {
			return err
		}

		ev, err := e.rank(ctx, tx, t)
		if err != nil {
			return err
		}
		if len(ev.Ranking) == 0 {
			return apperr.Conflict(op, "tender %d has no bids to award", t.ID)
		}
		winner := ev.Ranking[0]
		u, err := tx.GetUser(ctx, winner.Bid.ContractorID)
		if err != nil {
			return err
		}
		if !u.Verified || u.Blacklisted {
			return apperr.Conflict(op, "top-ranked contractor %d is not eligible", u.ID)
		}
		if err := e.backfill(ctx, tx, ev.Ranking); err != nil {
			return err
		}

		now := e.now().UTC()
		c := models.Contract{
			TenderID:      t.ID,
			BidID:         winner.Bid.ID,
			ContractorID:  winner.Bid.ContractorID,
			TotalAmount:   winner.Bid.Amount,
			EscrowBalance: winner.Bid.Amount,
			TrancheCount:  t.TrancheCount,
			Status:        models.ContractActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateContract(ctx, &c); err != nil {
			return err
		}
		tranches, err := escrow.Schedule(ctx, tx, &c)
		if err != nil {
			return err
		}
		p, err := escrow.Disburse(ctx, tx, &c, tranches[0], now)
		if err != nil {
			return err
		}
		tranches[0].Status = models.TrancheDisbursed
		tranches[0].DisbursedAt = &now

		for i := range ev.Ranking {
			r := &ev.Ranking[i]
			status := models.BidRejected
			if i == 0 {
				status = models.BidAwarded
			}
			if err := tx.UpdateBidStatus(ctx, r.Bid.ID, status, now); err != nil {
				return err
			}
			r.Bid.Status = status
			r.Bid.UpdatedAt = now
		}

		if err := tender.Walk(ctx, tx, t, now, awardPath(t.Status)...); err != nil {
			return err
		}

		milestones := make([]models.Milestone, 0, len(tranches))
		for _, tr := range tranches {
			m := models.Milestone{
				ContractID: c.ID,
				Sequence:   tr.Sequence,
				Title:      fmt.Sprintf("Milestone %d", tr.Sequence),
				Status:     models.MilestonePending,
				UpdatedAt:  now,
			}
			if tr.Sequence == 1 {
				m.Status = models.MilestoneInProgress
			}
			if err := tx.CreateMilestone(ctx, &m); err != nil {
				return err
			}
			milestones = append(milestones, m)
		}

		res = Result{
			Evaluation: *ev,
			Contract:   c,
			Tranches:   tranches,
			Payment:    *p,
			Milestones: milestones,
		}

		fx.Audit(a, "tender.awarded", "tender", t.ID, map[string]any{
			"contract_id":   c.ID,
			"bid_id":        winner.Bid.ID,
			"contractor_id": c.ContractorID,
			"total_amount":  c.TotalAmount,
			"score":         winner.Score.Total,
			"anomalies":     len(ev.Anomalies),
		})
		fx.Audit(a, "tranche.disbursed", "contract", c.ID, map[string]any{
			"sequence":       tranches[0].Sequence,
			"amount":         p.Amount,
			"payment_ref":    p.Reference,
			"escrow_balance": c.EscrowBalance,
		})
		fx.Notify(notify.Notification{
			UserID:     c.ContractorID,
			Type:       "bid.awarded",
			Title:      "Your bid won",
			Message:    t.Title,
			EntityType: "contract",
			EntityID:   c.ID,
		})
		for _, r := range ev.Ranking[1:] {
			fx.Notify(notify.Notification{
				UserID:     r.Bid.ContractorID,
				Type:       "bid.rejected",
				Title:      "Tender awarded to another bid",
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
	e.fx.Flush(ctx, &fx)
	return &res, nil
}

// rank scores the submitted and shortlisted bids of t: highest total first,
// then the cheaper bid, then the earlier one.
func (e *Engine) rank(ctx context.Context, tx store.Tx, t *models.Tender) (*Evaluation, error) {
	all, err := tx.ListBids(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	var bids []models.Bid
	for _, b := range all {
		if b.Status == models.BidSubmitted || b.Status == models.BidShortlisted {
			bids = append(bids, b)
		}
	}

	ids := make([]int64, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.ContractorID)
	}
	users, err := tx.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	rep := make(map[int64]float64, len(users))
	for _, u := range users {
		rep[u.ID] = u.Reputation
	}

	ranking := make([]Ranked, 0, len(bids))
	for _, b := range bids {
		ranking = append(ranking, Ranked{
			Bid:   b,
			Score: e.scorer.Score(b.Amount, t.Budget, b.TimelineDays, rep[b.ContractorID]),
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		a, b := ranking[i], ranking[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if a.Bid.Amount != b.Bid.Amount {
			return a.Bid.Amount < b.Bid.Amount
		}
		return a.Bid.ID < b.Bid.ID
	})
	for i := range ranking {
		ranking[i].Rank = i + 1
	}

	anomalies := DetectCollusion(bids, e.ratio)
	if anomalies == nil {
		anomalies = []Anomaly{}
	}
	return &Evaluation{TenderID: t.ID, Ranking: ranking, Anomalies: anomalies}, nil
}

func (e *Engine) backfill(ctx context.Context, tx store.Tx, ranking []Ranked) error {
	for i := range ranking {
		r := &ranking[i]
		if err := tx.UpdateBidScores(ctx, r.Bid.ID, r.Score.Price, r.Score.Total); err != nil {
			return err
		}
		r.Bid.ProximityScore = r.Score.Price
		r.Bid.AIScore = r.Score.Total
	}
	return nil
}

func awardPath(from string) []string {
	if from == models.TenderOpen {
		return []string{models.TenderClosed, models.TenderAwarded, models.TenderInProgress}
	}
	return []string{models.TenderAwarded, models.TenderInProgress}
}
