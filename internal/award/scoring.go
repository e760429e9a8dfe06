// Package award scores competing bids and runs the award transaction.
package award

import (
	"math"

	"procurement/internal/config"
)

// Breakdown is a bid's score split by component. Total is 0..100.
type Breakdown struct {
	Price      float64 `json:"price"`
	Reputation float64 `json:"reputation"`
	Timeline   float64 `json:"timeline"`
	Total      float64 `json:"total"`
}

// Scorer is a pure function of its configuration and inputs.
type Scorer struct {
	cfg config.Scoring
}

func NewScorer(cfg config.Scoring) Scorer {
	return Scorer{cfg: cfg}
}

// Score rates a bid of amount against the hidden budget.
// timelineDays is nil when the bid did not propose one.
func (s Scorer) Score(amount, budget int64, timelineDays *int, reputation float64) Breakdown {
	b := Breakdown{
		Price:      s.price(amount, budget),
		Reputation: s.reputation(reputation),
		Timeline:   s.timeline(timelineDays),
	}
	b.Total = round2(b.Price + b.Reputation + b.Timeline)
	b.Price, b.Reputation, b.Timeline = round2(b.Price), round2(b.Reputation), round2(b.Timeline)
	return b
}

// price rewards bids in [FairBandLow, 1] of budget, cheaper scoring higher
// inside the band. Over-budget bids lose points in proportion to the
// overage; suspiciously cheap bids are capped and score by how close they
// come to the band.
func (s Scorer) price(amount, budget int64) float64 {
	if budget <= 0 || amount <= 0 {
		return 0
	}
	c := s.cfg
	r := float64(amount) / float64(budget)
	switch {
	case r > 1:
		return math.Max(0, c.FairBandFloor-(r-1)*c.OverBudgetSlope)
	case r >= c.FairBandLow:
		return c.FairBandFloor + (1-r)/(1-c.FairBandLow)*(c.PriceMax-c.FairBandFloor)
	default:
		return c.LowBidCap * r / c.FairBandLow
	}
}

func (s Scorer) reputation(rep float64) float64 {
	c := s.cfg
	rep = math.Max(0, math.Min(rep, c.ReputationCap))
	return rep / c.ReputationCap * c.ReputationMax
}

func (s Scorer) timeline(days *int) float64 {
	c := s.cfg
	if days == nil || *days <= 0 {
		return c.TimelineMax / 2
	}
	d := float64(*days)
	minD, maxD := float64(c.MinDays), float64(c.MaxDays)
	switch {
	case d < minD:
		return c.TimelineMax * d / minD
	case d > maxD:
		over := (d - maxD) / maxD
		return math.Max(c.SlowFloor, c.TimelineMax-over*(c.TimelineMax-c.SlowFloor))
	default:
		return c.TimelineMax
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
