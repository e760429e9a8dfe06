package award

import (
	"math"

	"procurement/models"
)

const AnomalyPriceCluster = "PRICE_CLUSTER"

// Anomaly flags a suspicious pattern. It never blocks an award.
type Anomaly struct {
	Type    string  `json:"type"`
	BidIDs  []int64 `json:"bidIds"`
	Amounts []int64 `json:"amounts"`
	Spread  float64 `json:"spread"`
}

// DetectCollusion flags every pair of bids whose amounts differ by less
// than ratio of the larger amount.
func DetectCollusion(bids []models.Bid, ratio float64) []Anomaly {
	var out []Anomaly
	for i := 0; i < len(bids); i++ {
		for j := i + 1; j < len(bids); j++ {
			a, b := bids[i].Amount, bids[j].Amount
			hi := math.Max(float64(a), float64(b))
			if hi <= 0 {
				continue
			}
			spread := math.Abs(float64(a-b)) / hi
			if spread < ratio {
				out = append(out, Anomaly{
					Type:    AnomalyPriceCluster,
					BidIDs:  []int64{bids[i].ID, bids[j].ID},
					Amounts: []int64{a, b},
					Spread:  round2(spread * 100),
				})
			}
		}
	}
	return out
}
