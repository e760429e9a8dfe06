// Package memstore is an in-memory store.Store.
//
// Transactions are serialized by one mutex and applied copy-on-write: the
// callback works on a copy of the state that replaces the live state only
// when it returns nil. This gives the same all-or-nothing visibility the
// PostgreSQL storage provides.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/store"
	"procurement/models"
)

type state struct {
	seq map[string]int64

	users      map[int64]models.User
	tenders    map[int64]models.Tender
	bids       map[int64]models.Bid
	contracts  map[int64]models.Contract
	tranches   map[int64]models.ContractTranche
	payments   map[int64]models.Payment
	milestones map[int64]models.Milestone
	proofs     map[int64]models.WorkProof
	reviewers  []models.ProofReviewer
	votes      map[int64]models.ProofVote
	complaints map[int64]models.Complaint
	cases      map[int64]models.Case
	points     map[int64]models.PointsEntry
	audit      []models.AuditEntry
	chainHead  string
}

func newState() *state {
	return &state{
		seq:        map[string]int64{},
		users:      map[int64]models.User{},
		tenders:    map[int64]models.Tender{},
		bids:       map[int64]models.Bid{},
		contracts:  map[int64]models.Contract{},
		tranches:   map[int64]models.ContractTranche{},
		payments:   map[int64]models.Payment{},
		milestones: map[int64]models.Milestone{},
		proofs:     map[int64]models.WorkProof{},
		votes:      map[int64]models.ProofVote{},
		complaints: map[int64]models.Complaint{},
		cases:      map[int64]models.Case{},
		points:     map[int64]models.PointsEntry{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		seq:        cloneMap(s.seq),
		users:      cloneMap(s.users),
		tenders:    cloneMap(s.tenders),
		bids:       cloneMap(s.bids),
		contracts:  cloneMap(s.contracts),
		tranches:   cloneMap(s.tranches),
		payments:   cloneMap(s.payments),
		milestones: cloneMap(s.milestones),
		proofs:     cloneMap(s.proofs),
		reviewers:  append([]models.ProofReviewer(nil), s.reviewers...),
		votes:      cloneMap(s.votes),
		complaints: cloneMap(s.complaints),
		cases:      cloneMap(s.cases),
		points:     cloneMap(s.points),
		audit:      append([]models.AuditEntry(nil), s.audit...),
		chainHead:  s.chainHead,
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Mutate gives tests direct access to committed state, e.g. to simulate
// tampering with audit rows.
func (s *Store) Mutate(fn func(audit []models.AuditEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state.audit)
}

type tx struct {
	st *state
}

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// Users

func (t *tx) CreateUser(_ context.Context, u *models.User) error {
	u.ID = t.st.next("users")
	t.st.users[u.ID] = *u
	return nil
}

func (t *tx) GetUser(_ context.Context, id int64) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user.get", "user %d not found", id)
	}
	return &u, nil
}

func (t *tx) GetUsers(_ context.Context, ids []int64) ([]models.User, error) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return sortedValues(t.st.users, func(u models.User) bool { return want[u.ID] }), nil
}

func (t *tx) AdjustUserTotals(_ context.Context, id int64, points int, reputation float64) (*models.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user.adjust", "user %d not found", id)
	}
	u.Points += points
	u.Reputation += reputation
	t.st.users[id] = u
	return &u, nil
}

func (t *tx) IncrementWarnings(_ context.Context, id int64) (int, error) {
	u, ok := t.st.users[id]
	if !ok {
		return 0, apperr.NotFound("user.warn", "user %d not found", id)
	}
	u.Warnings++
	t.st.users[id] = u
	return u.Warnings, nil
}

func (t *tx) SetUserStanding(_ context.Context, id int64, verified, blacklisted bool) error {
	u, ok := t.st.users[id]
	if !ok {
		return apperr.NotFound("user.standing", "user %d not found", id)
	}
	u.Verified, u.Blacklisted = verified, blacklisted
	t.st.users[id] = u
	return nil
}

// Tenders

func (t *tx) CreateTender(_ context.Context, tn *models.Tender) error {
	tn.ID = t.st.next("tenders")
	t.st.tenders[tn.ID] = *tn
	return nil
}

func (t *tx) GetTender(_ context.Context, id int64) (*models.Tender, error) {
	tn, ok := t.st.tenders[id]
	if !ok {
		return nil, apperr.NotFound("tender.get", "tender %d not found", id)
	}
	return &tn, nil
}

func (t *tx) LockTender(ctx context.Context, id int64) (*models.Tender, error) {
	return t.GetTender(ctx, id)
}

func (t *tx) UpdateTenderStatus(_ context.Context, id int64, status string, at time.Time) error {
	tn, ok := t.st.tenders[id]
	if !ok {
		return apperr.NotFound("tender.update", "tender %d not found", id)
	}
	tn.Status = status
	tn.UpdatedAt = at
	t.st.tenders[id] = tn
	return nil
}

// Bids

func (t *tx) CreateBid(_ context.Context, b *models.Bid) error {
	for _, other := range t.st.bids {
		if other.TenderID == b.TenderID && other.ContractorID == b.ContractorID {
			return apperr.Conflict("bid.create", "contractor %d already bid on tender %d", b.ContractorID, b.TenderID)
		}
	}
	b.ID = t.st.next("bids")
	t.st.bids[b.ID] = *b
	return nil
}

func (t *tx) ListBids(_ context.Context, tenderID int64) ([]models.Bid, error) {
	return sortedValues(t.st.bids, func(b models.Bid) bool { return b.TenderID == tenderID }), nil
}

func (t *tx) UpdateBidScores(_ context.Context, id int64, proximity, ai float64) error {
	b, ok := t.st.bids[id]
	if !ok {
		return apperr.NotFound("bid.score", "bid %d not found", id)
	}
	b.ProximityScore = proximity
	b.AIScore = ai
	t.st.bids[id] = b
	return nil
}

func (t *tx) UpdateBidStatus(_ context.Context, id int64, status string, at time.Time) error {
	b, ok := t.st.bids[id]
	if !ok {
		return apperr.NotFound("bid.status", "bid %d not found", id)
	}
	b.Status = status
	b.UpdatedAt = at
	t.st.bids[id] = b
	return nil
}
