// Package testutils builds in-memory fixtures for package tests.
package testutils

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/audit"
	"procurement/internal/config"
	"procurement/internal/effects"
	"procurement/internal/points"
	"procurement/internal/store"
	"procurement/internal/store/memstore"
	"procurement/models"
)

// WithChiURLParams puts path parameters into the chi context of req.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// Start is the fixed time every World clock begins at.
var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// World wires the core against a memstore with a controllable clock.
type World struct {
	t       *testing.T
	Store   *memstore.Store
	Config  config.Config
	Chain   *audit.Chain
	Notes   *Recorder
	Effects *effects.Effects
	Ledger  *points.Ledger

	mu  sync.Mutex
	now time.Time
}

func NewWorld(t *testing.T) *World {
	t.Helper()
	w := &World{
		t:      t,
		Store:  memstore.New(),
		Config: config.Default(),
		Notes:  &Recorder{},
		now:    Start,
	}
	w.Chain = audit.NewChain(w.Store).WithClock(w.Now)
	w.Effects = effects.New(w.Chain, w.Notes, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.Ledger = points.NewLedger(w.Store, w.Config.Points).WithClock(w.Now)
	return w
}

func (w *World) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

func (w *World) Advance(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = w.now.Add(d)
}

// UserOption adjusts a user before it is stored.
type UserOption func(*models.User)

func WithReputation(r float64) UserOption { return func(u *models.User) { u.Reputation = r } }

func Unverified() UserOption { return func(u *models.User) { u.Verified = false } }

func Blacklisted() UserOption { return func(u *models.User) { u.Blacklisted = true } }

// NewActor stores a verified user with the given role and returns it as an actor.
func (w *World) NewActor(role actor.Role, jurisdiction string, opts ...UserOption) actor.Actor {
	w.t.Helper()
	u := models.User{
		Name:         string(role),
		Role:         string(role),
		Jurisdiction: jurisdiction,
		Reputation:   50,
		Verified:     true,
		CreatedAt:    w.Now(),
	}
	for _, opt := range opts {
		opt(&u)
	}
	err := w.Store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), &u)
	})
	require.NoError(w.t, err)
	return actor.Actor{ID: u.ID, Role: role, Jurisdiction: jurisdiction}
}

func (w *World) SetStanding(id int64, verified, blacklisted bool) {
	w.t.Helper()
	w.Read(func(ctx context.Context, tx store.Tx) error {
		return tx.SetUserStanding(ctx, id, verified, blacklisted)
	})
}

// Read runs fn in a transaction and fails the test on error.
func (w *World) Read(fn func(ctx context.Context, tx store.Tx) error) {
	w.t.Helper()
	ctx := context.Background()
	require.NoError(w.t, w.Store.InTx(ctx, func(tx store.Tx) error { return fn(ctx, tx) }))
}

func (w *World) User(id int64) models.User {
	w.t.Helper()
	var u *models.User
	w.Read(func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	return *u
}

// AuditActions lists the actions on the chain in append order.
func (w *World) AuditActions() []string {
	w.t.Helper()
	var out []string
	w.Read(func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.ListAuditEntries(ctx)
		for _, e := range entries {
			out = append(out, e.Action)
		}
		return err
	})
	return out
}
