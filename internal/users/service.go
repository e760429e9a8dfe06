// Package users registers participants and records their standing.
package users

import (
	"context"
	"strings"
	"time"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/effects"
	"procurement/internal/store"
	"procurement/models"
)

type Service struct {
	store store.Store
	fx    *effects.Effects
	now   func() time.Time
}

func NewService(st store.Store, fx *effects.Effects) *Service {
	return &Service{store: st, fx: fx, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RegisterInput struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Jurisdiction string `json:"jurisdiction"`
	Verified     bool   `json:"verified"`
}

// Register stores a new participant. Reputation starts at 50.
func (s *Service) Register(ctx context.Context, a actor.Actor, in RegisterInput) (*models.User, error) {
	const op = "user.register"
	if err := a.Require(op, actor.ManageUsers); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 100 {
		return nil, apperr.Validation(op, "name is required and max length 100")
	}
	role, err := actor.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if role != actor.RoleAdmin && in.Jurisdiction == "" {
		return nil, apperr.Validation(op, "jurisdiction is required for %s", role)
	}

	u := &models.User{
		Name:         in.Name,
		Role:         string(role),
		Jurisdiction: in.Jurisdiction,
		Reputation:   50,
		Verified:     in.Verified,
		CreatedAt:    s.now().UTC(),
	}
	var fx effects.Batch
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		fx.Audit(a, "user.registered", "user", u.ID, map[string]any{
			"role": u.Role, "jurisdiction": u.Jurisdiction, "verified": u.Verified,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	var u *models.User
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, id)
		return err
	})
	return u, err
}

// SetStanding verifies or blacklists a user.
func (s *Service) SetStanding(ctx context.Context, a actor.Actor, id int64, verified, blacklisted bool) (*models.User, error) {
	const op = "user.standing"
	if err := a.Require(op, actor.ManageUsers); err != nil {
		return nil, err
	}
	var (
		u  *models.User
		fx effects.Batch
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		prev, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SetUserStanding(ctx, id, verified, blacklisted); err != nil {
			return err
		}
		if u, err = tx.GetUser(ctx, id); err != nil {
			return err
		}
		fx.Audit(a, "user.standing_changed", "user", id, map[string]any{
			"verified":        verified,
			"blacklisted":     blacklisted,
			"was_verified":    prev.Verified,
			"was_blacklisted": prev.Blacklisted,
			"reputation":      u.Reputation,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fx.Flush(ctx, &fx)
	return u, nil
}
