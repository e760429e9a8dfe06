package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"procurement/internal/actor"
	"procurement/internal/apperr"
	"procurement/internal/testutils"
	"procurement/internal/users"
)

func TestRegisterAndStanding(t *testing.T) {
	ctx := context.Background()
	w := testutils.NewWorld(t)
	admin := w.NewActor(actor.RoleAdmin, "")
	svc := users.NewService(w.Store, w.Effects).WithClock(w.Now)

	u, err := svc.Register(ctx, admin, users.RegisterInput{Name: " Acme Builders ", Role: "contractor", Jurisdiction: "north"})
	require.NoError(t, err)
	require.Equal(t, "Acme Builders", u.Name)
	require.False(t, u.Verified)
	require.Equal(t, 50.0, u.Reputation)

	u, err = svc.SetStanding(ctx, admin, u.ID, true, false)
	require.NoError(t, err)
	require.True(t, u.Verified)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.False(t, got.Blacklisted)

	require.Equal(t, []string{"user.registered", "user.standing_changed"}, w.AuditActions())
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	w := testutils.NewWorld(t)
	admin := w.NewActor(actor.RoleAdmin, "")
	officer := w.NewActor(actor.RoleStateOfficer, "north")
	svc := users.NewService(w.Store, w.Effects)

	_, err := svc.Register(ctx, officer, users.RegisterInput{Name: "x", Role: "citizen", Jurisdiction: "north"})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = svc.Register(ctx, admin, users.RegisterInput{Name: "x", Role: "superuser", Jurisdiction: "north"})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Register(ctx, admin, users.RegisterInput{Name: "x", Role: "reviewer"})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.SetStanding(ctx, admin, 999, true, false)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}
