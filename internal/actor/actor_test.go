package actor_test

import (
	"context"
	"testing"

	"procurement/internal/actor"
	"procurement/internal/apperr"

	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	officer := actor.Actor{ID: 1, Role: actor.RoleStateOfficer, Jurisdiction: "KA"}
	contractor := actor.Actor{ID: 2, Role: actor.RoleContractor, Jurisdiction: "KA"}

	require.True(t, officer.Can(actor.AwardTender))
	require.False(t, officer.Can(actor.SubmitBid))
	require.NoError(t, contractor.Require("bid", actor.SubmitBid))

	err := contractor.Require("award", actor.AwardTender)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	err = actor.Actor{Role: actor.RoleAdmin}.Require("award", actor.AwardTender)
	require.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestJurisdiction(t *testing.T) {
	officer := actor.Actor{ID: 1, Role: actor.RoleStateOfficer, Jurisdiction: "KA"}
	admin := actor.Actor{ID: 9, Role: actor.RoleAdmin}

	require.True(t, officer.InJurisdiction("KA"))
	require.Error(t, officer.RequireJurisdiction("award", "TN"))
	require.NoError(t, admin.RequireJurisdiction("award", "TN"))
}

func TestParseRoleAndContext(t *testing.T) {
	r, err := actor.ParseRole("reviewer")
	require.NoError(t, err)
	require.Equal(t, actor.RoleReviewer, r)

	_, err = actor.ParseRole("superuser")
	require.Error(t, err)

	ctx := actor.WithActor(context.Background(), actor.Actor{ID: 5, Role: r})
	got, ok := actor.FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(5), got.ID)

	_, ok = actor.FromContext(context.Background())
	require.False(t, ok)
}
