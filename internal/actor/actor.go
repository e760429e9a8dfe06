// Package actor carries the authenticated caller into the core as a value.
//
// Roles are mapped to a closed set of capabilities once, at the request
// boundary; core components only ask whether an actor holds a capability.
package actor

import (
	"context"
	"fmt"

	"procurement/internal/apperr"
)

type Role string

const (
	RoleStateOfficer Role = "state_officer"
	RoleContractor   Role = "contractor"
	RoleReviewer     Role = "reviewer"
	RoleNGO          Role = "ngo"
	RoleCitizen      Role = "citizen"
	RoleAdmin        Role = "admin"
)

type Capability string

const (
	ManageTender     Capability = "manage_tender"
	AwardTender      Capability = "award_tender"
	AssignReviewers  Capability = "assign_reviewers"
	SubmitBid        Capability = "submit_bid"
	SubmitProof      Capability = "submit_proof"
	ReviewProof      Capability = "review_proof"
	FileComplaint    Capability = "file_complaint"
	ManageComplaints Capability = "manage_complaints"
	Investigate      Capability = "investigate"
	ReadAudit        Capability = "read_audit"
	ManageUsers      Capability = "manage_users"
)

var capabilities = map[Role][]Capability{
	RoleStateOfficer: {ManageTender, AwardTender, AssignReviewers, ReadAudit},
	RoleContractor:   {SubmitBid, SubmitProof},
	RoleReviewer:     {ReviewProof},
	RoleNGO:          {Investigate, FileComplaint},
	RoleCitizen:      {FileComplaint},
	RoleAdmin:        {ManageTender, AwardTender, AssignReviewers, ManageComplaints, ReadAudit, ManageUsers},
}

// ParseRole validates a role string supplied by the authenticating gateway.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := capabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Actor struct {
	ID           int64
	Role         Role
	Jurisdiction string
}

func (a Actor) Can(c Capability) bool {
	for _, have := range capabilities[a.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Require returns an authorization error unless the actor holds c.
func (a Actor) Require(op string, c Capability) error {
	if a.ID <= 0 {
		return apperr.Forbidden(op, "anonymous actor")
	}
	if !a.Can(c) {
		return apperr.Forbidden(op, "role %s lacks %s", a.Role, c)
	}
	return nil
}

// InJurisdiction reports whether the actor may act on entities of j.
// Admins span all jurisdictions.
func (a Actor) InJurisdiction(j string) bool {
	return a.Role == RoleAdmin || a.Jurisdiction == j
}

func (a Actor) RequireJurisdiction(op, j string) error {
	if !a.InJurisdiction(j) {
		return apperr.Forbidden(op, "actor jurisdiction %q does not cover %q", a.Jurisdiction, j)
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
