package handlers

import (
	"net/http"

	"procurement/internal/actor"
	"procurement/internal/users"
)

func (h *Handler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.svc.Users.Register(r.Context(), currentActor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.svc.Users.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) SetStandingHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Verified    bool `json:"verified"`
		Blacklisted bool `json:"blacklisted"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	u, err := h.svc.Users.SetStanding(r.Context(), currentActor(r), id, req.Verified, req.Blacklisted)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) PointsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.svc.Points.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) AuditEntriesHandler(w http.ResponseWriter, r *http.Request) {
	if err := currentActor(r).Require("audit.list", actor.ReadAudit); err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.Audit.Entries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) VerifyAuditHandler(w http.ResponseWriter, r *http.Request) {
	if err := currentActor(r).Require("audit.verify", actor.ReadAudit); err != nil {
		h.writeError(w, r, err)
		return
	}
	rep, err := h.svc.Audit.Verify(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
