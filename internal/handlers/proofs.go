package handlers

import (
	"net/http"

	"procurement/internal/consensus"
)

func (h *Handler) ContractLedgerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contractId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	l, err := h.svc.Escrow.Ledger(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) ListProofsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contractId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	proofs, err := h.svc.Proofs.List(r.Context(), id, r.URL.Query().Get("status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proofs)
}

func (h *Handler) SubmitProofHandler(w http.ResponseWriter, r *http.Request) {
	var in consensus.SubmitInput
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Proofs.Submit(r.Context(), currentActor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProofHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "proofId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.Proofs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) AssignReviewersHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "proofId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		ReviewerIDs []int64 `json:"reviewerIds"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.svc.Proofs.AssignReviewers(r.Context(), currentActor(r), id, req.ReviewerIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "proofId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Decision string `json:"decision"`
		Comment  string `json:"comment"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Proofs.Vote(r.Context(), currentActor(r), id, req.Decision, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
