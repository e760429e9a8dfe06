package handlers

import (
	"net/http"

	"procurement/internal/tender"
)

func (h *Handler) SubmitBidHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in tender.BidInput
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.Tenders.SubmitBid(r.Context(), currentActor(r), tenderID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBidsHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bids, err := h.svc.Tenders.ListBids(r.Context(), currentActor(r), tenderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// ShortlistBidHandler отмечает ставку для подробной оценки
func (h *Handler) ShortlistBidHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bidID, err := pathID(r, "bidId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.Tenders.Shortlist(r.Context(), currentActor(r), tenderID, bidID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// EvaluateHandler ранжирует ставки без присуждения
func (h *Handler) EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.svc.Awards.Evaluate(r.Context(), currentActor(r), tenderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) AwardHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Awards.Award(r.Context(), currentActor(r), tenderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
