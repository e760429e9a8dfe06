package handlers

import (
	"net/http"

	"procurement/internal/tender"
)

// CreateTenderHandler обрабатывает POST /api/tenders
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	var in tender.CreateInput
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.svc.Tenders.Create(r.Context(), currentActor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.svc.Tenders.Get(r.Context(), currentActor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) TenderTransitionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, next, err := h.svc.Tenders.Transitions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if next == nil {
		next = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": current, "validNext": next})
}

// UpdateTenderStatusHandler двигает тендер по таблице статусов
func (h *Handler) UpdateTenderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tenderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.svc.Tenders.Transition(r.Context(), currentActor(r), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
