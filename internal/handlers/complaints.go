package handlers

import (
	"net/http"

	"procurement/internal/complaint"
)

func (h *Handler) FileComplaintHandler(w http.ResponseWriter, r *http.Request) {
	var in complaint.FileInput
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Complaints.File(r.Context(), currentActor(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetComplaintHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.svc.Complaints.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) AssignComplaintHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		InvestigatorID int64 `json:"investigatorId"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Complaints.Assign(r.Context(), currentActor(r), id, req.InvestigatorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) StartInvestigationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Complaints.StartInvestigation(r.Context(), currentActor(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ConcludeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Verdict  string `json:"verdict"`
		Findings string `json:"findings"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.Complaints.Conclude(r.Context(), currentActor(r), id, req.Verdict, req.Findings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) EscalateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req struct {
		Priority string `json:"priority"`
		Notes    string `json:"notes"`
	}
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Complaints.Escalate(r.Context(), currentActor(r), id, req.Priority, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCaseHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "complaintId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var in complaint.CaseUpdate
	if err := readJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.Complaints.UpdateCase(r.Context(), currentActor(r), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
