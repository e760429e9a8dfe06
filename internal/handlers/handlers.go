// Package handlers открывает жизненный цикл закупок по HTTP.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"procurement/internal/actor"
	"procurement/internal/apperr"
)

// maxBody ограничивает размер тела запроса
const maxBody = 1 << 20

// Handler оборачивает сервисы для HTTP
type Handler struct {
	svc    Services
	logger *slog.Logger
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes монтирует все эндпоинты под /api
func (h *Handler) Routes(limiter *RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RequestID)
	r.Use(limiter.Middleware)
	r.Use(h.actorFromHeaders)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Post("/users", h.RegisterUserHandler)
		r.Get("/users/{userId}", h.GetUserHandler)
		r.Patch("/users/{userId}/standing", h.SetStandingHandler)
		r.Get("/users/{userId}/points", h.PointsHistoryHandler)

		r.Post("/tenders", h.CreateTenderHandler)
		r.Get("/tenders/{tenderId}", h.GetTenderHandler)
		r.Get("/tenders/{tenderId}/transitions", h.TenderTransitionsHandler)
		r.Post("/tenders/{tenderId}/status", h.UpdateTenderStatusHandler)
		r.Post("/tenders/{tenderId}/bids", h.SubmitBidHandler)
		r.Get("/tenders/{tenderId}/bids", h.ListBidsHandler)
		r.Post("/tenders/{tenderId}/bids/{bidId}/shortlist", h.ShortlistBidHandler)
		r.Post("/tenders/{tenderId}/evaluate", h.EvaluateHandler)
		r.Post("/tenders/{tenderId}/award", h.AwardHandler)

		r.Get("/contracts/{contractId}/ledger", h.ContractLedgerHandler)
		r.Get("/contracts/{contractId}/proofs", h.ListProofsHandler)

		r.Post("/proofs", h.SubmitProofHandler)
		r.Get("/proofs/{proofId}", h.GetProofHandler)
		r.Post("/proofs/{proofId}/reviewers", h.AssignReviewersHandler)
		r.Post("/proofs/{proofId}/votes", h.VoteHandler)

		r.Post("/complaints", h.FileComplaintHandler)
		r.Get("/complaints/{complaintId}", h.GetComplaintHandler)
		r.Post("/complaints/{complaintId}/assign", h.AssignComplaintHandler)
		r.Post("/complaints/{complaintId}/investigation", h.StartInvestigationHandler)
		r.Post("/complaints/{complaintId}/conclusion", h.ConcludeHandler)
		r.Post("/complaints/{complaintId}/case", h.EscalateHandler)
		r.Patch("/complaints/{complaintId}/case", h.UpdateCaseHandler)

		r.Get("/audit", h.AuditEntriesHandler)
		r.Get("/audit/verify", h.VerifyAuditHandler)
	})
	return r
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("http.decode", "invalid JSON body: %v", err)
	}
	return nil
}

type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	ValidNext []string `json:"valid_next,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:    http.StatusBadRequest,
	apperr.KindConflict:      http.StatusConflict,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindInvariant:     http.StatusInternalServerError,
	apperr.KindInternal:      http.StatusInternalServerError,
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	reqID := middleware.GetReqID(r.Context())
	body := errorBody{Code: kind.String(), Message: err.Error(), ValidNext: apperr.ValidNext(err)}

	// нарушение инварианта - дефект, клиент видит только internal error
	if kind == apperr.KindInternal || kind == apperr.KindInvariant {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", reqID, "kind", kind.String(), "err", err)
		body = errorBody{Code: apperr.KindInternal.String(), Message: "internal error"}
	}
	writeJSON(w, statusByKind[kind], map[string]any{
		"request_id": reqID,
		"error":      body,
	})
}

// requestID проставляет X-Request-Id, который подхватит RequestID из chi
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = "req_" + uuid.NewString()
			r.Header.Set(middleware.RequestIDHeader, id)
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("http.path", "invalid %s %q", name, raw)
	}
	return id, nil
}

func currentActor(r *http.Request) actor.Actor {
	a, _ := actor.FromContext(r.Context())
	return a
}
