// Package handler exposes the referral network over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"refnet/internal/network/codes"
	"refnet/internal/network/models"
	"refnet/internal/network/projection"
	dErrors "refnet/pkg/domain-errors"
	"refnet/pkg/platform/httputil"
	"refnet/pkg/requestcontext"
)

// Service defines the referral network operations served over HTTP.
type Service interface {
	Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error)
	GetStatus(ctx context.Context, id models.NodeID) (*models.Status, error)
	ResolveCode(ctx context.Context, raw string) (models.NodeID, error)
	AuditAndRepair(ctx context.Context, opts projection.AuditOptions) (projection.Report, error)
	CodeCapacity(ctx context.Context) (codes.CapacityReport, error)
}

// Joiner admits members. The join pool satisfies it so HTTP joins share
// the bounded worker queue.
type Joiner interface {
	Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error)
}

// Handler wires network endpoints to the service.
type Handler struct {
	service Service
	joiner  Joiner
	logger  *slog.Logger
}

// New constructs a handler. A nil joiner sends joins straight to the service.
func New(service Service, joiner Joiner, logger *slog.Logger) *Handler {
	if joiner == nil {
		joiner = service
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service: service,
		joiner:  joiner,
		logger:  logger,
	}
}

// Register mounts the member-facing endpoints. joinMiddleware wraps only
// POST /v1/joins.
func (h *Handler) Register(r chi.Router, joinMiddleware ...func(http.Handler) http.Handler) {
	r.With(joinMiddleware...).Post("/v1/joins", h.HandleJoin)
	r.Get("/v1/nodes/{id}/status", h.HandleStatus)
	r.Get("/v1/codes/{code}", h.HandleResolveCode)
}

// RegisterAdmin mounts maintenance endpoints. Callers guard r with the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/audit", h.HandleAudit)
	r.Get("/admin/codes/capacity", h.HandleCodeCapacity)
}

// HandleJoin handles POST /v1/joins.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[JoinRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.joiner.Join(ctx, req.ExternalKey, req.ReferrerCode)
	if err != nil {
		h.logger.WarnContext(ctx, "join rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "join accepted",
		"request_id", requestID,
		"node_id", res.NodeID.String(),
		"code", string(res.Code),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleStatus handles GET /v1/nodes/{id}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := models.ParseNodeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid node id"))
		return
	}

	status, err := h.service.GetStatus(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleResolveCode handles GET /v1/codes/{code}.
func (h *Handler) HandleResolveCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	id, err := h.service.ResolveCode(ctx, code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{
		Code:   models.NormalizeCode(code),
		NodeID: id,
	})
}

// HandleAudit handles POST /admin/audit. Counter repair is opt-in through
// ?repair_counters=true.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var opts projection.AuditOptions
	if raw := r.URL.Query().Get("repair_counters"); raw != "" {
		repair, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "repair_counters must be a boolean"))
			return
		}
		opts.RepairCounters = repair
	}

	report, err := h.service.AuditAndRepair(ctx, opts)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReport(report))
}

// HandleCodeCapacity handles GET /admin/codes/capacity.
func (h *Handler) HandleCodeCapacity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CodeCapacity(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
