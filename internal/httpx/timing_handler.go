package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

// Engine is what the handlers need from *timing.Engine.
type Engine interface {
	EnqueueIdempotent(ctx context.Context, orderID string, itemCount int) (timing.Record, bool, error)
	UpdateStatus(ctx context.Context, orderID string, to timing.Status) (timing.Record, error)
	Get(orderID string) (timing.Estimate, error)
	ListActiveOrders() []timing.Estimate
	Purge(ctx context.Context) ([]string, error)
}

type TimingHandler struct {
	Engine Engine
}

type EnqueueReq struct {
	OrderID   string `json:"order_id"`
	ItemCount int    `json:"item_count"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

// View is an estimate as served to the display layer.
type View struct {
	timing.Estimate
	Display string `json:"display"`
}

type PurgeResp struct {
	Purged []string `json:"purged"`
}

type ErrorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TimingHandler) Register(r chi.Router) {
	r.Route("/timings", func(r chi.Router) {
		r.Post("/", h.enqueue)
		r.Get("/", h.listActive)
		r.Post("/purge", h.purge)
		r.Get("/{id}", h.get)
		r.Patch("/{id}/status", h.updateStatus)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := timing.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case timing.KindInvalidInput:
		code = http.StatusBadRequest
	case timing.KindOrderNotFound:
		code = http.StatusNotFound
	case timing.KindInvalidStatusTransition:
		code = http.StatusConflict
	case timing.KindStorageUnavailable:
		code = http.StatusServiceUnavailable
	default:
		kind = "Internal"
	}
	writeJSON(w, code, ErrorResp{Error: string(kind), Message: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResp{Error: string(timing.KindInvalidInput), Message: msg})
}

func view(est timing.Estimate) View {
	return View{Estimate: est, Display: timing.FormatRemaining(est.RemainingMinutes)}
}

func (h *TimingHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, created, err := h.Engine.EnqueueIdempotent(ctx, req.OrderID, req.ItemCount)
	if err != nil {
		writeError(w, err)
		return
	}
	est, err := h.Engine.Get(rec.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, view(est))
}

func (h *TimingHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	status, err := timing.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Engine.UpdateStatus(ctx, chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	est, err := h.Engine.Get(rec.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(est))
}

func (h *TimingHandler) get(w http.ResponseWriter, r *http.Request) {
	est, err := h.Engine.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(est))
}

func (h *TimingHandler) listActive(w http.ResponseWriter, r *http.Request) {
	list := h.Engine.ListActiveOrders()
	out := make([]View, 0, len(list))
	for _, est := range list {
		out = append(out, view(est))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TimingHandler) purge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	purged, err := h.Engine.Purge(ctx)
	if err != nil {
		// partial purge: report what went through alongside the failure
		writeJSON(w, http.StatusServiceUnavailable, struct {
			ErrorResp
			Purged []string `json:"purged"`
		}{ErrorResp{Error: string(timing.KindOf(err)), Message: err.Error()}, purged})
		return
	}
	writeJSON(w, http.StatusOK, PurgeResp{Purged: purged})
}
