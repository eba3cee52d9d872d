package order

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API is the thin HTTP wrapper around the order service. It never blocks a
// response on bus delivery; events leave through the outbox relay.
type API struct {
	svc *Service
	log *slog.Logger
}

func NewAPI(svc *Service, logger *slog.Logger) *API {
	return &API{svc: svc, log: logger}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Get("/{id}", a.get)
		r.Post("/{id}/cancel", a.cancel)
		r.Patch("/{id}/status", a.updateStatus)
	})
	return r
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	o, err := a.svc.Create(r.Context(), in)
	switch {
	case errors.Is(err, ErrProductUnknown):
		a.fail(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrProductInactive), errors.Is(err, ErrInsufficientStock):
		a.fail(w, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		a.fail(w, http.StatusInternalServerError, "failed to create order", err)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "Order created successfully",
			"order":   o,
		})
	}
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	o, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		a.fail(w, http.StatusNotFound, "order not found", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to load order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	var f ListFilter
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			a.fail(w, http.StatusBadRequest, "invalid user_id", nil)
			return
		}
		f.UserID = id
	}
	f.Status = r.URL.Query().Get("status")

	out, err := a.svc.List(r.Context(), f)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	o, err := a.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrNotFound):
		a.fail(w, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, ErrAlreadyCancelled), errors.Is(err, ErrNotCancellable):
		a.fail(w, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		a.fail(w, http.StatusInternalServerError, "failed to cancel order", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Order cancelled successfully",
			"order":   o,
		})
	}
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	o, err := a.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), in.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		a.fail(w, http.StatusNotFound, "order not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		a.fail(w, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		a.fail(w, http.StatusInternalServerError, "failed to update order status", err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Order status updated successfully",
			"order":   o,
		})
	}
}

func (a *API) fail(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		a.log.Error(msg, slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
