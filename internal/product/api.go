package product

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API is the thin HTTP wrapper around the catalog service.
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

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Get("/{id}", a.get)
		r.Put("/{id}", a.update)
		r.Delete("/{id}", a.delete)
	})
	return r
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.List(r.Context())
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": items})
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		a.fail(w, http.StatusNotFound, "product not found", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to load product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if in.Name == "" || in.SKU == "" || in.Price < 0 {
		a.fail(w, http.StatusBadRequest, "name, sku and a non-negative price are required", nil)
		return
	}
	p, err := a.svc.Create(r.Context(), in)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "product": p})
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	p, err := a.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if errors.Is(err, ErrNotFound) {
		a.fail(w, http.StatusNotFound, "product not found", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": p})
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	err := a.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		a.fail(w, http.StatusNotFound, "product not found", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to delete product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Product deleted successfully"})
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
