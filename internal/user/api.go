package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API is the thin auth HTTP wrapper. It invokes the service and never fails
// a request because of a downstream publish failure.
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

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
	})
	return r
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		a.fail(w, http.StatusBadRequest, "name, email and password are required", nil)
		return
	}
	u, err := a.svc.Register(r.Context(), in)
	if errors.Is(err, ErrEmailTaken) {
		a.fail(w, http.StatusConflict, "email already registered", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": u})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	u, err := a.svc.Login(r.Context(), in.Email, in.Password, r.RemoteAddr, r.UserAgent())
	if errors.Is(err, ErrInvalidCredentials) {
		a.fail(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "failed to log in", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
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
