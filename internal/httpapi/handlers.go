package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/user"
)

// healthResponse is the body of GET /health. It is always served with 200;
// a disconnected cache only degrades performance.
type healthResponse struct {
	Status string `json:"status"`
	Cache  string `json:"cache"`
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	state := "disconnected"
	if rt.cache != nil && rt.cache.IsConnected(r.Context()) {
		state = "connected"
	}
	rt.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Cache: state})
}

func (rt *Router) listUsers(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.GetAll(r.Context())
	respond(rt, w, resp, err)
}

func (rt *Router) countUsers(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.Count(r.Context())
	respond(rt, w, resp, err)
}

func (rt *Router) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}
	resp, err := rt.svc.GetByID(r.Context(), id)
	respond(rt, w, resp, err)
}

func (rt *Router) getUserByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if err := rt.validate.Var(email, "required,email"); err != nil {
		rt.respondError(w, http.StatusBadRequest, "email must be a valid email")
		return
	}
	resp, err := rt.svc.GetByEmail(r.Context(), email)
	respond(rt, w, resp, err)
}

func (rt *Router) createUser(w http.ResponseWriter, r *http.Request) {
	u, ok := rt.decodeUser(w, r)
	if !ok {
		return
	}
	resp, err := rt.svc.Add(r.Context(), u)
	respond(rt, w, resp, err)
}

func (rt *Router) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}
	u, ok := rt.decodeUser(w, r)
	if !ok {
		return
	}
	u.ID = id
	resp, err := rt.svc.Update(r.Context(), u)
	respond(rt, w, resp, err)
}

func (rt *Router) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r)
	if !ok {
		return
	}
	resp, err := rt.svc.Remove(r.Context(), id)
	respond(rt, w, resp, err)
}

func (rt *Router) invalidateCache(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.svc.InvalidateCache(r.Context())
	respond(rt, w, resp, err)
}

func (rt *Router) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		rt.respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (rt *Router) decodeUser(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	var u user.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		rt.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if err := rt.validate.Struct(&u); err != nil {
		rt.respondError(w, http.StatusBadRequest, "Validation error: "+formatValidationError(err))
		return nil, false
	}
	return &u, true
}

// respond writes a service envelope. Not-found results are failed envelopes
// served with 200; repository errors become 500.
func respond[T any](rt *Router, w http.ResponseWriter, resp user.Response[T], err error) {
	if err != nil {
		rt.log.Error("request failed", zap.Error(err))
		rt.respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	rt.respondJSON(w, http.StatusOK, resp)
}

func (rt *Router) respondError(w http.ResponseWriter, status int, message string) {
	rt.respondJSON(w, status, user.Response[any]{Message: message, Status: user.StatusFailed})
}

func (rt *Router) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rt.log.Warn("failed to encode response", zap.Error(err))
	}
}

func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
