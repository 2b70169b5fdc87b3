// Package httpapi exposes the engine over the JSON/HTTP surface the
// original protocol clients speak: two registration endpoints, two login
// endpoints, and the session utilities around them. Binary protocol
// payloads travel as standard base64 strings; the request field carrying
// the identity value is configuration-driven.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	opaquegate "github.com/opaquegate/opaquegate"
	"github.com/opaquegate/opaquegate/middleware"
)

const maxBodyBytes = 1 << 20

// Config tunes the HTTP surface.
type Config struct {
	// IdentityField is the JSON request field carrying the identity value.
	IdentityField string
	// IdentityKeyField is the JSON response field carrying the internal
	// identity key.
	IdentityKeyField string
	// AuthenticatedURL is where GET /session/redirect sends callers with a
	// valid session.
	AuthenticatedURL string
	// LoginURL is where GET /session/redirect sends everyone else.
	LoginURL string
}

// Handler serves the protocol endpoints.
type Handler struct {
	engine *opaquegate.Engine
	cfg    Config
}

// NewHandler creates a Handler. Empty field names fall back to the
// engine defaults ("email"/"id").
func NewHandler(engine *opaquegate.Engine, cfg Config) *Handler {
	if cfg.IdentityField == "" {
		cfg.IdentityField = "email"
	}
	if cfg.IdentityKeyField == "" {
		cfg.IdentityKeyField = "id"
	}
	if cfg.AuthenticatedURL == "" {
		cfg.AuthenticatedURL = "/"
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = "/login"
	}
	return &Handler{engine: engine, cfg: cfg}
}

// Router mounts the endpoints on a chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/registration", h.registration)
	r.Post("/registration/finish", h.registrationFinish)
	r.Post("/login", h.login)
	r.Post("/login/finish", h.loginFinish)
	r.Get("/session/redirect", h.sessionRedirect)
	r.Get("/check", h.check)

	r.Group(func(g chi.Router) {
		g.Use(middleware.Guard(h.engine))
		g.Get("/session/verify", h.sessionVerify)
		g.Post("/session/logout", h.sessionLogout)
	})

	return r
}

func (h *Handler) registration(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	identityValue := body.str(h.cfg.IdentityField)
	request, err := body.payload("registration_request")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed registration_request")
		return
	}

	response, err := h.engine.RegisterStart(withClientIP(r), identityValue, request)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client_response": base64.StdEncoding.EncodeToString(response),
	})
}

func (h *Handler) registrationFinish(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	identityValue := body.str(h.cfg.IdentityField)
	record, err := body.payload("registration_record")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed registration_record")
		return
	}

	if err := h.engine.RegisterFinish(withClientIP(r), identityValue, record); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusText": "registration complete",
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	identityValue := body.str(h.cfg.IdentityField)
	request, err := body.payload("client_request")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed client_request")
		return
	}

	challenge, err := h.engine.LoginStart(withClientIP(r), identityValue, request)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client_response": base64.StdEncoding.EncodeToString(challenge.Response),
		"cache_key":       challenge.AttemptKey,
	})
}

func (h *Handler) loginFinish(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	attemptKey := body.str("cache_key")
	if attemptKey == "" {
		writeError(w, http.StatusBadRequest, "cache_key is required")
		return
	}
	finish, err := body.payload("client_finish_request")
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed client_finish_request")
		return
	}

	result, err := h.engine.LoginFinish(withClientIP(r), attemptKey, finish)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusText":        "login successful",
		h.cfg.IdentityField: result.Identity.Value,
		"session_active":    true,
		"token":             result.Token,
	})
}

func (h *Handler) sessionVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":        true,
		h.cfg.IdentityField:    id.Value,
		h.cfg.IdentityKeyField: id.ID,
	})
}

func (h *Handler) sessionLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.engine.Logout(withClientIP(r), token); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"statusText":        "logout successful",
		h.cfg.IdentityField: id.Value,
	})
}

// sessionRedirect transfers a session into the browser context after
// login: a valid token redirects home, anything else to the login page.
func (h *Handler) sessionRedirect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerFromHeader(r)
	}

	if token != "" {
		if _, err := h.engine.VerifySession(r.Context(), token); err == nil {
			http.Redirect(w, r, h.cfg.AuthenticatedURL, http.StatusFound)
			return
		}
	}
	http.Redirect(w, r, h.cfg.LoginURL, http.StatusFound)
}

func (h *Handler) check(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"opaque_supported": true,
		"message":          "OPAQUE is supported on this server.",
	})
}

type requestBody map[string]any

func (b requestBody) str(field string) string {
	value, _ := b[field].(string)
	return value
}

// payload decodes a base64 protocol field. A missing field is not an
// error here; the engine enforces presence so the validation taxonomy
// stays in one place.
func (b requestBody) payload(field string) ([]byte, error) {
	value, ok := b[field].(string)
	if !ok || value == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (requestBody, bool) {
	var body requestBody
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return nil, false
	}
	return body, true
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return opaquegate.WithClientIP(r.Context(), host)
}

func bearerFromHeader(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) <= len(bearer) || value[:len(bearer)] != bearer {
		return "", false
	}
	return value[len(bearer):], true
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor maps the engine's error taxonomy onto the wire contract.
func statusFor(err error) int {
	switch {
	case errors.Is(err, opaquegate.ErrIdentityRequired),
		errors.Is(err, opaquegate.ErrPayloadRequired),
		errors.Is(err, opaquegate.ErrEngineRejected):
		return http.StatusBadRequest
	case errors.Is(err, opaquegate.ErrNoCredential),
		errors.Is(err, opaquegate.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, opaquegate.ErrAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, opaquegate.ErrCredentialExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
