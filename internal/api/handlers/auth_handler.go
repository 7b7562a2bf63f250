package handlers

import (
	"net/http"

	"github.com/isdelr/keeper-notes-be/internal/models"
	"github.com/isdelr/keeper-notes-be/internal/services"
	"github.com/rs/zerolog/hlog"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	service services.AccountServiceProvider
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.AccountServiceProvider) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login. User mirrors Account for
// clients that read data.user.
type AuthResponse struct {
	Token   string         `json:"token"`
	Account models.Account `json:"account"`
	User    models.Account `json:"user"`
}

func newAuthResponse(res models.AuthResult) AuthResponse {
	return AuthResponse{Token: res.Token, Account: res.Account, User: res.Account}
}

// Register handles new account registration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	res, err := h.service.Register(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().Str("account_id", res.Account.ID).Msg("Account registered")
	WriteJSON(w, http.StatusCreated, newAuthResponse(res))
}

// Login handles credential verification and token issuance.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	res, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, newAuthResponse(res))
}
