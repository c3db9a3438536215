package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
)

type tokenRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	Token string         `json:"token"`
	User  userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Locale  string `json:"locale"`
	Credits int    `json:"credits"`
}

// AuthToken exchanges an email for a signed API token. First sight of an
// email creates the account and grants the signup bonus.
func (a *App) AuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		a.error(w, http.StatusBadRequest, "bad_request", "valid email required")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())
	user, created, err := a.Users.UpsertByEmail(r.Context(), email, locale)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if created {
		if _, err := a.Ledger.Credit(r.Context(), user.ID, domain.SignupBonusCredits, "signup-bonus"); err != nil {
			a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("granting signup bonus failed")
		} else {
			a.Logger.Info().Str("user_id", user.ID).Msg("account created with signup bonus")
		}
	}
	balance, err := a.Ledger.Balance(r.Context(), user.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	token, err := middleware.SignJWT(a.Config.JWTSecret, middleware.TokenClaims{
		Sub:      user.ID,
		Locale:   user.Locale,
		Exp:      time.Now().Add(7 * 24 * time.Hour).Unix(),
		Issuer:   middleware.TokenIssuer,
		Audience: middleware.TokenAudience,
	})
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, tokenResponse{
		Token: token,
		User:  userProfileDTO{ID: user.ID, Email: user.Email, Locale: user.Locale, Credits: balance},
	})
}

// Me returns the authenticated user's profile and balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, userProfileDTO{ID: user.ID, Email: user.Email, Locale: user.Locale, Credits: balance})
}
