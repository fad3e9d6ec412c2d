package httpapi

import (
	"errors"
	"net/http"
	"time"

	"authgate.org/internal/audit"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/user"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
	Password     string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type userPayload struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	MobileNumber string    `json:"mobile_number"`
	CreatedAt    time.Time `json:"created_at"`
}

type authResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        userPayload `json:"user"`
}

type identityResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type sessionsResponse struct {
	Items []session.Session `json:"items"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := user.RegisterInput{
		Username:     req.Username,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		Password:     req.Password,
	}
	if err := in.Validate(); err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	res, err := a.manager.Register(r.Context(), in, deviceFromRequest(r))
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id":  res.User.ID,
		"username": res.User.Username,
	})
	a.recordEvictions(r, res)

	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.manager.Login(r.Context(), req.Identifier, req.Password, deviceFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			obs.CountLogin("rejected")
		default:
			obs.CountLogin("error")
		}
		a.writeAuthError(w, r, err)
		return
	}
	obs.CountLogin("ok")

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":    res.User.ID,
		"session_id": res.Session.ID,
		"ip":         res.Session.IPAddress,
	})
	a.recordEvictions(r, res)

	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

// handleLogout is deliberately outside the auth middleware: a second logout
// with an already revoked token must still succeed.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	tok, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}

	if err := a.manager.Logout(r.Context(), tok); err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	tok, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		obs.CountVerification("invalid")
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := a.manager.Verify(r.Context(), tok)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			obs.CountVerification("invalid")
		} else {
			obs.CountVerification("error")
		}
		a.writeAuthError(w, r, err)
		return
	}
	obs.CountVerification("ok")

	writeJSON(w, http.StatusOK, identityResponse{
		UserID:   id.UserID,
		Username: id.Username,
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := session.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := a.manager.ListSessions(r.Context(), id.UserID)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Items: items})
}

// writeAuthError maps domain failures to status codes. Storage details stay
// in the log line, never in the response body.
func (a *API) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr *user.ValidationError
		cErr *user.ConflictError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, r, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &cErr):
		writeError(w, r, http.StatusConflict, cErr.Error())
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	default:
		obs.LogError("request failed", err, map[string]any{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) recordEvictions(r *http.Request, res session.LoginResult) {
	for _, jti := range res.Evicted {
		obs.CountEviction()
		_ = audit.LogEvent(r.Context(), "auth.session.evicted", map[string]any{
			"user_id": res.User.ID,
			"jti":     jti,
		})
	}
}

func newAuthResponse(res session.LoginResult) authResponse {
	return authResponse{
		AccessToken: res.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(res.ExpiresAt).Seconds()),
		User: userPayload{
			ID:           res.User.ID,
			Username:     res.User.Username,
			Email:        res.User.Email,
			MobileNumber: res.User.MobileNumber,
			CreatedAt:    res.User.CreatedAt,
		},
	}
}

func deviceFromRequest(r *http.Request) session.Device {
	return session.Device{
		Info:    r.UserAgent(),
		Address: clientIP(r),
	}
}
