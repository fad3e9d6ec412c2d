package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authgate.org/internal/obs"
	"authgate.org/internal/session"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth verifies the bearer token and stores the identity in the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		tok, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		id, err := a.manager.Verify(r.Context(), tok)
		if err != nil {
			if errors.Is(err, session.ErrInvalidToken) {
				obs.CountVerification("invalid")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				obs.CountVerification("error")
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}
		obs.CountVerification("ok")

		ctx := session.ContextWithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
