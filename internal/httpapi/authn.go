package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hrdesk.org/internal/auth"
)

const (
	// AccessTokenCookie is the fixed cookie name the dashboard frontend
	// relies on.
	AccessTokenCookie = "access_token"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withSession is the session gate. Routes registered with the public
// capability (and CORS preflights) pass through untouched; everything else
// must present a verifiable token, preferring the HTTP-only cookie over the
// Authorization header. On success the decoded claims are attached to the
// request context for downstream authorization checks.
//
// There is no revocation list: logout clears the cookie client-side and
// tokens stay valid until natural expiry.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if a.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "no token")
			return
		}
		claims, err := a.auth.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken prefers the access_token cookie over a bearer header.
func extractToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, nil
		}
	}
	return extractBearerToken(r.Header.Get(authHeader))
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
