package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const viewerKey contextKey = "viewer"

// ViewerClaims are the claims of a dashboard viewer token.
type ViewerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ViewerMiddleware resolves who is looking at the dashboard and injects it into
// the request context. A Bearer token wins over the role/userId query
// parameters; a token that fails validation is rejected with 401.
func ViewerMiddleware(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer := domain.Viewer{
				Role:   r.URL.Query().Get("role"),
				UserID: r.URL.Query().Get("userId"),
			}

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					logger.Warn("viewer: invalid token format",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
					)
					writeError(w, http.StatusUnauthorized, "invalid authorization header")
					return
				}

				claims, err := parseViewerToken(parts[1], secret)
				if err != nil {
					logger.Warn("viewer: invalid or expired token",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Error(err),
					)
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				viewer = domain.Viewer{Role: claims.Role, UserID: claims.Subject}
			}

			ctx := context.WithValue(r.Context(), viewerKey, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseViewerToken(tokenString string, secret []byte) (*ViewerClaims, error) {
	if len(secret) == 0 {
		return nil, &domain.ErrUnauthorized{Message: "viewer tokens are not enabled"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &ViewerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*ViewerClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

// ViewerFromContext returns the viewer resolved by ViewerMiddleware.
func ViewerFromContext(ctx context.Context) domain.Viewer {
	v, _ := ctx.Value(viewerKey).(domain.Viewer)
	return v
}
