package routes

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"pixconv/models"
	"pixconv/utils"
)

type claimsKey struct{}

// verifyJWT verifies the bearer token of the request and returns its claims.
func (s *Server) verifyJWT(r *http.Request) (*models.EdgeClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	return utils.VerifyEdgeToken(token, utils.VerifyConfig{SecretKey: []byte(s.JWTSecret)})
}

// requireAuth rejects requests without a valid token when a secret is set.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.JWTSecret == "" {
			next(w, r)
			return
		}
		claims, err := s.verifyJWT(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

func claimsFrom(ctx context.Context) *models.EdgeClaims {
	c, _ := ctx.Value(claimsKey{}).(*models.EdgeClaims)
	return c
}
