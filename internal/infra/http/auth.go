package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"receipts/internal/domain"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// APIKeyAuthenticator accepts a single shared bearer token.
type APIKeyAuthenticator struct {
	key []byte
}

func NewAPIKeyAuthenticator(key string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{key: []byte(strings.TrimSpace(key))}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if len(a.key) == 0 || subtle.ConstantTimeCompare([]byte(token), a.key) != 1 {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{Subject: "api-key"}, nil
}

// requireAuth is a no-op when no authenticator is configured.
func (s *Server) requireAuth(c *gin.Context) (domain.Principal, bool) {
	if s.authenticator == nil {
		return domain.Principal{}, true
	}
	token := strings.TrimSpace(extractBearerToken(c.GetHeader("Authorization")))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
