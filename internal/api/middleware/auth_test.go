package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightlogic3/popflow/internal/api/shared"
	"github.com/lightlogic3/popflow/internal/service/auth"
)

type stubJWTService struct {
	claims *auth.Claims
	err    error
}

func (s *stubJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return "stub-token", nil
}

func (s *stubJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func runAuth(t *testing.T, svc auth.JWTService, header string) (*httptest.ResponseRecorder, uuid.UUID, bool) {
	t.Helper()

	var (
		gotID uuid.UUID
		gotOK bool
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()

	NewAuthMiddleware(svc).Authenticate(next).ServeHTTP(rec, req)
	return rec, gotID, gotOK
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		rec, _, ok := runAuth(t, &stubJWTService{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, ok)
	})

	t.Run("malformed header", func(t *testing.T) {
		t.Parallel()
		rec, _, ok := runAuth(t, &stubJWTService{}, "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, ok)
	})

	t.Run("invalid token", func(t *testing.T) {
		t.Parallel()
		rec, _, _ := runAuth(t, &stubJWTService{err: auth.ErrInvalidToken}, "Bearer bad")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body shared.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Invalid token", body.Error)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		rec, _, _ := runAuth(t, &stubJWTService{err: auth.ErrExpiredToken}, "Bearer old")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body shared.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Token expired", body.Error)
	})

	t.Run("unexpected validation failure", func(t *testing.T) {
		t.Parallel()
		rec, _, _ := runAuth(t, &stubJWTService{err: errors.New("key store down")}, "Bearer x")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("valid token reaches the handler with the user id", func(t *testing.T) {
		t.Parallel()
		userID := uuid.New()
		svc := &stubJWTService{claims: &auth.Claims{UserID: userID}}

		rec, gotID, ok := runAuth(t, svc, "Bearer good")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, ok)
		assert.Equal(t, userID, gotID)
	})
}
