package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedResolver(t *testing.T) {
	r := NewTrustedResolver()

	id, err := r.Resolve(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)

	id, err = r.Resolve(context.Background(), "ignored", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)

	_, err = r.Resolve(context.Background(), "has space", "")
	require.Error(t, err)
}

func TestProdModeRejectsPlainTokens(t *testing.T) {
	cfg := config.DefaultConfig()
	r := NewTokenResolver(context.Background(), &cfg)

	_, err := r.Resolve(context.Background(), "alice", "")
	require.ErrorIs(t, err, errUntrusted)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(NewTrustedResolver()), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer", header: "Bearer alice", status: http.StatusOK, body: "alice"},
		{name: "query token", query: "?access_token=carol", status: http.StatusOK, body: "carol"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}
