package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestReadinessFollowsLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	MountRoutes(r)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	MarkDraining()
	require.Equal(t, http.StatusOK, get("/health"))
	require.Equal(t, http.StatusServiceUnavailable, get("/ready"))

	MarkReady()
	require.Equal(t, http.StatusOK, get("/ready"))

	MarkDraining()
	require.Equal(t, http.StatusServiceUnavailable, get("/ready"))
	require.Equal(t, http.StatusOK, get("/metrics"))
}
