package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/ticketvault/pkg/circuit"
)

func newCircuitRouter(breakers *circuit.Registry) *gin.Engine {
	h := NewCircuitHandler(breakers)
	router := gin.New()
	router.GET("/circuit/:name/status", h.Status)
	router.POST("/circuit/:name/reset", h.Reset)
	return router
}

func TestCircuitStatus(t *testing.T) {
	breakers := circuit.NewRegistry(1, 30*time.Second)
	breakers.Get("notify").Execute(func() error { return assert.AnError })
	router := newCircuitRouter(breakers)

	w := performRequest(router, http.MethodGet, "/circuit/notify/status")
	require.Equal(t, http.StatusOK, w.Code)

	var st circuit.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "notify", st.Name)
	assert.Equal(t, "open", st.State)
	assert.NotNil(t, st.OpenedAt)
}

func TestCircuitReset(t *testing.T) {
	breakers := circuit.NewRegistry(1, 30*time.Second)
	breakers.Get("notify").Execute(func() error { return assert.AnError })
	router := newCircuitRouter(breakers)

	w := performRequest(router, http.MethodPost, "/circuit/notify/reset")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reset")

	assert.Equal(t, circuit.StateClosed, breakers.Get("notify").State())
}
