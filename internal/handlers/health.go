package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/ticketvault/internal/config"
)

// Pinger checks a dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler probes MongoDB and the external API.
type HealthHandler struct {
	store          Pinger
	externalAPIURL string
	client         *http.Client
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(store Pinger, externalAPIURL string) *HealthHandler {
	return &HealthHandler{
		store:          store,
		externalAPIURL: externalAPIURL,
		client:         &http.Client{Timeout: config.HealthProbeTimeout},
	}
}

// Check handles GET /health. Dependencies are probed concurrently; any
// failure degrades the service to 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HealthProbeTimeout)
	defer cancel()

	var mu sync.Mutex
	deps := map[string]string{}
	healthy := true
	report := func(name, status string, ok bool) {
		mu.Lock()
		deps[name] = status
		if !ok {
			healthy = false
		}
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.store.Ping(ctx); err != nil {
			report("mongodb", fmt.Sprintf("unhealthy: %v", err), false)
		} else {
			report("mongodb", "healthy", true)
		}
		return nil
	})
	g.Go(func() error {
		if err := h.probeExternal(ctx); err != nil {
			report("external_api", fmt.Sprintf("unhealthy: %v", err), false)
		} else {
			report("external_api", "healthy", true)
		}
		return nil
	})
	g.Wait()

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "dependencies": deps})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "dependencies": deps})
}

func (h *HealthHandler) probeExternal(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.externalAPIURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
