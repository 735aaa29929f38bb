package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/review-relay/internal/monitoring"
	"github.com/gin-gonic/gin"
)

const componentCheckTimeout = 5 * time.Second

// handleHealth godoc
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type component struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func healthy(details interface{}) component {
	return component{Status: "healthy", Details: details}
}

func unhealthy(err error) component {
	return component{Status: "unhealthy", Error: err.Error()}
}

var disabled = component{Status: "disabled"}

// handleComponents godoc
// @Summary Collaborator health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/components [get]
func (s *Server) handleComponents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), componentCheckTimeout)
	defer cancel()

	components := map[string]component{}

	if s.prompts != nil {
		templates := s.prompts.Available()
		missing := 0
		for _, t := range templates {
			if !t.Exists {
				missing++
			}
		}
		comp := healthy(templates)
		if missing > 0 {
			comp.Status = "degraded"
		}
		components["prompts"] = comp
	} else {
		components["prompts"] = disabled
	}

	if s.github != nil {
		if limit, err := s.github.CheckHealth(ctx); err != nil {
			components["github"] = unhealthy(err)
		} else {
			components["github"] = healthy(limit)
		}
	} else {
		components["github"] = disabled
	}

	if s.analyzer != nil {
		stats := s.analyzer.Stats()
		comp := healthy(stats)
		if stats["circuit_breaker"] == "open" {
			comp.Status = "degraded"
		}
		components["analyzer"] = comp
	} else {
		components["analyzer"] = disabled
	}

	if s.redis.IsEnabled() {
		if err := s.redis.HealthCheck(ctx); err != nil {
			components["redis"] = unhealthy(err)
		} else {
			components["redis"] = healthy(nil)
		}
	} else {
		components["redis"] = disabled
	}

	if s.journal != nil {
		if err := s.journal.Ping(ctx); err != nil {
			components["journal"] = unhealthy(err)
		} else {
			components["journal"] = healthy(nil)
		}
	} else {
		components["journal"] = disabled
	}

	if s.runner != nil {
		components["runner"] = healthy(gin.H{"in_flight": s.runner.InFlight()})
	}

	status, code := "healthy", http.StatusOK
	for _, comp := range components {
		if comp.Status == "unhealthy" || comp.Status == "degraded" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

type statsResponse struct {
	monitoring.StatsSnapshot
	Handlers     []string               `json:"handlers"`
	Repositories []string               `json:"repositories"`
	GitHubAPI    map[string]interface{} `json:"github_api,omitempty"`
	Analyzer     map[string]interface{} `json:"analyzer,omitempty"`
}

// handleStats godoc
// @Summary Dispatch statistics
// @Tags stats
// @Produce json
// @Success 200 {object} statsResponse
// @Router /stats [get]
func (s *Server) handleStats(c *gin.Context) {
	resp := statsResponse{
		StatsSnapshot: s.stats.Snapshot(),
		Handlers:      s.router.EventTypes(),
		Repositories:  s.policy.Names(),
	}

	if s.github != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), componentCheckTimeout)
		defer cancel()
		resp.GitHubAPI = s.github.Stats(ctx)
	}
	if s.analyzer != nil {
		resp.Analyzer = s.analyzer.Stats()
	}

	c.JSON(http.StatusOK, resp)
}

// handleDeliveries godoc
// @Summary Recent journaled deliveries
// @Tags stats
// @Produce json
// @Param limit query int false "Maximum entries to return"
// @Success 200 {object} map[string]interface{}
// @Router /deliveries [get]
func (s *Server) handleDeliveries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	deliveries, err := s.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read journal", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}
