package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/experiment"
	"github.com/harunnryd/splitkit/internal/frame"

	"github.com/gin-gonic/gin"
)

// InteractionPointerMove is the interaction type recorded for coalesced
// pointer updates.
const InteractionPointerMove = "pointer_move"

// handleVariant answers with the visitor's variant, or a null variant when
// the experiment is unknown. It never fails.
func (s *Server) handleVariant(c *gin.Context) {
	experimentID := c.Param("experiment")
	scope := s.scope(c)

	v := scope.Engine.GetVariant(experimentID, c.Query("user"))
	if v == nil {
		c.JSON(http.StatusOK, gin.H{"experimentId": experimentID, "variant": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"experimentId": experimentID, "variant": v})
}

type conversionRequest struct {
	ExperimentID   string   `json:"experimentId" binding:"required"`
	ConversionType string   `json:"conversionType"`
	Value          *float64 `json:"value"`
}

func (s *Server) handleConversion(c *gin.Context) {
	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	value := experiment.DefaultConversionValue
	if req.Value != nil {
		value = *req.Value
	}

	tracked := s.scope(c).Conversions.TrackConversion(req.ExperimentID, req.ConversionType, value)
	c.JSON(http.StatusAccepted, gin.H{"tracked": tracked})
}

type eventRequest struct {
	Name       string         `json:"name" binding:"required"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	evt := s.scope(c).Analytics.Track(req.Name, req.Properties)
	c.JSON(http.StatusAccepted, evt)
}

type interactionRequest struct {
	Type    string         `json:"type" binding:"required"`
	Details map[string]any `json:"details"`
}

func (s *Server) handleInteraction(c *gin.Context) {
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	evt := s.scope(c).Analytics.TrackInteraction(req.Type, req.Details)
	c.JSON(http.StatusAccepted, evt)
}

func (s *Server) handlePointer(c *gin.Context) {
	var p frame.Point
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	accepted := s.coalescer(s.scope(c)).Submit(p)
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func trackPointer(scope *core.Scope, p frame.Point) {
	nx, ny := frame.Normalize(p.X, p.Y, p.Width, p.Height)
	scope.Analytics.TrackInteraction(InteractionPointerMove, map[string]any{
		"x": nx,
		"y": ny,
	})
}

type markRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleMark(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	s.scope(c).Recorder.Mark(req.Name)
	c.JSON(http.StatusAccepted, gin.H{"mark": req.Name})
}

type measureRequest struct {
	Name      string `json:"name" binding:"required"`
	StartMark string `json:"startMark" binding:"required"`
	EndMark   string `json:"endMark"`
}

func (s *Server) handleMeasure(c *gin.Context) {
	var req measureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	m := s.scope(c).Recorder.Measure(req.Name, req.StartMark, req.EndMark)
	if m == nil {
		c.JSON(http.StatusOK, gin.H{"measure": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"measure": m})
}

func (s *Server) handleLoading(c *gin.Context) {
	c.JSON(http.StatusOK, s.gate.State())
}

func (s *Server) handleLoadingReady(c *gin.Context) {
	if s.gate.Ready() {
		slog.Debug("Loading gate opened by ready signal", "client", clientID(c))
	}
	c.JSON(http.StatusOK, s.gate.State())
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"scopes": len(s.core.ScopeIDs()),
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.health != nil {
		resp["components"] = s.health()
	}
	c.JSON(http.StatusOK, resp)
}
