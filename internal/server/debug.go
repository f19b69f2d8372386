package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/harunnryd/splitkit/internal/core"
	"github.com/harunnryd/splitkit/internal/dashboard"

	"github.com/gin-gonic/gin"
)

// Snapshot collects what the dashboard shows for one visitor scope.
func (s *Server) Snapshot(scope *core.Scope) dashboard.Snapshot {
	return dashboard.Snapshot{
		TakenAt:     time.Now(),
		Session:     scope.Analytics.SessionData(),
		Metrics:     scope.Recorder.Metrics(),
		Experiments: s.core.Registry.Experiments(),
		Assignments: scope.Engine.Assignments(),
		Pointer:     s.pointerStats(scope.ID),
		Loading:     s.gate.State(),
	}
}

func (s *Server) handleDebugSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.scope(c).Analytics.SessionData())
}

func (s *Server) handleDebugMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.scope(c).Recorder.Metrics())
}

func (s *Server) handleDebugExperiments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"experiments": s.core.Registry.Experiments(),
		"assignments": s.scope(c).Engine.Assignments(),
	})
}

func (s *Server) handleDebugSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.Snapshot(s.scope(c)))
}

func (s *Server) handleExportSession(c *gin.Context) {
	scope := s.scope(c)
	var buf bytes.Buffer
	if err := scope.Analytics.Export(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	attachment(c, fmt.Sprintf("session-%s.json", scope.Analytics.Session().SessionID), buf.Bytes())
}

func (s *Server) handleExportMetrics(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.scope(c).Recorder.Export(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	attachment(c, fmt.Sprintf("metrics-%d.json", time.Now().UnixMilli()), buf.Bytes())
}

// handleClear wipes the caller's persisted assignments, or the whole store
// with ?all=true. The client is expected to reload afterwards.
func (s *Server) handleClear(c *gin.Context) {
	if c.Query("all") == "true" {
		if err := s.core.ClearAll(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": "all", "reload": true})
		return
	}

	id := clientID(c)
	if err := s.core.ClearScope(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": id, "reload": true})
}

func attachment(c *gin.Context, filename string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/json", body)
}
