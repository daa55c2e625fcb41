package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"forex-observer/internal/stream"
)

// handleSnapshot returns the most recent snapshot. The in-process hub is
// authoritative; the mirror covers restarts where nothing has been observed
// yet in this process.
func (s *Server) handleSnapshot(c *gin.Context) {
	if snap, ok := s.hub.Latest(); ok {
		c.JSON(http.StatusOK, snap)
		return
	}

	if s.mirror != nil {
		snap, err := s.mirror.Latest(c.Request.Context())
		if err == nil {
			c.JSON(http.StatusOK, snap)
			return
		}
		if !errors.Is(err, stream.ErrNoSnapshot) {
			s.logger.Error().Err(err).Msg("mirror latest read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot mirror read failed"})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot observed yet"})
}

func (s *Server) handleRecentSnapshots(c *gin.Context) {
	if s.mirror == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot mirror not configured"})
		return
	}

	count := 10
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
			return
		}
		count = n
	}

	snaps, err := s.mirror.Recent(c.Request.Context(), count)
	if err != nil {
		s.logger.Error().Err(err).Msg("mirror recent read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot mirror read failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(snaps), "items": snaps})
}
