package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) wordToCoordinates(c *gin.Context) {
	// a disconnecting client must not abort a load shared with other requests
	ctx := context.WithoutCancel(c.Request.Context())
	if err := s.emb.Warmup(ctx); err != nil {
		s.log.Error("word embeddings unavailable", "err", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "word embeddings or projection model are not available"})
		return
	}

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse JSON input: " + err.Error()})
		return
	}
	field, ok := raw["words"]
	if !ok || len(field) == 0 || field[0] != '[' {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: 'words' array (list of strings) is required"})
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(field, &items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: 'words' array (list of strings) is required"})
		return
	}
	// null would decode into "" silently
	words := make([]string, len(items))
	for i, item := range items {
		if len(item) == 0 || item[0] != '"' || json.Unmarshal(item, &words[i]) != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "all items in 'words' array must be strings"})
			return
		}
	}

	c.JSON(http.StatusOK, s.mapper.Coordinates(ctx, words))
}

func (s *Server) health(c *gin.Context) {
	st := s.emb.Status()
	code := http.StatusOK
	if !st.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

func (s *Server) retrain(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	start := time.Now()
	m, err := s.emb.Model(ctx, true)
	if err != nil {
		s.log.Error("retrain failed", "err", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	st := s.emb.Status()
	c.JSON(http.StatusOK, gin.H{
		"samples":            m.Samples,
		"input_dim":          m.InputDim,
		"explained_variance": m.Variance,
		"trained_at":         m.TrainedAt,
		"generation":         st.Generation,
		"took_ms":            time.Since(start).Milliseconds(),
	})
}
