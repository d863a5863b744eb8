package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
}

func TestChatEndpoint_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/api/chat", func(c *gin.Context) {
		var req struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"content": "response"})
	})

	// Missing message field
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/chat", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackEndpoint_RequiresTurnOrRetrievedSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/api/feedback", func(c *gin.Context) {
		var req struct {
			TurnID       string   `json:"turn_id"`
			RetrievedIDs []string `json:"retrieved_ids"`
			UsedIDs      []string `json:"used_ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.TurnID == "" && len(req.RetrievedIDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "turn_id or retrieved_ids is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	})

	// Neither turn_id nor retrieved_ids
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/feedback", bytes.NewBuffer([]byte(`{"used_ids": ["a"]}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Turn id alone is a valid address
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/feedback", bytes.NewBuffer([]byte(`{"turn_id": "t1", "used_ids": ["a"]}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestEndpoint_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/api/ingest", func(c *gin.Context) {
		var req struct {
			Chunks []struct {
				Content string `json:"content" binding:"required"`
			} `json:"chunks" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": []any{}})
	})

	// Empty chunk list
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ingest", bytes.NewBuffer([]byte(`{"chunks": []}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Chunk without content
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/ingest", bytes.NewBuffer([]byte(`{"chunks": [{"source": "x"}]}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
