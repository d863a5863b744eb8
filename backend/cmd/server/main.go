package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"dma/backend/internal/coordinator"
	"dma/backend/internal/graph"
	"dma/backend/internal/ingest"
	"dma/backend/internal/pipeline"
	"dma/backend/pkg/config"
	dmaerrors "dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

func main() {
	// Load configuration first so the logger knows the environment
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting memory engine server...")

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase, cfg.EmbeddingDim, cfg.EncoderVersion)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure graph schema", zap.Error(err))
	}

	engine := pipeline.New(repo, cfg)
	engine.Start()
	defer engine.Stop()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Ingest caller-chunked text
		api.POST("/ingest", func(c *gin.Context) {
			var req struct {
				Chunks []struct {
					Content string `json:"content" binding:"required"`
					Source  string `json:"source"`
					Method  string `json:"method"`
				} `json:"chunks" binding:"required,min=1"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			chunks := make([]ingest.Chunk, len(req.Chunks))
			for i, ch := range req.Chunks {
				method := ch.Method
				if method == "" {
					method = "api"
				}
				chunks[i] = ingest.Chunk{Content: ch.Content, Source: ch.Source, Method: method}
			}

			results, err := engine.Ingest(c.Request.Context(), chunks)
			if err != nil {
				log.Error("Ingestion failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest chunks", "results": results})
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": results})
		})

		// Fetch a web page and ingest its paragraphs
		api.POST("/ingest/url", func(c *gin.Context) {
			var req struct {
				URL string `json:"url" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			title, results, err := engine.IngestURL(c.Request.Context(), req.URL)
			if err != nil {
				log.Error("URL ingestion failed", zap.String("url", req.URL), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest page"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"title": title, "results": results})
		})

		// Grounded chat turn, streamed as SSE events
		api.POST("/chat", func(c *gin.Context) {
			var req struct {
				Message string                    `json:"message" binding:"required"`
				History []coordinator.ChatMessage `json:"history"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")

			events := make(chan coordinator.Event, 16)
			go func() {
				defer close(events)
				_, err := engine.Chat(c.Request.Context(), req.History, req.Message, func(ev coordinator.Event) {
					select {
					case events <- ev:
					case <-c.Request.Context().Done():
					}
				})
				if err != nil {
					log.Error("Chat turn failed", zap.Error(err))
				}
			}()

			c.Stream(func(w io.Writer) bool {
				ev, ok := <-events
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Type), ev)
				return true
			})
		})

		// Explicit usage feedback, addressed by turn id or by a raw
		// retrieved set
		api.POST("/feedback", func(c *gin.Context) {
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

			used := make(map[string]bool, len(req.UsedIDs))
			for _, id := range req.UsedIDs {
				used[id] = true
			}

			if req.TurnID != "" {
				known, err := engine.ApplyTurnFeedback(c.Request.Context(), req.TurnID, used)
				if err != nil {
					log.Error("Feedback failed", zap.String("turn_id", req.TurnID), zap.Error(err))
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply feedback"})
					return
				}
				if !known {
					c.JSON(http.StatusNotFound, gin.H{"error": "Unknown or expired turn"})
					return
				}
				c.JSON(http.StatusOK, gin.H{"status": "applied"})
				return
			}

			if err := engine.ApplyFeedback(c.Request.Context(), req.RetrievedIDs, used); err != nil {
				log.Error("Feedback failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply feedback"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "applied"})
		})

		// Flag a node as irrelevant
		api.POST("/nodes/:id/irrelevant", func(c *gin.Context) {
			if err := engine.MarkIrrelevant(c.Request.Context(), c.Param("id")); err != nil {
				if dmaerrors.IsNotFound(err) {
					c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
					return
				}
				log.Error("Failed to mark node irrelevant", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update node"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "stale"})
		})

		// Inspect a node with its current scores
		api.GET("/nodes/:id", func(c *gin.Context) {
			node, err := engine.GetNode(c.Request.Context(), c.Param("id"))
			if err != nil {
				if dmaerrors.IsNotFound(err) {
					c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
					return
				}
				log.Error("Failed to fetch node", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch node"})
				return
			}
			c.JSON(http.StatusOK, node)
		})

		// Graph health
		api.GET("/stats", func(c *gin.Context) {
			stats, err := engine.Stats(c.Request.Context())
			if err != nil {
				log.Error("Failed to fetch stats", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
				return
			}
			c.JSON(http.StatusOK, stats)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
