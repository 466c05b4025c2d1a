package main

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/signal-engine/config"
	"github.com/seo-optimizer/signal-engine/coordinator"
	"github.com/seo-optimizer/signal-engine/engine"
	"github.com/seo-optimizer/signal-engine/logging"
	"github.com/seo-optimizer/signal-engine/middleware"
	"github.com/seo-optimizer/signal-engine/quota"
)

func setupGinMode() {
	mode := os.Getenv("GIN_MODE")
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	setupGinMode()

	usage, err := quota.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize quota storage:", err)
	}
	defer usage.Shutdown()

	coord := coordinator.New(cfg, usage, logger)
	eng := engine.New(coord, cfg.Scoring, cfg.Gaps, logger)
	rateLimiter := middleware.NewRateLimiter(2, 5)

	r := gin.New()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(rateLimiter.RateLimit())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.GET("/quota", func(c *gin.Context) {
			c.JSON(http.StatusOK, usage.Snapshot())
		})

		api.POST("/score", func(c *gin.Context) {
			var req engine.ScoreRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid score request: " + err.Error()})
				return
			}
			scores, err := eng.ScoreKeywords(req)
			if err != nil {
				c.JSON(middleware.StatusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"scores": scores})
		})

		api.POST("/gaps", func(c *gin.Context) {
			var req engine.GapsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid gaps request: " + err.Error()})
				return
			}
			gaps, err := eng.SynthesizeGaps(req)
			if err != nil {
				c.JSON(middleware.StatusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"gaps": gaps})
		})

		api.POST("/rank", func(c *gin.Context) {
			var req engine.RankRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rank request: " + err.Error()})
				return
			}
			targets, err := eng.RankTargets(req)
			if err != nil {
				c.JSON(middleware.StatusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"targets": targets})
		})

		api.POST("/analyze", func(c *gin.Context) {
			var req engine.AnalysisRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid analyze request: " + err.Error()})
				return
			}
			result, err := eng.Run(c.Request.Context(), req)
			if err != nil {
				c.JSON(middleware.StatusFor(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, result)
		})
	}

	port := cfg.Server.Port
	logger.Info("server starting", logging.String("port", port))
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
