package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/blobstore"
	"qrattend/internal/config"
	"qrattend/internal/directory"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
	"qrattend/internal/qrtoken"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func newBlobStore(cfg config.App) (blobstore.Store, error) {
	switch cfg.StorageBackend {
	case "memory":
		return blobstore.NewMemory(), nil
	case "redis":
		return blobstore.NewRedis(cfg.RedisAddr, "qrattend:"), nil
	case "postgres":
		return blobstore.NewPostgres(cfg.DatabaseURL)
	default:
		return blobstore.NewFile(cfg.DataDir)
	}
}

func runHTTP(cfg config.App) error {
	bs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}
	log.Printf("storage backend: %s", cfg.StorageBackend)

	codec := qrtoken.NewCodec(cfg.QRSecret)
	dir := directory.NewService(bs, codec)
	store := attendance.NewStore(bs)
	scanner := attendance.NewScanner(codec, dir, store)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": cfg.StorageBackend})
	})

	r.POST("/v1/stations/register", func(c *gin.Context) {
		var req struct {
			StationID string `json:"station_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, exp, err := auth.Issue(req.StationID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": token,
			"expires_at":   exp.Unix(),
		})
	})

	v1 := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	v1.POST("/scans", func(c *gin.Context) {
		var req struct {
			Text     string `json:"text" binding:"required"`
			Mode     string `json:"mode"`
			Location string `json:"location"`
			Notes    string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind := attendance.Kind(req.Mode)
		if req.Mode == "" {
			kind = attendance.CheckIn
		}
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be check-in or check-out"})
			return
		}

		rec, err := scanner.Scan(c.Request.Context(), req.Text, kind, req.Location, req.Notes)
		if err != nil {
			outcome, status := classifyScanError(err)
			metrics.ScansTotal.WithLabelValues(outcome).Inc()
			if status == http.StatusInternalServerError {
				log.Printf("scan failed: %v", err)
				c.JSON(status, gin.H{"error": "storage unavailable"})
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		metrics.ScansTotal.WithLabelValues("recorded").Inc()
		metrics.RecordsAppended.WithLabelValues(string(rec.Kind)).Inc()
		c.JSON(http.StatusCreated, rec)
	})

	v1.GET("/records", func(c *gin.Context) {
		var (
			records []attendance.Record
			err     error
		)
		if userID := c.Query("user_id"); userID != "" {
			if c.Query("today") == "true" {
				records, err = store.ForUserToday(c.Request.Context(), userID)
			} else {
				records, err = store.ForUser(c.Request.Context(), userID)
			}
		} else {
			records, err = store.All(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	v1.GET("/records/export", func(c *gin.Context) {
		csv, err := store.ExportRecordsCSV(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		serveCSV(c, "attendance_records.csv", csv)
	})

	v1.DELETE("/records", func(c *gin.Context) {
		if err := store.ClearAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.GET("/sessions", func(c *gin.Context) {
		if userID, date := c.Query("user_id"), c.Query("date"); userID != "" && date != "" {
			sess, err := store.SessionFor(c.Request.Context(), userID, date)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if sess == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			c.JSON(http.StatusOK, sess)
			return
		}
		sessions, err := store.Sessions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	v1.GET("/sessions/export", func(c *gin.Context) {
		csv, err := store.ExportSessionsCSV(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		serveCSV(c, "attendance_sessions.csv", csv)
	})

	v1.POST("/sessions/rebuild", func(c *gin.Context) {
		if err := store.Rebuild(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	v1.GET("/stats", func(c *gin.Context) {
		stats, err := store.ComputeStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	registerUserRoutes(v1, dir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// classifyScanError maps scan failures to a metric outcome and HTTP status.
func classifyScanError(err error) (string, int) {
	var conflict *attendance.ConflictError
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		return "invalid_token", http.StatusBadRequest
	case errors.Is(err, attendance.ErrUserNotFound):
		return "user_not_found", http.StatusNotFound
	case errors.Is(err, attendance.ErrInactiveUser):
		return "inactive_user", http.StatusForbidden
	case errors.As(err, &conflict):
		return "conflict", http.StatusConflict
	default:
		return "storage_error", http.StatusInternalServerError
	}
}

func serveCSV(c *gin.Context, filename, content string) {
	if content == "" {
		c.JSON(http.StatusNoContent, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	// BOM so spreadsheet apps pick up UTF-8.
	c.Data(http.StatusOK, "text/csv; charset=utf-8", append([]byte("\uFEFF"), content...))
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
