package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/schedule"
	"rollcall/internal/store"
	"rollcall/internal/token"
	"rollcall/migrations"
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

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db.Client); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	}

	resolver := schedule.NewResolver(cfg.SemesterStart)
	entries := schedule.NewRepository(db.Client)
	ledger := attendance.NewRepository(db.Client)
	issuer := token.NewIssuer(cfg.TokenSecret, cfg.TokenTTL)
	verifier := token.NewVerifier(cfg.TokenSecret, cfg.TokenTTL)
	svc := attendance.NewService(issuer, verifier, resolver, entries, ledger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Session issuance shim. User identity lives in an external collaborator;
	// this endpoint trusts its caller and only exists so the route guards have
	// claims to work with.
	r.POST("/v1/auth/token", func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Role   string `json:"role" binding:"required"`
			Group  string `json:"group"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Role != auth.RolePresenter && req.Role != auth.RoleAttendee {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
		session, err := auth.Issue(req.UserID, req.Role, req.Group, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": session.Token,
			"expires_at":   session.ExpiresAt.Unix(),
		})
	})

	presenter := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RolePresenter))

	presenter.POST("/schedule/entries", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var entry schedule.Entry
		if err := c.ShouldBindJSON(&entry); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry.OwnerID = claims.Subject
		id, err := entries.CreateEntry(c.Request.Context(), entry)
		if err != nil {
			if errors.Is(err, schedule.ErrInvalidEntry) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	presenter.GET("/schedule/today", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		date, ok := dateParam(c)
		if !ok {
			return
		}
		all, err := entries.ListByOwner(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		live := resolver.OccurrencesOn(date, all, schedule.Filter{OwnerID: claims.Subject})
		c.JSON(http.StatusOK, gin.H{
			"date":        date.Format(schedule.DateFormat),
			"occurrences": withKeys(live, date),
		})
	})

	presenter.POST("/occurrences/:key/token", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		key := c.Param("key")
		issued, err := svc.IssueToken(c.Request.Context(), claims.Subject, key)
		if err != nil {
			switch {
			case errors.Is(err, schedule.ErrInvalidOccurrenceKey):
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid occurrence key"})
			case errors.Is(err, schedule.ErrEntryNotFound), errors.Is(err, attendance.ErrNotScheduled):
				c.JSON(http.StatusNotFound, gin.H{"error": "occurrence not found"})
			case errors.Is(err, attendance.ErrNotOwner):
				c.JSON(http.StatusForbidden, gin.H{"error": "not the entry owner"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		metrics.TokensIssued.Inc()
		c.JSON(http.StatusOK, gin.H{
			"token":      issued.Token,
			"issued_at":  issued.IssuedAt.Unix(),
			"expires_at": issued.ExpiresAt.Unix(),
			// Canonical payload for the external image renderer.
			"redeem_url": redeemURL(key, issued.Token),
		})
	})

	presenter.GET("/attendance", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		entryID, err := strconv.ParseInt(c.Query("entry_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entry_id required"})
			return
		}
		entry, err := entries.GetEntry(c.Request.Context(), entryID)
		if err != nil {
			if errors.Is(err, schedule.ErrEntryNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if entry.OwnerID != claims.Subject {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the entry owner"})
			return
		}
		var date time.Time
		if v := c.Query("date"); v != "" {
			date, err = time.Parse(schedule.DateFormat, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
				return
			}
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		records, err := ledger.ListRecords(c.Request.Context(), entryID, date, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	attendee := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAttendee))

	attendee.GET("/schedule/group/today", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		date, ok := dateParam(c)
		if !ok {
			return
		}
		all, err := entries.ListByGroup(c.Request.Context(), claims.Group)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		live := resolver.OccurrencesOn(date, all, schedule.Filter{GroupName: claims.Group})
		c.JSON(http.StatusOK, gin.H{
			"date":        date.Format(schedule.DateFormat),
			"occurrences": withKeys(live, date),
		})
	})

	attendee.POST("/redeem", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			OccurrenceKey string `json:"occurrence_key" binding:"required"`
			Token         string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.Redeem(c.Request.Context(), claims.Subject, claims.Group, req.Token, req.OccurrenceKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redemption failed"})
			return
		}

		if result.Outcome == attendance.OutcomeSuccess {
			if err := q.Publish(ctx, queue.Message{Type: queue.TypeRecorded, Body: result.Record.ID}); err != nil {
				log.Printf("queue publish failed: %v", err)
			}
			c.JSON(http.StatusCreated, gin.H{"outcome": result.Outcome, "record": result.Record})
			return
		}
		c.JSON(outcomeStatus(result.Outcome), gin.H{"outcome": result.Outcome})
	})

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

// outcomeStatus maps non-success outcomes to HTTP statuses. The body always
// carries the stable outcome key; the status is advisory.
func outcomeStatus(o attendance.Outcome) int {
	switch o {
	case attendance.OutcomeDuplicate:
		return http.StatusOK
	case attendance.OutcomeBadSignature, attendance.OutcomeExpired:
		return http.StatusUnauthorized
	case attendance.OutcomeMismatch:
		return http.StatusConflict
	case attendance.OutcomeWrongGroup:
		return http.StatusForbidden
	case attendance.OutcomeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// redeemURL builds the canonical string the external renderer encodes into a
// scannable image.
func redeemURL(occurrenceKey, tok string) string {
	v := url.Values{}
	v.Set("occurrence", occurrenceKey)
	v.Set("token", tok)
	return "rollcall://redeem?" + v.Encode()
}

type occurrenceView struct {
	schedule.Entry
	OccurrenceKey string `json:"occurrence_key"`
}

func withKeys(live []schedule.Entry, date time.Time) []occurrenceView {
	views := make([]occurrenceView, 0, len(live))
	for _, e := range live {
		views = append(views, occurrenceView{Entry: e, OccurrenceKey: schedule.OccurrenceKey(e.ID, date)})
	}
	return views
}

func dateParam(c *gin.Context) (time.Time, bool) {
	if v := c.Query("date"); v != "" {
		date, err := time.Parse(schedule.DateFormat, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return time.Time{}, false
		}
		return date, true
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
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
