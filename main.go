package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-registry/auth"
	"paper-registry/config"
	"paper-registry/editsession"
	"paper-registry/models"
	"paper-registry/projector"
	"paper-registry/services"
	"paper-registry/storage"
)

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// app bündelt die Abhängigkeiten der HTTP-Handler.
type app struct {
	cfg      *config.Config
	provider *auth.Provider
	roles    auth.RoleResolver
	store    storage.DocumentStore
	executor *services.CommandExecutor
	hub      *services.Hub
	export   *services.ExportService
	policy   editsession.Policy
	memo     *projector.Memo
	log      *zap.Logger
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func tokenAuthMiddleware(provider *auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missing token"})
			return
		}
		id, err := provider.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Set(tokenKey, token)
		c.Next()
	}
}

func adminOnlyMiddleware(roles auth.RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.MustGet(identityKey).(auth.Identity)
		if roles.ResolveRole(id) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Change-Notifications: Redis für mehrere Instanzen, sonst prozesslokal
	var notifier storage.ChangeNotifier
	if cfg.RedisAddr != "" {
		rn := storage.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logging)
		defer rn.Close()
		notifier = rn
		logging.Info("Using Redis change notifier", zap.String("addr", cfg.RedisAddr))
	} else {
		notifier = storage.NewLocalNotifier()
	}

	store := storage.NewGormStore(db, notifier, logging)
	logging.Info("Running database auto-migration...")
	if err := store.Migrate(cfg.PapersCollection); err != nil {
		logging.Fatal("Migration failed", zap.Error(err))
	}
	store.Start(ctx)

	accounts, err := auth.NewGormAccountStore(db)
	if err != nil {
		logging.Fatal("Migration failed", zap.Error(err))
	}

	policy, err := editsession.NewPolicy(cfg.RequiredFieldList())
	if err != nil {
		logging.Fatal("Invalid REQUIRED_FIELDS", zap.Error(err))
	}

	provider := auth.NewProvider(
		accounts,
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		auth.NewStaticRoleLookup(cfg.AdminIdentityList()),
		auth.LogResetSender{Logger: logging},
		auth.ProviderConfig{MinPasswordLength: cfg.MinPasswordLength, ResetTTL: cfg.PasswordResetTTL},
		logging,
	)

	memo := projector.NewMemo(cfg.ProjectionCacheSize, cfg.ProjectionCacheTTL)
	hub := services.NewHub(store, cfg.PapersCollection, memo, logging)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logging.Error("Hub stopped", zap.Error(err))
		}
	}()

	var (
		uploader storage.Uploader
		s3Client *s3.Client
	)
	if cfg.ExportEnabled() {
		s3Client, err = storage.NewS3Client(ctx, cfg.ExportTarget())
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		uploader = storage.NewS3Uploader(s3Client, cfg.ExportTarget())
	}

	a := &app{
		cfg:      cfg,
		provider: provider,
		roles:    auth.ClaimRoleResolver{},
		store:    store,
		executor: services.NewCommandExecutor(store, cfg.PapersCollection, logging),
		hub:      hub,
		export:   services.NewExportService(hub, uploader, logging),
		policy:   policy,
		memo:     memo,
		log:      logging,
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	a.setupRoutes(ctx, router)

	if uploader != nil {
		cronScheduler := cron.New()
		_, err := cronScheduler.AddFunc(cfg.ExportCronSchedule, func() {
			logging.Info("Running scheduled export job...")
			if _, err := a.export.Upload(ctx); err != nil {
				logging.Error("Cron job failed", zap.Error(err))
				return
			}
			if _, err := storage.RotateObjects(ctx, s3Client, cfg.ExportS3Bucket, services.ExportPrefix, cfg.ExportKeep, logging); err != nil {
				logging.Error("Export rotation failed", zap.Error(err))
			}
		})
		if err != nil {
			logging.Fatal("Invalid EXPORT_CRON_SCHEDULE", zap.Error(err))
		}
		cronScheduler.Start()
		defer cronScheduler.Stop()
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func (a *app) setupRoutes(ctx context.Context, router *gin.Engine) {
	setupAuthRoutes(router, a.provider, a.log)

	authed := router.Group("/", tokenAuthMiddleware(a.provider))
	a.setupPaperRoutes(authed)
	authed.GET("/ws", a.workspaceHandler(ctx))

	admin := authed.Group("/admin", adminOnlyMiddleware(a.roles))
	a.setupExportRoutes(admin)
}

func authErrorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnknownAccount):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAuth):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func setupAuthRoutes(router *gin.Engine, provider *auth.Provider, log *zap.Logger) {
	rg := router.Group("/auth")

	rg.POST("/signup", func(c *gin.Context) {
		var req auth.SignUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		session, err := provider.SignUp(c.Request.Context(), req)
		if err != nil {
			status := authErrorStatus(err)
			if status == http.StatusInternalServerError {
				log.Error("Sign-up failed", zap.Error(err))
				c.JSON(status, gin.H{"error": "database error"})
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, session)
	})

	rg.POST("/signin", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		session, err := provider.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			status := authErrorStatus(err)
			if status == http.StatusInternalServerError {
				log.Error("Sign-in failed", zap.Error(err))
				c.JSON(status, gin.H{"error": "database error"})
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, session)
	})

	rg.POST("/password-reset", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := provider.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
			status := authErrorStatus(err)
			if status == http.StatusInternalServerError {
				log.Error("Password reset failed", zap.Error(err))
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "reset link sent"})
	})

	rg.POST("/password-reset/confirm", func(c *gin.Context) {
		var req struct {
			Token           string `json:"token" binding:"required"`
			Password        string `json:"password" binding:"required"`
			ConfirmPassword string `json:"confirm_password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := provider.ResetPassword(c.Request.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
			status := authErrorStatus(err)
			if errors.Is(err, auth.ErrInvalidToken) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	rg.POST("/signout", tokenAuthMiddleware(provider), func(c *gin.Context) {
		provider.SignOut(c.GetString(tokenKey))
		c.Status(http.StatusNoContent)
	})
}

// viewPatchFromQuery liest Filter und Sortierung aus den Query-Parametern.
func viewPatchFromQuery(c *gin.Context) (projector.Patch, error) {
	var p projector.Patch
	str := func(key string) *string {
		if v, ok := c.GetQuery(key); ok {
			return &v
		}
		return nil
	}
	p.SearchText = str("search")
	p.StatusFilter = str("status")
	p.DepartmentFilter = str("department")
	p.IndexingFilter = str("indexing")
	if v := str("sort"); v != nil {
		k := projector.SortKey(*v)
		p.SortKey = &k
	}
	for key, dst := range map[string]**int{"year": &p.PeriodYear, "month": &p.PeriodMonth} {
		v := str(key)
		if v == nil || *v == "" {
			continue
		}
		n, err := strconv.Atoi(*v)
		if err != nil {
			return p, fmt.Errorf("invalid %s %q", key, *v)
		}
		*dst = &n
	}
	if v := str("scope"); v != nil {
		scope := projector.Scope{Kind: projector.ScopeKind(*v)}
		p.Scope = &scope
	}
	if v := str("dedupe"); v != nil {
		b, err := strconv.ParseBool(*v)
		if err != nil {
			return p, fmt.Errorf("invalid dedupe %q", *v)
		}
		p.Dedupe = &b
	}
	return p, nil
}

func (a *app) setupPaperRoutes(rg *gin.RouterGroup) {
	// Momentaufnahme der Ansicht ohne Websocket
	rg.GET("/papers", func(c *gin.Context) {
		id := c.MustGet(identityKey).(auth.Identity)
		session := services.NewIdentitySession(a.roles)
		session.SetIdentity(&id)

		patch, err := viewPatchFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg, err := session.DefaultView().Apply(patch)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg = session.Constrain(cfg)

		records, choices, err := a.hub.View(cfg)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"config":  cfg,
			"rows":    services.NewRows(records),
			"choices": choices,
		})
	})

	rg.GET("/departments", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Departments)
	})
}

func (a *app) setupExportRoutes(rg *gin.RouterGroup) {
	rg.GET("/papers/export", func(c *gin.Context) {
		patch, err := viewPatchFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg, err := projector.AdminView().Apply(patch)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !a.hub.Connected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.ErrDisconnected.Error()})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="papers-%s.csv"`, time.Now().UTC().Format("20060102")))
		n, err := a.export.WriteCSV(c.Writer, cfg)
		if err != nil {
			a.log.Error("Export failed", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		a.log.Info("Export downloaded", zap.Int("records", n))
	})

	rg.POST("/papers/export/upload", func(c *gin.Context) {
		url, err := a.export.Upload(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})
}
