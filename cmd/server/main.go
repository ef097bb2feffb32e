// Package main runs the CRM HTTP server with WebSocket push and graceful
// shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kronos-crm/backend/config"
	"github.com/kronos-crm/backend/internal/action"
	"github.com/kronos-crm/backend/internal/agents"
	"github.com/kronos-crm/backend/internal/auth"
	"github.com/kronos-crm/backend/internal/authz"
	"github.com/kronos-crm/backend/internal/billing"
	"github.com/kronos-crm/backend/internal/companies"
	"github.com/kronos-crm/backend/internal/contacts"
	"github.com/kronos-crm/backend/internal/deals"
	"github.com/kronos-crm/backend/internal/inbox"
	"github.com/kronos-crm/backend/internal/middleware"
	"github.com/kronos-crm/backend/internal/organizations"
	"github.com/kronos-crm/backend/internal/products"
	"github.com/kronos-crm/backend/internal/quota"
	"github.com/kronos-crm/backend/internal/realtime"
	"github.com/kronos-crm/backend/internal/tasks"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/database"
	"github.com/kronos-crm/backend/pkg/queue"
	"github.com/kronos-crm/backend/pkg/redis"
	"github.com/kronos-crm/backend/pkg/response"
	"github.com/kronos-crm/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			KnowledgeBucket:      cfg.AWS.KnowledgeBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	tagCache := cache.New(rdb.Client, cache.DefaultTTL, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Organizations and the action pipeline built on its membership resolver
	orgRepo := organizations.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	quotaChecker := quota.NewChecker(billingRepo, billingRepo)
	pipeline := action.NewPipeline(orgRepo, quotaChecker, tagCache, logger)
	orgHandler := organizations.NewHandler(orgRepo, pipeline, tagCache, jobQueue, logger)

	// Billing
	billingHandler := billing.NewHandler(billingRepo, quotaChecker, tagCache, cfg.Billing.WebhookSecret, logger)

	// CRM
	contactHandler := contacts.NewHandler(contacts.NewRepository(pool), pipeline, tagCache)
	companyHandler := companies.NewHandler(companies.NewRepository(pool), pipeline, tagCache)
	dealHandler := deals.NewHandler(deals.NewRepository(pool), pipeline, tagCache)
	productHandler := products.NewHandler(products.NewRepository(pool), pipeline, tagCache)
	taskHandler := tasks.NewHandler(tasks.NewRepository(pool), pipeline, tagCache)

	// Agents and inbox
	agentHandler := agents.NewHandler(agents.NewRepository(pool), pipeline, tagCache, s3Client, logger)
	inboxRepo := inbox.NewRepository(pool)
	inboxHandler := inbox.NewHandler(inboxRepo, pipeline, tagCache, jobQueue, hub, logger)

	wsAuthorize := func(ctx context.Context, token, slug string) (uuid.UUID, uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		ac, err := pipeline.Authorize(ctx, claims.UserID, slug, authz.ResourceInbox)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		return ac.UserID, ac.OrgID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/orgs", orgHandler.Create)
		api.GET("/orgs", orgHandler.ListMine)
		api.POST("/invites/accept", orgHandler.AcceptInvite)

		// Org-scoped routes. Mutations resolve membership inside the
		// action pipeline; reads resolve it in RequireOrg.
		org := api.Group("/orgs/:slug")
		{
			org.GET("", middleware.RequireOrg(pipeline, authz.ResourceOrganization), orgHandler.Get)
			org.PATCH("", orgHandler.Update)
			org.DELETE("", orgHandler.Delete)

			org.GET("/members", middleware.RequireOrg(pipeline, authz.ResourceMember), orgHandler.ListMembers)
			org.POST("/invites", orgHandler.Invite)
			org.DELETE("/members/:memberID", orgHandler.RemoveMember)

			org.GET("/subscription", middleware.RequireOrg(pipeline, authz.ResourceOrganization), billingHandler.GetSubscription)
			org.GET("/usage", middleware.RequireOrg(pipeline, authz.ResourceOrganization), billingHandler.GetUsage)

			org.GET("/contacts", middleware.RequireOrg(pipeline, authz.ResourceContact), contactHandler.List)
			org.GET("/contacts/:id", middleware.RequireOrg(pipeline, authz.ResourceContact), contactHandler.Get)
			org.POST("/contacts", contactHandler.Create)
			org.PUT("/contacts/:id", contactHandler.Update)
			org.DELETE("/contacts/:id", contactHandler.Delete)

			org.GET("/companies", middleware.RequireOrg(pipeline, authz.ResourceCompany), companyHandler.List)
			org.GET("/companies/:id", middleware.RequireOrg(pipeline, authz.ResourceCompany), companyHandler.Get)
			org.POST("/companies", companyHandler.Create)
			org.PUT("/companies/:id", companyHandler.Update)
			org.DELETE("/companies/:id", companyHandler.Delete)

			org.GET("/pipeline", middleware.RequireOrg(pipeline, authz.ResourceDeal), dealHandler.Pipeline)
			org.GET("/deals", middleware.RequireOrg(pipeline, authz.ResourceDeal), dealHandler.List)
			org.GET("/deals/:id", middleware.RequireOrg(pipeline, authz.ResourceDeal), dealHandler.Get)
			org.POST("/deals", dealHandler.Create)
			org.PUT("/deals/:id", dealHandler.Update)
			org.POST("/deals/:id/move", dealHandler.Move)
			org.POST("/deals/:id/lost", dealHandler.MarkLost)
			org.DELETE("/deals/:id", dealHandler.Delete)
			org.GET("/deal-lost-reasons", middleware.RequireOrg(pipeline, authz.ResourceDeal), dealHandler.ListLostReasons)
			org.POST("/deal-lost-reasons", dealHandler.CreateLostReason)

			org.GET("/products", middleware.RequireOrg(pipeline, authz.ResourceProduct), productHandler.List)
			org.GET("/products/:id", middleware.RequireOrg(pipeline, authz.ResourceProduct), productHandler.Get)
			org.POST("/products", productHandler.Create)
			org.PUT("/products/:id", productHandler.Update)
			org.DELETE("/products/:id", productHandler.Delete)

			org.GET("/tasks", middleware.RequireOrg(pipeline, authz.ResourceTask), taskHandler.List)
			org.GET("/tasks/:id", middleware.RequireOrg(pipeline, authz.ResourceTask), taskHandler.Get)
			org.POST("/tasks", taskHandler.Create)
			org.PUT("/tasks/:id", taskHandler.Update)
			org.DELETE("/tasks/:id", taskHandler.Delete)

			org.GET("/agents", middleware.RequireOrg(pipeline, authz.ResourceAgent), agentHandler.List)
			org.GET("/agents/:id", middleware.RequireOrg(pipeline, authz.ResourceAgent), agentHandler.Get)
			org.GET("/agents/:id/connection", middleware.RequireOrg(pipeline, authz.ResourceAgent), agentHandler.GetConnection)
			org.POST("/agents", agentHandler.Create)
			org.PUT("/agents/:id", agentHandler.Update)
			org.DELETE("/agents/:id", agentHandler.Delete)
			org.PUT("/agents/:id/steps", agentHandler.ReplaceSteps)
			org.POST("/agents/:id/knowledge", agentHandler.UploadKnowledge)
			org.GET("/agents/:id/knowledge/:fileID", middleware.RequireOrg(pipeline, authz.ResourceAgent), agentHandler.DownloadKnowledge)
			org.DELETE("/agents/:id/knowledge/:fileID", agentHandler.DeleteKnowledge)

			org.GET("/inboxes", middleware.RequireOrg(pipeline, authz.ResourceInbox), inboxHandler.List)
			org.GET("/inboxes/:id", middleware.RequireOrg(pipeline, authz.ResourceInbox), inboxHandler.Get)
			org.POST("/inboxes", inboxHandler.Create)
			org.PUT("/inboxes/:id", inboxHandler.Update)
			org.DELETE("/inboxes/:id", inboxHandler.Delete)
			org.GET("/inboxes/:id/conversations", middleware.RequireOrg(pipeline, authz.ResourceInbox), inboxHandler.ListConversations)
			org.GET("/conversations/:id/messages", middleware.RequireOrg(pipeline, authz.ResourceInbox), inboxHandler.ListMessages)
			org.POST("/conversations/:id/messages", inboxHandler.SendMessage)
		}
	}

	// Webhooks (no JWT; HMAC signatures checked in the handlers)
	router.POST("/webhooks/billing", billingHandler.Webhook)
	router.POST("/webhooks/whatsapp", inboxHandler.Webhook(cfg.WhatsApp.WebhookSecret))

	// WebSocket (token in query; no Authorization header on upgrades)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsAuthorize))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
