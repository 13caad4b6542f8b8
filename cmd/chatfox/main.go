package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ChatFox/app/controllers"
	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/audit"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/database"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
	"github.com/ManuelReschke/ChatFox/internal/pkg/env"
	"github.com/ManuelReschke/ChatFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ChatFox/internal/pkg/line"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ChatFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ChatFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ChatFox/internal/pkg/rehost"
	"github.com/ManuelReschke/ChatFox/internal/pkg/router"
	"github.com/ManuelReschke/ChatFox/internal/pkg/tenant"
	"github.com/ManuelReschke/ChatFox/internal/pkg/webhook"
)

// metricsBackend records and reads the per-tenant daily counters
type metricsBackend interface {
	counter.Recorder
	counter.Reader
}

func main() {
	app, manager := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down...")
		manager.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	if !cache.UsesMemory() {
		cache.SetupCache()
	}

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	// tenant and credential caches share one storage under distinct prefixes
	storage := cache.NewStorage()
	ttl := tenant.CacheTTL()
	resolver := tenant.NewResolver(repos.Tenant, cache.New(storage, "tenant:", ttl))
	secrets := tenant.NewSecrets(repos.Tenant, cache.New(storage, "secret:", ttl))

	lineCfg, err := line.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	lineClient := line.NewClient(lineCfg)

	downstreamCfg, err := downstream.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	writer := downstream.NewClient(downstreamCfg, secrets)

	queueCfg, err := jobqueue.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	var metrics metricsBackend
	if cache.UsesMemory() {
		metrics = counter.NewMemoryRecorder()
	} else {
		metrics = counter.NewRedisRecorder(cache.GetClient())
	}
	auditSink := audit.NewGormSink(repos.Audit)

	tasks := jobqueue.TaskDeps{Content: lineClient, Credentials: secrets}
	if uploader := newUploader(); uploader != nil {
		tasks.Uploader = uploader
	}

	store := jobqueue.NewStore(db, queueCfg.Store)
	worker := jobqueue.NewWorker(jobqueue.Dependencies{
		Store:   store,
		Writer:  writer,
		Tasks:   tasks,
		Audit:   auditSink,
		Metrics: metrics,
	}, queueCfg.Worker)
	manager := jobqueue.NewManager(worker, store, queueCfg.Manager)
	jobqueue.InitializeManager(manager)
	if env.GetEnvBool("WORKER_ENABLED", true) {
		manager.Start()
	}

	gateway := webhook.NewGateway(webhook.Dependencies{
		Tenants: resolver,
		Secrets: secrets,
		Rules:   repos.Rule,
		Queue:   store,
		Replier: lineClient,
		Audit:   auditSink,
	}, webhook.LoadConfig())

	apiLimit, err := ratelimit.LoadConfig("RATE_LIMIT_MAX", 60)
	if err != nil {
		log.Fatalf("invalid rate limit config: %v", err)
	}
	webhookLimit, err := ratelimit.LoadConfig("WEBHOOK_RATE_LIMIT_MAX", 600)
	if err != nil {
		log.Fatalf("invalid webhook rate limit config: %v", err)
	}
	limitStore := ratelimit.NewStoreFromEnv()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "ChatFox",
		BodyLimit: 1 * 1024 * 1024, // LINE deliveries are small JSON documents
	})

	// recovery and logging
	app.Use(recover.New(), requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}), logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// SWAGGER / OPENAPI
	if specPath := findFile("docs/openapi.yml"); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Webhook: controllers.NewWebhookController(gateway),
		AdminQueue: controllers.NewAdminQueueController(controllers.AdminQueueDeps{
			Store:     store,
			Audit:     auditSink,
			AuditRepo: repos.Audit,
			Metrics:   metrics,
			Tenants:   tenant.NewInvalidator(resolver, secrets),
			Trigger:   manager.Trigger,
		}),
		Worker:         controllers.NewWorkerController(manager),
		OperatorKeys:   middleware.OperatorKeysFromEnv(),
		APILimiter:     ratelimit.New(limitStore, "api", apiLimit),
		WebhookLimiter: ratelimit.New(limitStore, "webhook", webhookLimit),
	})

	return app, manager
}

// newUploader returns the S3 re-host client, or nil when re-hosting is off
func newUploader() *rehost.Client {
	cfg, err := rehost.LoadConfig()
	if err != nil {
		log.Printf("Image re-hosting disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		log.Println("Image re-hosting disabled, image events will dead-letter")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := rehost.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("Image re-hosting disabled: %v", err)
		return nil
	}
	return client
}

// findFile looks for name relative to the working directory and the
// project root when started from cmd/chatfox
func findFile(name string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + name); err == nil {
			return base + name
		}
	}
	return ""
}
