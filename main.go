package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"linkreach/config"
	"linkreach/middleware"
	"linkreach/queue"
	"linkreach/routes"
	"linkreach/utils"
	"linkreach/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Warnf("Sentry init failed: %v", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.Redis.Address,
		Password: config.AppConfig.Redis.Password,
		DB:       config.AppConfig.Redis.DB,
	})

	// Shared collaborators
	jobQueue := queue.New(rdb, log)
	mailer := utils.NewMailer(config.AppConfig.Mailer.BaseURL, config.AppConfig.Mailer.APIKey)
	llm := utils.NewAnthropicLLM(config.AppConfig.LLM)

	// Lifecycle engines
	suppressions := utils.NewSuppressionGuard(config.DB, log)
	gate := utils.NewDedupGate(config.DB, log)
	enrollments := utils.NewEnrollmentManager(config.DB, mailer, llm, suppressions, &config.AppConfig, log)
	classifier := utils.NewReplyClassifier(config.DB, llm, suppressions, log)
	reconciler := utils.NewWebhookReconciler(config.DB, rdb, suppressions, log)
	verifier := utils.NewBacklinkVerifier(config.DB, log)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.NewOutreachWorker(config.DB, jobQueue, enrollments, config.AppConfig.OutreachPerMinute, log).Start(ctx)
	go worker.NewReplyWorker(config.DB, jobQueue, classifier, config.AppConfig.IMAP, log).Start(ctx)
	go worker.NewVerificationWorker(config.DB, jobQueue, verifier, log).Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, routes.Engines{
		Gate:         gate,
		Suppressions: suppressions,
		Reconciler:   reconciler,
		Queue:        jobQueue,
	}, log)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"dry_run": config.AppConfig.DryRun,
		})
	})

	// Shut workers down cleanly on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		_ = app.Shutdown()
	}()

	log.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
