package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"microcred/assessment-engine/internal/config"
	"microcred/assessment-engine/internal/handlers"
	"microcred/assessment-engine/internal/repositories"
	"microcred/assessment-engine/internal/services"
	"microcred/assessment-engine/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(cfg.Server.Env)
	defer log.Sync()
	log.Info("config loaded", zap.String("env", cfg.Server.Env))

	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	// Repositories
	assessmentRepo := repositories.NewAssessmentRepository(db)
	jobRepo := repositories.NewJobRepository(db)
	scoreRepo := repositories.NewScoreRepository(db)
	recommendationRepo := repositories.NewRecommendationRepository(db)

	// Course catalog for the retrieval stage
	catalog, err := services.LoadCatalog(cfg.Catalog.CoursesCSVPath, log)
	if err != nil {
		log.Fatal("failed to load course catalog", zap.Error(err))
	}

	// Gemini backend for essay scoring
	backend, err := services.NewGeminiBackend(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatal("failed to initialize Gemini backend", zap.Error(err))
	}

	essayClient := services.NewEssayScoringClient(
		backend,
		cfg.Gemini.MaxRetries,
		cfg.Gemini.RetryInitialDelay,
		cfg.Gemini.RequestTimeout,
		services.DefaultRubricWeights(),
		log,
	)
	retrievalEngine := services.NewRetrievalEngine(catalog, cfg.Retrieval.TopK, cfg.Retrieval.MinScore, log)
	notifier := services.NewWebhookNotifier(10*time.Second, log)

	runner := services.NewJobPipelineRunner(
		assessmentRepo,
		jobRepo,
		scoreRepo,
		recommendationRepo,
		essayClient,
		retrievalEngine,
		notifier,
		log,
	)

	worker := services.NewPipelineWorkerPool(
		runner,
		assessmentRepo,
		cfg.Worker.Concurrency,
		cfg.Worker.PollInterval,
		log,
	)
	worker.Start()

	submissionService := services.NewSubmissionCoordinator(db, assessmentRepo, jobRepo, scoreRepo, log)
	statusService := services.NewStatusService(assessmentRepo, recommendationRepo, log)

	// Handlers
	submissionHandler := handlers.NewSubmissionHandler(submissionService, worker)
	statusHandler := handlers.NewStatusHandler(statusService)

	app := fiber.New(fiber.Config{
		AppName:      "Skills Assessment Engine API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Owner-ID, Idempotency-Key",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/assessments/:id/submit", submissionHandler.HandleSubmit)
	api.Get("/assessments/:id/status", statusHandler.HandleGetStatus)
	api.Post("/assessments/:id/webhook", statusHandler.HandleRegisterWebhook)
	api.Get("/assessments/:id/result", statusHandler.HandleGetResult)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Skills Assessment Engine API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/assessments/:id/submit",
				"GET /api/v1/assessments/:id/status",
				"POST /api/v1/assessments/:id/webhook",
				"GET /api/v1/assessments/:id/result",
			},
		})
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
