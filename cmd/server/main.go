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

	"github.com/alimgiray/gscout/internal/handlers"
	"github.com/alimgiray/gscout/internal/middleware"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/alimgiray/gscout/internal/services"
	"github.com/alimgiray/gscout/internal/workers"
	"github.com/alimgiray/gscout/pkg/config"
	"github.com/alimgiray/gscout/pkg/database"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// searchPerPage is how many results each heuristic search query asks for
const searchPerPage = 100

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	logger.Init(cfg.LogLevel)
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	if err := database.Init(cfg.Database.Path); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	recorder := metrics.Default()

	// Repositories
	candidateRepo := repositories.NewCandidateRepository(database.DB)
	artifactRepo := repositories.NewModelArtifactRepository(database.DB)

	// GitHub access
	fetcher := services.NewGitHubFetcher(services.FetcherConfig{
		APIURL:       cfg.GitHub.APIURL,
		Token:        cfg.GitHub.Token,
		RequestDelay: cfg.GitHub.RequestDelay,
		Timeout:      cfg.GitHub.Timeout,
		BackoffBase:  cfg.GitHub.BackoffBase,
		MaxAttempts:  cfg.GitHub.MaxAttempts,
	}, recorder)
	githubAPI, err := services.NewGitHubAPI(fetcher, cfg.GitHub.APIURL, cfg.GitHub.WebURL)
	if err != nil {
		logger.Fatalf("Failed to create GitHub client: %v", err)
	}
	if cfg.GitHub.Token == "" {
		logger.GetLogger().Warn("GITHUB_TOKEN is not set, requests are unauthenticated and follow checks will fail")
	}

	// Scoring and evaluation
	profile := services.ScoringProfileFromConfig(cfg.Scoring)
	scorer := services.NewHeuristicScorer(profile)
	assembler, err := services.NewProfileAssembler(githubAPI, scorer, cfg.Pipeline.MaxRepos, cfg.GitHub.CacheTTL)
	if err != nil {
		logger.Fatalf("Failed to create profile assembler: %v", err)
	}
	pool := services.NewCandidatePool(candidateRepo)
	evaluator := services.NewBatchEvaluator(assembler, services.NewActiveLearningSelector(), services.EvaluatorConfig{
		BatchSize:      cfg.Pipeline.BatchSize,
		Workers:        cfg.Pipeline.Workers,
		MaxBatches:     cfg.Pipeline.MaxBatches,
		MinPublicRepos: cfg.Pipeline.MinPublicRepos,
	}, recorder)
	modelService := services.NewModelService(candidateRepo, artifactRepo, services.FitParamsFromConfig(cfg.Model), recorder)
	harvester := services.NewHarvester(githubAPI, services.HarvestConfig{
		KeyUsers:           cfg.Pipeline.KeyUsers,
		Workers:            cfg.Pipeline.HarvestWorkers,
		PeerPageSize:       cfg.Pipeline.PeerPageSize,
		MinCandidates:      cfg.Pipeline.MinCandidates,
		GlobalListingLimit: cfg.Pipeline.GlobalListingLimit,
		SearchLocations:    profile.NearbyCities,
		SearchKeywords:     profile.BioKeywords,
		SearchLanguage:     cfg.Scoring.SearchLanguage,
		SearchFollowers:    cfg.Scoring.SearchFollowers,
	})
	exportService := services.NewExportService(candidateRepo)

	// Acquisition runs
	buffer := workers.NewResultBuffer()
	acquisition := workers.NewAcquisitionWorker(workers.AcquisitionDeps{
		Source:    harvester,
		Assembler: assembler,
		Follows:   githubAPI,
		Pool:      pool,
		Models:    modelService,
		Evaluator: evaluator,
		Buffer:    buffer,
	}, workers.AcquisitionConfig{
		DefaultLimit:       cfg.Pipeline.TargetUsers,
		Quota:              cfg.Pipeline.Quota,
		UncertaintyBand:    cfg.Pipeline.UncertaintyBand,
		PromisingThreshold: cfg.Pipeline.PromisingThreshold,
		MinPublicRepos:     cfg.Pipeline.MinPublicRepos,
		Workers:            cfg.Pipeline.Workers,
		SearchPerPage:      searchPerPage,
		PoolPageSize:       cfg.Pipeline.BatchSize,
	})
	runManager := workers.NewRunManager(acquisition, newRunLock(cfg))
	defer runManager.StopAll()

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(recorder))

	setupRoutes(router, cfg, recorder, runManager, buffer, modelService, candidateRepo, githubAPI, exportService)

	// Setup server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.GetLogger().Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	logger.GetLogger().Info("Server stopped")
}

// newRunLock returns a Redis lock when REDIS_ADDR is set and reachable, otherwise a LocalRunLock
func newRunLock(cfg *config.Config) workers.RunLock {
	if cfg.Redis.Addr == "" {
		return workers.NewLocalRunLock()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis unreachable, using in-process run lock only")
		client.Close()
		return workers.NewLocalRunLock()
	}
	logger.WithField("addr", cfg.Redis.Addr).Info("Using Redis run lock")
	return workers.NewRedisRunLock(client, cfg.Pipeline.RunLockTTL)
}

func setupRoutes(router *gin.Engine, cfg *config.Config, recorder *metrics.Recorder, runManager *workers.RunManager,
	buffer *workers.ResultBuffer, modelService *services.ModelService, candidateRepo *repositories.CandidateRepository,
	githubAPI *services.GitHubAPI, exportService *services.ExportService) {
	// Initialize handlers
	runHandler := handlers.NewRunHandler(runManager, buffer)
	modelHandler := handlers.NewModelHandler(modelService)
	candidateHandler := handlers.NewCandidateHandler(candidateRepo, githubAPI)
	exportHandler := handlers.NewExportHandler(exportService)
	healthHandler := handlers.NewHealthHandler(database.DB)
	notFoundHandler := handlers.NewNotFoundHandler()

	router.NoRoute(notFoundHandler.NotFound)

	// Health check and metrics
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	api := router.Group("/api")
	api.Use(middleware.APITokenRequired(cfg.Auth.APIToken))
	{
		api.POST("/runs", runHandler.StartRun)
		api.POST("/runs/cancel", runHandler.CancelRun)
		api.GET("/runs/status", runHandler.Status)
		api.GET("/results", runHandler.Results)

		api.POST("/model/retrain", modelHandler.Retrain)
		api.GET("/model", modelHandler.Current)

		api.GET("/candidates", candidateHandler.List)
		api.GET("/candidates/uncertain", candidateHandler.Uncertain)
		api.GET("/candidates/search", candidateHandler.Search)
		api.GET("/candidates/:id", candidateHandler.Get)
		api.POST("/candidates/:id/annotation", candidateHandler.Annotate)
		api.POST("/candidates/:id/follow", candidateHandler.Follow)
		api.POST("/candidates/:id/unfollow", candidateHandler.Unfollow)

		api.GET("/export/:format", exportHandler.Export)
		api.POST("/admin/reset", candidateHandler.Reset)
	}
}
