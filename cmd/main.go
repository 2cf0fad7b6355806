package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/videorag-backend/internal/artifact"
	"github.com/yungbote/videorag-backend/internal/clients"
	"github.com/yungbote/videorag-backend/internal/config"
	"github.com/yungbote/videorag-backend/internal/db"
	"github.com/yungbote/videorag-backend/internal/flow"
	"github.com/yungbote/videorag-backend/internal/handlers"
	"github.com/yungbote/videorag-backend/internal/management"
	"github.com/yungbote/videorag-backend/internal/observability"
	"github.com/yungbote/videorag-backend/internal/pipeline"
	"github.com/yungbote/videorag-backend/internal/pipeline/tasks"
	"github.com/yungbote/videorag-backend/internal/platform/envutil"
	"github.com/yungbote/videorag-backend/internal/platform/logger"
	"github.com/yungbote/videorag-backend/internal/platform/media"
	"github.com/yungbote/videorag-backend/internal/platform/milvus"
	"github.com/yungbote/videorag-backend/internal/platform/objectstore"
	"github.com/yungbote/videorag-backend/internal/platform/registry"
	"github.com/yungbote/videorag-backend/internal/server"
	"github.com/yungbote/videorag-backend/internal/tracker"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "videorag-backend",
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			log.Warn("Otel shutdown failed", "error", err)
		}
	}()

	// Config
	log.Info("Loading pipeline configuration...")
	cfg, err := config.Load(envutil.Str("CONFIG_PATH", ""))
	if err != nil {
		log.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	artifactTracker := tracker.NewTracker(log, postgresService.DB())

	// Object store
	blobs, err := objectstore.NewMinioStore(log)
	if err != nil {
		log.Error("Minio init failed", "error", err)
		os.Exit(1)
	}
	visitor := artifact.NewVisitor(log, blobs, artifactTracker)

	// Milvus
	milvusClient, err := milvus.NewClient(log, milvus.ConfigFromEnv())
	if err != nil {
		log.Error("Milvus init failed", "error", err)
		os.Exit(1)
	}
	imageCollection := milvus.NewImageEmbeddingCollection(milvusClient, cfg.ImageEmbedding.Dimension)
	textCaptionCollection := milvus.NewTextCaptionEmbeddingCollection(milvusClient, cfg.TextEmbedding.Dimension)
	segmentCollection := milvus.NewSegmentCaptionEmbeddingCollection(milvusClient, cfg.TextEmbedding.Dimension)

	// Consul
	reg, err := registry.NewConsulRegistry(log)
	if err != nil {
		log.Warn("Consul init failed, clients fall back to static urls", "error", err)
		reg = nil
	}

	// Redis progress
	redisClient := pipeline.NewRedisClient(log)
	progress := pipeline.NewProgressReporter(log, redisClient)

	// Media tools
	tools := media.NewTools(log)
	if err := tools.AssertReady(ctx); err != nil {
		log.Warn("ffmpeg/ffprobe not available", "error", err)
	}

	// Model service clients
	clientCfg := func(fallbackEnv string) clients.Config {
		return clients.Config{
			Timeout:      cfg.Client.Timeout(),
			MaxRetries:   cfg.Client.MaxRetries,
			RetryMinWait: cfg.Client.MinWait(),
			RetryMaxWait: cfg.Client.MaxWait(),
			FallbackURL:  envutil.Str(fallbackEnv, ""),
		}
	}
	flowClients := flow.Clients{
		Autoshot:   clients.NewAutoshotClient(log, reg, clientCfg("AUTOSHOT_SERVICE_URL")),
		ASR:        clients.NewASRClient(log, reg, clientCfg("ASR_SERVICE_URL")),
		LLM:        clients.NewLLMClient(log, reg, clientCfg("LLM_SERVICE_URL")),
		ImageEmbed: clients.NewImageEmbedClient(log, reg, clientCfg("IMAGE_EMBEDDING_SERVICE_URL")),
		TextEmbed:  clients.NewTextEmbedClient(log, reg, clientCfg("TEXT_EMBEDDING_SERVICE_URL")),
	}

	// Stage tasks
	stageTasks := flow.Tasks{
		Ingest:              tasks.NewVideoIngestTask(log, visitor, blobs, tools),
		Autoshot:            tasks.NewAutoshotTask(log, visitor, flowClients.Autoshot),
		ASR:                 tasks.NewASRTask(log, visitor, flowClients.ASR),
		ImageExtract:        tasks.NewImageExtractTask(log, visitor, blobs, tools, cfg.ImageExtract),
		SegmentCaption:      tasks.NewSegmentCaptionTask(log, visitor, blobs, tools, flowClients.LLM, cfg.SegmentCaption),
		ImageCaption:        tasks.NewImageCaptionTask(log, visitor, blobs, flowClients.LLM, cfg.ImageCaption),
		ImageEmbed:          tasks.NewImageEmbedTask(log, visitor, blobs, flowClients.ImageEmbed, cfg.ImageEmbedding),
		TextCaptionEmbed:    tasks.NewTextCaptionEmbedTask(log, visitor, blobs, flowClients.TextEmbed, cfg.TextEmbedding),
		SegmentCaptionEmbed: tasks.NewSegmentCaptionEmbedTask(log, visitor, blobs, flowClients.TextEmbed, cfg.TextEmbedding),
		ImageVectors:        tasks.NewImageVectorIngestTask(log, blobs, imageCollection, cfg.VectorIngest),
		TextCaptionVectors:  tasks.NewTextCaptionVectorIngestTask(log, blobs, textCaptionCollection, cfg.VectorIngest),
		SegmentVectors:      tasks.NewSegmentCaptionVectorIngestTask(log, blobs, segmentCollection, cfg.VectorIngest),
	}
	processingFlow := flow.NewFlow(log, cfg, progress, flowClients, stageTasks)

	// Management
	collections := []management.VectorCollection{imageCollection, textCaptionCollection, segmentCollection}
	deleter := management.NewDeleter(log, artifactTracker, blobs, collections)
	statusService := management.NewStatusService(log, artifactTracker, collections)

	// Handlers and router
	uploadHandler := handlers.NewUploadHandler(log, processingFlow, cfg.Ingest.UserBucket)
	managementHandler := handlers.NewManagementHandler(log, deleter, statusService, progress)
	router := server.NewRouter(server.RouterConfig{
		UploadHandler:     uploadHandler,
		ManagementHandler: managementHandler,
	})

	port := envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}
	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Warn("Redis close failed", "error", err)
	}
}
