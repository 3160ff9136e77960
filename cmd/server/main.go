package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/client"
	"github.com/windfall/engapp_service/internal/config"
	grpchandler "github.com/windfall/engapp_service/internal/handler/grpc"
	httphandler "github.com/windfall/engapp_service/internal/handler/http"
	wshandler "github.com/windfall/engapp_service/internal/handler/ws"
	"github.com/windfall/engapp_service/internal/logger"
	"github.com/windfall/engapp_service/internal/observe"
	"github.com/windfall/engapp_service/internal/repository"
	"github.com/windfall/engapp_service/internal/server"
	"github.com/windfall/engapp_service/internal/service"
)

const serviceVersion = "0.4.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting engapp_service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	metrics := observe.NewNop()
	var provider *observe.Provider
	if cfg.MetricsEnabled {
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "engapp-assessment",
			ServiceVersion: serviceVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize metrics provider")
		}
		if metrics, err = provider.Metrics(); err != nil {
			log.Fatal().Err(err).Msg("Failed to create metric instruments")
		}
	}

	checks := make(map[string]httphandler.Pinger)
	var closers []func()

	// Initialize Postgres Client
	var repo repository.AssessmentRepository
	if cfg.DatabaseURL != "" {
		postgresClient, err := client.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres client")
		}
		closers = append(closers, postgresClient.Close)
		checks["postgres"] = postgresClient
		repo = repository.NewPostgresAssessmentRepository(postgresClient)
		log.Info().Msg("Postgres client initialized")
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory assessment store")
		repo = repository.NewMemoryAssessmentRepository(repository.WithAutoProvisionedUsers())
	}

	// Initialize Redis client
	var locker service.SessionLocker = service.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err := client.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis client")
		}
		closers = append(closers, func() { redisClient.Close() })
		checks["redis"] = redisClient
		locker = service.NewRedisLocker(redisClient, cfg.SubmissionLockTTL)
		log.Info().Msg("Redis client initialized")
	}

	audioStore, err := newAudioStore(ctx, cfg, checks, &closers)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.AudioStorageBackend).Msg("Failed to initialize audio storage")
	}

	if cfg.AzureAISpeechKey == "" || cfg.AzureServiceRegion == "" {
		log.Fatal().Msg("AZURE_AI_SPEECH_KEY and AZURE_SERVICE_REGION are required")
	}
	speechClient := client.NewAzureSpeechClient(cfg.AzureAISpeechKey, cfg.AzureServiceRegion, cfg.AzureSpeechLanguage)
	speech := service.NewAzureSpeechAnalyzer(speechClient, metrics, logger.Component(log, "speech"))

	language, err := newLanguageAnalyzer(ctx, cfg, metrics, &closers)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.LanguageProvider).Msg("Failed to initialize language provider")
	}

	content := assessment.DefaultContent()
	if cfg.ContentFile != "" {
		if content, err = assessment.LoadContentFile(cfg.ContentFile); err != nil {
			log.Fatal().Err(err).Str("path", cfg.ContentFile).Msg("Failed to load assessment content")
		}
	}

	// Event fan-out: connected WebSocket clients plus Pub/Sub when configured
	authService := service.NewAuthService(cfg.JWTSecret)
	notifiers := service.NewMultiNotifier(logger.Component(log, "events"))

	var pubsubNotifier service.Notifier
	if cfg.PubSubTopic != "" && cfg.GCPProjectID != "" {
		pubsubClient, err := client.NewPubSubClient(ctx, cfg.GCPProjectID, cfg.PubSubTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Pub/Sub client")
		}
		closers = append(closers, pubsubClient.Close)
		pubsubNotifier = service.NewPubSubNotifier(pubsubClient)
		log.Info().Str("topic", cfg.PubSubTopic).Msg("Pub/Sub publisher initialized")
	}

	// Initialize services
	assessmentService := service.NewAssessmentService(service.AssessmentDeps{
		Repo:             repo,
		Content:          content,
		Speech:           speech,
		Language:         language,
		Audio:            audioStore,
		Locker:           locker,
		Notifier:         notifiers,
		Metrics:          metrics,
		LanguageProvider: cfg.LanguageProvider,
	}, logger.Component(log, "assessment"))

	hub := server.NewWebSocketHub(logger.Component(log, "ws"), wshandler.NewHandler(log, assessmentService), cfg.CORSAllowedOrigins)
	notifiers.Add(hub, pubsubNotifier)

	sweeper := service.NewIdleSweeper(repo, notifiers, metrics, cfg.SessionIdleTimeout, cfg.SweepInterval, logger.Component(log, "sweeper"))

	// Initialize handlers
	healthHandler := httphandler.NewHealthHandler(checks)
	routes := server.Routes{
		Health:     healthHandler,
		Assessment: httphandler.NewAssessmentHandler(log, assessmentService, cfg.MaxAudioBytes),
		WebSocket:  hub,
	}
	if provider != nil {
		routes.Metrics = provider.Handler()
	}

	httpServer := server.NewHTTPServer(cfg, log, server.NewRouter(cfg, log, routes, authService, metrics))
	grpcServer := server.NewGRPCServer(cfg, log, grpchandler.NewHandler(log, assessmentService), authService)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown(cfg, log, healthHandler, httpServer, grpcServer)
		return nil
	})

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Str("grpc_addr", cfg.GRPCAddress()).
		Str("language_provider", cfg.LanguageProvider).
		Str("audio_backend", cfg.AudioStorageBackend).
		Msg("Servers started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Server error")
	}

	// Close clients
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	if provider != nil {
		if err := provider.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Metrics provider shutdown error")
		}
	}

	log.Info().Msg("Server stopped")
	if ctx.Err() == nil {
		os.Exit(1)
	}
}

func shutdown(cfg *config.Config, log zerolog.Logger, health *httphandler.HealthHandler, httpServer *server.HTTPServer, grpcServer *server.GRPCServer) {
	log.Info().Msg("Shutting down servers...")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	grpcServer.GracefulStop()
}

func newAudioStore(ctx context.Context, cfg *config.Config, checks map[string]httphandler.Pinger, closers *[]func()) (service.AudioStore, error) {
	switch cfg.AudioStorageBackend {
	case config.AudioBackendR2:
		// Cloudflare R2 through the S3 protocol
		r2, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			return nil, err
		}
		checks["r2"] = r2
		return r2, nil

	case config.AudioBackendGCS:
		gcs, err := client.NewStorageClient(ctx, cfg.GCSBucketName, cfg.GCSPublicURL)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, gcs.Close)
		checks["gcs"] = gcs
		return gcs, nil

	default:
		return service.NewInMemoryAudioStore(""), nil
	}
}

func newLanguageAnalyzer(ctx context.Context, cfg *config.Config, metrics *observe.Metrics, closers *[]func()) (service.LanguageAnalyzer, error) {
	var completer service.JSONCompleter

	switch cfg.LanguageProvider {
	case config.LanguageProviderVertex:
		gemini, err := client.NewGeminiClient(ctx, cfg.GCPProjectID, cfg.GCPLocation)
		if err != nil {
			return nil, err
		}
		completer = gemini.WithModel(cfg.GeminiModel)

	case config.LanguageProviderGemini:
		gemini, err := client.NewGeminiAPIClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, gemini.Close)
		completer = gemini.WithModel(cfg.GeminiModel)

	case config.LanguageProviderOpenAI:
		completer = client.NewOpenAIClient(cfg.OpenAIAPIKey).WithModel(cfg.OpenAIModel)

	case config.LanguageProviderAzure:
		completer = client.NewAzureChatClient(cfg.AzureChatEndpoint, cfg.AzureChatKey, cfg.AzureChatDeployment, cfg.AzureChatAPIVersion)

	default:
		return service.HeuristicLanguageAnalyzer{}, nil
	}

	return service.NewLLMLanguageAnalyzer(completer, cfg.LanguageTimeout, metrics), nil
}
