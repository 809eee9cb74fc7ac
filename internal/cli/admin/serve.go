package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docpipe/internal/api/handlers"
	"github.com/cloo-solutions/docpipe/internal/chunker"
	"github.com/cloo-solutions/docpipe/internal/config"
	"github.com/cloo-solutions/docpipe/internal/database"
	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/extract"
	"github.com/cloo-solutions/docpipe/internal/jobs"
	"github.com/cloo-solutions/docpipe/internal/model"
	"github.com/cloo-solutions/docpipe/internal/pipeline"
	"github.com/cloo-solutions/docpipe/internal/repository"
	"github.com/cloo-solutions/docpipe/internal/server"
	"github.com/cloo-solutions/docpipe/internal/service"
	"github.com/cloo-solutions/docpipe/internal/storage"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and pipeline worker",
		Long:  "Start the docpipe API server and the background worker that executes pipeline runs",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API only, without the pipeline worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPoolFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	runRepo := repository.NewRunRepository(pool)

	modelClient := model.NewClient(model.Config{APIKey: cfg.OpenAIAPIKey})

	var docStore pipeline.DocumentStore
	var artifactStore pipeline.ArtifactStore
	if cfg.HasS3() {
		docClient, err := newBucketClient(ctx, cfg, cfg.S3DocBucket)
		if err != nil {
			return fmt.Errorf("failed to set up document bucket: %w", err)
		}
		artifactClient, err := newBucketClient(ctx, cfg, cfg.S3ArtifactsBkt)
		if err != nil {
			return fmt.Errorf("failed to set up artifact bucket: %w", err)
		}
		docStore = &S3DocumentStore{client: docClient}
		artifactStore = &S3ArtifactStore{client: artifactClient}
	}

	// The worker needs both stores and an inference key; without them the API
	// still serves run CRUD and triggered runs stay pending.
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	var runWorker *jobs.Worker
	if !noWorker && docStore != nil && cfg.HasOpenAI() {
		extractor := extract.NewExtractor(modelClient, cfg.ModelID)
		chunkCfg := chunker.DefaultConfig()
		chunkCfg.MaxSize = cfg.ChunkMaxSize

		stages := []pipeline.StageRunner{
			pipeline.NewCollectDocsStage(docStore, artifactStore),
			pipeline.NewAnalyzeStage(artifactStore, extractor, chunkCfg, pipeline.RecordSchema, cfg.ExtractConcurrency),
			pipeline.NewGenerationStage(domain.StageGenerateControls, artifactStore, modelClient, pipeline.ControlsInstruction, "text/markdown"),
			pipeline.NewGenerationStage(domain.StageGenerateTemplate, artifactStore, modelClient, pipeline.TemplateInstruction, "application/yaml"),
			pipeline.NewGenerationStage(domain.StageGenerateProfile, artifactStore, modelClient, pipeline.ProfileInstruction, "application/json"),
			pipeline.NewGenerationStage(domain.StageGenerateIAMModel, artifactStore, modelClient, pipeline.IAMModelInstruction, "application/json"),
		}

		orchestrator, err := pipeline.NewOrchestrator(runRepo, stages, cfg.StageTimeout)
		if err != nil {
			return fmt.Errorf("failed to build orchestrator: %w", err)
		}

		runWorker = jobs.NewWorker(jobs.NewRunWorker(runRepo, orchestrator), cfg.WorkerPollInterval)
		go runWorker.Start(ctx)
		log.Println("pipeline worker started")
	} else {
		log.Println("pipeline worker disabled: requires S3 and OpenAI configuration")
	}

	runSvc := service.NewRunService(runRepo, modelClient, cfg.ModelID)
	runHandler := handlers.NewRunHandler(runSvc)

	router := server.NewRouter(server.RouterConfig{
		RunHandler: runHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if runWorker != nil {
		runWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func newBucketClient(ctx context.Context, cfg *config.Config, bucket string) (*storage.S3Client, error) {
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}
	log.Printf("S3 bucket '%s' ready", bucket)
	return client, nil
}

// S3DocumentStore reads source documents from the document bucket.
type S3DocumentStore struct {
	client *storage.S3Client
}

func (s *S3DocumentStore) Fetch(ctx context.Context, documentID string) (*domain.Document, error) {
	body, err := s.client.GetObject(ctx, "documents/"+documentID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, documentID)
		}
		return nil, err
	}
	return &domain.Document{
		ID:        documentID,
		Content:   string(body),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// S3ArtifactStore writes stage artifacts to the artifact bucket. Keys are
// derived from run and stage, so a ref doubles as the object key.
type S3ArtifactStore struct {
	client *storage.S3Client
}

func (s *S3ArtifactStore) Put(ctx context.Context, runID string, stage domain.Stage, contentType string, body []byte) (string, error) {
	key := fmt.Sprintf("artifacts/%s/%s", runID, stage)
	if err := s.client.PutObject(ctx, key, contentType, body); err != nil {
		return "", err
	}
	return key, nil
}

func (s *S3ArtifactStore) Get(ctx context.Context, ref string) ([]byte, error) {
	body, err := s.client.GetObject(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, ref)
		}
		return nil, err
	}
	return body, nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
