package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filetree/internal/auth"
	"filetree/internal/blobstore"
	"filetree/internal/config"
	"filetree/internal/handler"
	"filetree/internal/middleware"
	"filetree/internal/repository/postgres"
	"filetree/internal/repository/postgres/migrations"
	postgresStructure "filetree/internal/repository/postgres/structure"
	"filetree/internal/service/access"
	"filetree/internal/service/structure"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup structured logging, optionally tee'd into a log file
	logOut, closeLog, err := config.OpenLogOutput(cfg)
	if err != nil {
		log.Fatalf("Failed to set up log file: %v", err)
	}
	defer closeLog()
	logger := config.NewLogger(cfg, logOut)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"blob_store", cfg.Blob.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create token verifier: %v", err)
	}
	defer verifier.Close()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	tables := postgres.NewTableNames(cfg.TablePrefix)

	schema, err := prepareSchema(pool, tables, cfg.AutoMigrate, logger)
	if err != nil {
		log.Fatalf("Database schema not ready: %v", err)
	}

	blobs, err := blobstore.New(ctx, cfg.Blob, logger)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	// Repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Schema: schema,
		Logger: logger,
	}
	nodeRepo := postgresStructure.NewNodeRepository(repoConfig)
	grantRepo := postgresStructure.NewGrantRepository(repoConfig)
	userRepo := postgres.NewUserRepository(repoConfig)

	// Services
	resolver := access.NewResolver(nodeRepo, grantRepo, postgres.NewSnapshotTransactionManager(pool, logger), logger)
	structureService := structure.NewStructureService(nodeRepo, resolver, blobs, structure.Options{
		IncludeAncestors: cfg.TreeIncludeAncestors,
		MaxUploadBytes:   cfg.MaxUploadBytes,
	}, logger)
	permissionService := structure.NewPermissionService(nodeRepo, grantRepo, userRepo, resolver, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Handlers{
		Structure:  handler.NewStructureHandler(structureService, cfg.MaxUploadBytes, logger),
		Permission: handler.NewPermissionHandler(permissionService, logger),
		Health:     handler.NewHealthHandler(pool, logger),
	})

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.AuthMiddleware(verifier, logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  5 * time.Minute, // uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("server stopped")
}

// prepareSchema migrates (when enabled) and derives which optional columns
// the repositories may use.
func prepareSchema(pool *pgxpool.Pool, tables *postgres.TableNames, autoMigrate bool, logger *slog.Logger) (*postgres.SchemaCapabilities, error) {
	migrator, closeDB := migrations.NewForPool(pool, tables.Prefix, tables.Migrations)
	defer closeDB()

	if autoMigrate {
		if err := migrator.Up(); err != nil {
			return nil, err
		}
	}

	status, err := migrator.Status()
	if err != nil {
		return nil, err
	}
	if err := status.Servable(); err != nil {
		return nil, err
	}
	if !status.UpToDate() {
		logger.Warn("database schema behind binary, optional columns disabled",
			"version", status.Version,
			"latest", status.Latest,
		)
	}

	schema := &postgres.SchemaCapabilities{OwnerColumn: migrations.HasOwnerColumn(status.Version)}
	logger.Info("schema ready",
		"version", status.Version,
		"owner_column", schema.OwnerColumn,
	)
	return schema, nil
}
