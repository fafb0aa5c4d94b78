package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tellusko/tellusko/internal/adapter/httpapi"
	"github.com/tellusko/tellusko/internal/adapter/llm"
	"github.com/tellusko/tellusko/internal/adapter/mcp"
	"github.com/tellusko/tellusko/internal/adapter/policy"
	"github.com/tellusko/tellusko/internal/adapter/postgres"
	"github.com/tellusko/tellusko/internal/adapter/storage"
	"github.com/tellusko/tellusko/internal/audit"
	"github.com/tellusko/tellusko/internal/auth"
	"github.com/tellusko/tellusko/internal/config"
	"github.com/tellusko/tellusko/internal/core/domain"
	"github.com/tellusko/tellusko/internal/core/port"
	"github.com/tellusko/tellusko/internal/core/service"
	"github.com/tellusko/tellusko/internal/database"
	"github.com/tellusko/tellusko/internal/session"
	"github.com/tellusko/tellusko/internal/telemetry"
)

var version = "dev"

func main() {
	overrides, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags turns CLI arguments into config overrides. Only flags the user
// actually set are returned, so env vars keep working as the base layer.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("tellusko", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "PostgreSQL connection string")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	tableName := fs.String("table", "", "name of the single allowed table")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query statement timeout")
	dictionary := fs.String("dictionary", "", "path to table dictionary YAML")
	transport := fs.String("transport", "", `transport: "http" or "stdio"`)
	httpAddr := fs.String("http-addr", "", "HTTP listen address")
	redisAddr := fs.String("redis-addr", "", "Redis address for guest sessions")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log file")
	migrations := fs.String("migrations", "", "path to schema migrations (runs them at startup)")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	o := config.Overrides{
		OTelEnabled: *otelEnabled,
		AuditLog:    *auditLog,
		Migrations:  *migrations,
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "log-level":
			o.LogLevel = logLevel
		case "table":
			o.TableName = tableName
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "dictionary":
			o.Dictionary = dictionary
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "redis-addr":
			o.RedisAddr = redisAddr
		}
	})

	return o, nil
}

func run(overrides config.Overrides) error {
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; with the stdio transport stdout belongs to MCP.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting tellusko",
		slog.String("version", version),
		slog.String("transport", cfg.Transport),
		slog.String("table", cfg.Schema+"."+cfg.TableName),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.MigrationsPath != "" {
		if err := database.RunMigrations(database.MigrationConfig{
			DatabaseURL:    cfg.DatabaseURL,
			MigrationsPath: cfg.MigrationsPath,
		}); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied", slog.String("path", cfg.MigrationsPath))
	}

	// Observability.
	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "tellusko", version, cfg.Schema+"."+cfg.TableName)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()
		tracer = otel.Tracer("tellusko")
		inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled")
	}

	// Database connections: a pgx pool for the read-only data path and a
	// database/sql store for the application tables.
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxConns:        cfg.PoolMaxConns,
		MinConns:        cfg.PoolMinConns,
		MaxConnLifetime: cfg.PoolMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store, err := storage.Open(cfg.DatabaseURL, cfg.Schema)
	if err != nil {
		return fmt.Errorf("opening application store: %w", err)
	}
	defer store.Close()

	logger.Info("database connected", slog.String("db.system", "postgresql"))

	// Table dictionary (optional).
	var descriptions map[string]string
	var masks map[string]domain.MaskType
	if cfg.DictionaryFile != "" {
		dict, err := policy.LoadFromFile(cfg.DictionaryFile)
		if err != nil {
			return fmt.Errorf("loading dictionary: %w", err)
		}
		descriptions = dict.Descriptions()
		masks = dict.Masks()
		logger.Info("dictionary loaded", slog.String("file", cfg.DictionaryFile))
	}

	// Adapters.
	executor := postgres.NewExecutor(pool, cfg.QueryTimeout)
	inspector := postgres.NewInspector(pool, cfg.Schema, cfg.TableName, descriptions)

	openai, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}
	generator := llm.NewCircuitBreakerGenerator(openai, "openai", logger)

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer fileAuditor.Close()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	// Domain and service.
	pol := domain.Policy{
		Schema:         cfg.Schema,
		Table:          cfg.TableName,
		DefaultLimit:   cfg.DefaultQueryLimit,
		MaxLimit:       cfg.MaxQueryLimit,
		MaxQueryLength: cfg.MaxQueryLength,
	}
	querySvc := service.NewQueryService(service.Deps{
		Policy:    pol,
		Validator: domain.NewSQLValidator(pol),
		Executor:  executor,
		Generator: generator,
		Inspector: inspector,
		Chats:     store,
		Memory:    store,
		QueryLogs: store,
		Auditor:   auditor,
		Masks:     masks,
		Logger:    logger,
		Tracer:    tracer,
		Inst:      inst,
	})

	switch cfg.Transport {
	case "stdio":
		return serveStdio(ctx, querySvc, inspector, logger, tracer)
	default:
		return serveHTTP(ctx, cfg, querySvc, store, inspector, pool, logger)
	}
}

func serveStdio(ctx context.Context, querySvc *service.QueryService, inspector port.SchemaInspector, logger *slog.Logger, tracer trace.Tracer) error {
	mcpServer := mcp.NewServer(version, querySvc, inspector, logger, tracer)
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, querySvc *service.QueryService, store *storage.Store, inspector port.SchemaInspector, pinger httpapi.Pinger, logger *slog.Logger) error {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var sessions *session.Manager
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, guest sessions fall back to cookies only",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
	} else {
		sessions = session.NewManager(redisClient, cfg.SessionTTL)
	}

	server := httpapi.NewServer(httpapi.Deps{
		Queries:     querySvc,
		Users:       store,
		Tokens:      tokens,
		Sessions:    sessions,
		Inspector:   inspector,
		Pinger:      pinger,
		Schema:      cfg.Schema,
		Table:       cfg.TableName,
		CORSOrigins: cfg.CORSOrigins,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
	})

	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
