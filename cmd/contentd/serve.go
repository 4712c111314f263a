package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/contentd/contentd/handlers"
	"github.com/contentd/contentd/internal/authz"
	"github.com/contentd/contentd/internal/config"
	"github.com/contentd/contentd/internal/content/handler"
	"github.com/contentd/contentd/internal/content/repository"
	"github.com/contentd/contentd/internal/content/service"
	"github.com/contentd/contentd/internal/database"
	"github.com/contentd/contentd/internal/lock"
	"github.com/contentd/contentd/internal/oidc"
	"github.com/contentd/contentd/internal/query"
	"github.com/contentd/contentd/internal/schema"
	"github.com/contentd/contentd/internal/tokens"
	"github.com/contentd/contentd/pkg/logger"
	"github.com/contentd/contentd/pkg/metrics"
	"github.com/contentd/contentd/pkg/middleware"
)

var startTime = time.Now()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the content HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(os.Getenv("LOG_LEVEL"))
		if f := os.Getenv("LOG_FORMAT"); f != "" {
			logger.SetFormat(f)
		}
		defer logger.Sync()
		logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// backends holds the connections shared by handlers and the readiness probe.
type backends struct {
	mongo    *mongo.Client
	postgres *sql.DB
	redis    *redis.Client
	verifier middleware.Verifier
}

func (rt *backends) close() {
	if rt.mongo != nil {
		_ = rt.mongo.Disconnect(context.Background())
	}
	if rt.postgres != nil {
		_ = rt.postgres.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	reg, err := schema.Load(cfg.Content.TypesPath)
	if err != nil {
		return err
	}
	logger.Infof("schema loaded: %d content type(s) from %s", len(reg.Slugs()), cfg.Content.TypesPath)

	az, err := authz.NewAuthorizer(cfg.Authz.ModelPath, cfg.Authz.PolicyPath)
	if err != nil {
		return fmt.Errorf("authz: %w", err)
	}

	rt := &backends{}
	defer rt.close()

	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		} else {
			rt.redis = client
			logger.Infof("connected to Redis at %s", addr)
		}
	}

	store, err := openStore(ctx, cfg, rt)
	if err != nil {
		return err
	}

	var locker lock.Locker = lock.Noop{}
	if cfg.Lock.Enabled {
		if rt.redis != nil {
			locker = lock.NewRedisLocker(rt.redis, "contentd:lock:", cfg.Lock.TTL)
		} else {
			locker = lock.NewMemoryLocker(cfg.Lock.TTL)
		}
	}

	rt.verifier = buildVerifier(ctx, cfg)

	svc := service.NewService(reg, store, locker)
	pipeline := query.NewPipeline(reg, store, cfg.Content.RecordsPerPage)

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		ready, deps := rt.readiness(c.Request.Context(), cfg)
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	// Edits need a verified principal granted the edit scope whenever some
	// verifier is configured.
	edits := r.Group("/")
	if rt.verifier != nil {
		edits.Use(middleware.AuthMiddleware(rt.verifier), middleware.PrincipalMiddleware(az), middleware.RequireScope(cfg.Authz.EditScope))
	} else {
		logger.Warnf("no token verifier configured: content edits run as the anonymous principal")
		edits.Use(middleware.PrincipalMiddleware(az))
	}
	reads := r.Group("/")
	reads.Use(middleware.OptionalAuthMiddleware(rt.verifier), middleware.PrincipalMiddleware(az))

	if cfg.RateLimit.Enabled {
		var limit gin.HandlerFunc
		if cfg.RateLimit.UseRedis && rt.redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = middleware.RedisRateLimitMiddleware(rt.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limit = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
		edits.Use(limit)
		reads.Use(limit)
	}

	handler.RegisterContentRoutes(edits, svc)
	handler.RegisterDashboardRoutes(edits, pipeline)
	handler.RegisterQueryRoutes(reads, pipeline)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	logger.Infof("config summary: storage=%s keycloak=%v redis=%v lock=%v rate_limit=%v",
		cfg.Storage.Backend, cfg.Keycloak.URL != "", rt.redis != nil, cfg.Lock.Enabled, cfg.RateLimit.Enabled)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("starting contentd on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, rt *backends) (repository.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageMongo:
		client, err := database.ConnectMongoRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			return nil, err
		}
		rt.mongo = client
		logger.Infof("using MongoDB storage (%s)", cfg.MongoDB.Database)
		return repository.NewMongoStore(client.Database(cfg.MongoDB.Database)), nil
	case config.StoragePostgres:
		db, err := database.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Timeout)
		if err != nil {
			return nil, err
		}
		rt.postgres = db
		store := repository.NewPostgresStore(db)
		if cfg.Postgres.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		logger.Infof("using PostgreSQL storage")
		return store, nil
	default:
		logger.Warnf("using in-memory storage: content is lost on restart")
		return repository.NewMemoryStore(), nil
	}
}

// buildVerifier prefers Keycloak, then locally signed tokens, then the
// insecure development verifier. It returns nil when none is configured.
func buildVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := oidc.IssuerURL(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err == nil {
			logger.Infof("verifying tokens against %s", issuer)
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		logger.Infof("verifying locally signed HS256 tokens")
		return tokens.NewVerifier(cfg.JWT.Secret)
	}
	if cfg.Auth.AllowInsecureToken {
		logger.Warnf("enabling insecure token verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	return nil
}

func (rt *backends) readiness(ctx context.Context, cfg *config.Config) (bool, map[string]bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ready := true
	deps := map[string]bool{}

	switch cfg.Storage.Backend {
	case config.StorageMongo:
		deps["storage"] = rt.mongo != nil && rt.mongo.Ping(ctx, nil) == nil
	case config.StoragePostgres:
		deps["storage"] = rt.postgres != nil && rt.postgres.PingContext(ctx) == nil
	default:
		deps["storage"] = true
	}
	if !deps["storage"] {
		ready = false
	}

	if cfg.Keycloak.URL != "" {
		deps["oidc"] = rt.verifier != nil
		if !deps["oidc"] {
			ready = false
		}
	}

	if cfg.Redis.Addr() != "" && (cfg.RateLimit.UseRedis || cfg.Lock.Enabled) {
		deps["redis"] = rt.redis != nil && rt.redis.Ping(ctx).Err() == nil
		if !deps["redis"] {
			ready = false
		}
	}
	return ready, deps
}
