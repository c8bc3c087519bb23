package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	sapi "go.curalink.io/qrlogin/api/echo"
	"go.curalink.io/qrlogin/config"
	"go.curalink.io/qrlogin/internal/auth"
	"go.curalink.io/qrlogin/internal/metrics"
	"go.curalink.io/qrlogin/internal/server"
	"go.curalink.io/qrlogin/log"
	"go.curalink.io/qrlogin/mongodb"
	"go.curalink.io/qrlogin/realtime"
	"go.curalink.io/qrlogin/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "starting qrlogin server", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"redis_addr":    cfg.RedisAddr,
		"session_ttl":   cfg.SessionTTL().String(),
	})

	// --- Storage ---
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to MongoDB", err)
	}
	defer mongoClient.Close(ctx)

	sessionRepo, err := mongodb.NewLoginSessionRepository(ctx, mongoClient.Database())
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize LoginSessionRepository", err)
	}
	userRepo, err := mongodb.NewUserRepository(ctx, mongoClient.Database())
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize UserRepository", err)
	}

	// --- Realtime ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal(ctx, "failed to connect to Redis", err)
	}
	defer redisClient.Close()

	broker := realtime.NewRedisBroker(redisClient, "qrlogin")

	// --- Services ---
	signer := services.NewTokenSigner()
	signer.AddHS256Key(services.DefaultKeyID, cfg.JWTSecretKey)

	tokenService := services.NewTokenService(signer, cfg.TokenIssuer, cfg.CredentialTTL())
	defer tokenService.Stop()

	sessionService := services.NewSessionService(sessionRepo, userRepo, broker, cfg.SessionTTL())
	channelAuthorizer := services.NewChannelAuthorizer(cfg.ChannelAppKey, cfg.ChannelSecretKey)
	authService := services.NewAuthService(userRepo, auth.NewBcryptPasswordHasher(bcrypt.DefaultCost))
	hub := realtime.NewHub(broker, channelAuthorizer)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics.InitCustomMetrics(registry)

	// --- HTTP ---
	api := sapi.NewHandshakeAPI(
		sessionService, tokenService, channelAuthorizer, authService, userRepo, hub,
		sapi.CookieConfig{Name: cfg.CookieName, Secure: cfg.CookieSecure},
	)

	httpServer := server.NewHTTPServer(cfg, appLogger, api, registry, func() error {
		return mongoClient.Ping(context.Background())
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sessionService.StartSweeper(sweepCtx, cfg.SessionSweepInterval())

	go func() {
		appLogger.Info(ctx, "http server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "http server failed", err)
		}
	}()

	// --- Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, "graceful shutdown failed", err)
	}
}
