package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Seann-Moser/oauthbroker"
	"github.com/Seann-Moser/oauthbroker/config"
	"github.com/Seann-Moser/oauthbroker/oauth/connect"
	"github.com/Seann-Moser/oauthbroker/oauth/oclient"
	"github.com/Seann-Moser/oauthbroker/oauth/provider"
	"github.com/Seann-Moser/oauthbroker/oauth/state"
	"github.com/Seann-Moser/oauthbroker/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("oauthbroker exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return err
	}
	sealer, err := oclient.NewSealer(key)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is not set")
	}
	codec, err := session.NewCodec([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		return err
	}
	codec.Insecure = cfg.IsDev()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	store := oclient.NewMongoStore(mongoClient.Database(cfg.MongoDatabase), sealer)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	attempts, closeAttempts, err := newAttemptStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAttempts()

	registry, err := provider.Load(provider.Defaults(), nil)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		slog.Warn("PUBLIC_BASE_URL is not set; connecting providers will fail")
	}

	creds, err := oauthbroker.NewCredentials(oauthbroker.Options{
		Providers:   registry,
		Store:       store,
		Attempts:    attempts,
		Sessions:    codec,
		HTTPTimeout: cfg.HTTPTimeout,
		RefreshSkew: cfg.RefreshSkew,
		Connect: connect.Options{
			BaseURL:         cfg.BaseURL,
			SuccessRedirect: cfg.SuccessRedirect,
			ErrorRedirect:   cfg.ErrorRedirect,
			StateTTL:        cfg.StateTTL,
			Insecure:        cfg.IsDev(),
		},
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	creds.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		pctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := mongoClient.Ping(pctx, readpref.Primary()); err != nil {
			http.Error(w, "mongo unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.IsDev() {
		mux.HandleFunc("POST /dev/signin", devSignIn(codec))
		slog.Warn("development sign-in enabled", "path", "/dev/signin")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           creds.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("oauthbroker started", "addr", cfg.ListenAddr, "providers", registry.Names())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("oauthbroker stopped cleanly")
	return nil
}

// newAttemptStore prefers Redis so attempts survive restarts and are shared
// between replicas.
func newAttemptStore(ctx context.Context, cfg config.Config) (state.AttemptStore, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR is not set; keeping authorization attempts in memory")
		return state.NewMemoryAttemptStore(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return state.NewRedisAttemptStore(rdb), func() { _ = rdb.Close() }, nil
}

// devSignIn signs in the user_id form value. Only mounted in development.
func devSignIn(codec *session.Codec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.FormValue("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if _, err := codec.SignIn(w, r, userID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
