package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/infestor/internal/config"
	"github.com/kkkkikiki/infestor/internal/credentials"
	"github.com/kkkkikiki/infestor/internal/database"
	"github.com/kkkkikiki/infestor/internal/identity"
	"github.com/kkkkikiki/infestor/internal/keys"
	"github.com/kkkkikiki/infestor/internal/repository"
	"github.com/kkkkikiki/infestor/internal/rpc/giftcodev1"
	"github.com/kkkkikiki/infestor/internal/service"
	"github.com/kkkkikiki/infestor/internal/web"
)

const sessionTTL = 24 * time.Hour

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gift code redemption site",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return serve(ctx, config.FromContext(ctx), loggerFromContext(ctx))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	// The server never prompts, so the creator must come from the environment
	if cfg.Infestor.CreatorAccount == "" || cfg.Infestor.ActiveKey == "" {
		return errors.New("INFESTOR_CREATOR_ACCOUNT and INFESTOR_ACTIVE_KEY must be set to serve")
	}

	logger.Info("starting infestor", zap.String("environment", cfg.App.Environment))

	db, err := database.NewDB(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database connection", zap.Error(err))
		}
	}()

	client, err := newChainClient(cfg, logger)
	if err != nil {
		return err
	}

	store := repository.NewGiftCodeRepository(db)
	deriver := keys.NewDeriver(cfg.Infestor.AddressPrefix)
	activeKey := credentials.Static(cfg.Infestor.ActiveKey)
	policy := service.IssuancePolicy{
		MinimumReputation: cfg.Infestor.MinimumReputation,
		OperatorWitness:   cfg.Infestor.OperatorWitness,
	}

	// Each request gets its own environment
	envFor := func(ctx context.Context) *service.Env {
		return &service.Env{
			Chain:     client,
			Store:     store,
			Deriver:   deriver,
			Creator:   cfg.Infestor.CreatorAccount,
			ActiveKey: activeKey,
			Policy:    policy,
			Logger:    logger,
		}
	}

	tmpl, err := web.LoadTemplates(cfg.Infestor.FooterTemplate)
	if err != nil {
		return err
	}

	secret, err := sessionSecret(cfg.Infestor.SessionSecret, logger)
	if err != nil {
		return err
	}

	handlerCfg := web.HandlerConfig{
		EnvFor:       envFor,
		Sessions:     web.NewSessionManager(secret, sessionTTL),
		SiteURL:      cfg.Infestor.SiteURL,
		SecureCookie: secureCookie(cfg),
		Logger:       logger,
	}
	if cfg.Infestor.OAuth.ClientID != "" {
		handlerCfg.Identity = identity.NewProvider(&cfg.Infestor.OAuth, cfg.Infestor.CallbackURL())
	} else {
		logger.Info("login disabled, INFESTOR_OAUTH_CLIENT_ID is not set")
	}

	router := web.Setup(web.RouterConfig{
		Handler:   web.NewHandler(handlerCfg),
		Templates: tmpl,
		RateLimit: cfg.Infestor.RateLimit,
		RateBurst: cfg.Infestor.RateBurst,
		Logger:    logger,

		Development: cfg.App.IsDevelopment(),
	})

	mux := http.NewServeMux()

	if cfg.Infestor.AdminToken != "" {
		path, handler := giftcodev1.NewGiftCodeServiceHandler(
			service.NewGiftCodeServer(store, logger),
			connect.WithInterceptors(giftcodev1.NewAuthInterceptor(cfg.Infestor.AdminToken)),
		)
		mux.Handle(path, handler)
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"infestor","hostname":"%s"}`, hostname)
	})

	mux.HandleFunc("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"error","message":"%s unavailable"}`, db.Driver())
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","%s":"connected"}`, db.Driver())
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		// h2c so the admin RPC can speak HTTP/2 without TLS
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// secureCookie marks session cookies Secure behind https and always in production
func secureCookie(cfg *config.Config) bool {
	return cfg.App.IsProduction() || strings.HasPrefix(cfg.Infestor.SiteURL, "https://")
}

// sessionSecret returns the configured secret, or a random one that only
// lives as long as the process.
func sessionSecret(configured string, logger *zap.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	logger.Warn("INFESTOR_SESSION_SECRET is not set, sessions will not survive a restart")
	return secret, nil
}
