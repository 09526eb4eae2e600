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

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"lanchat/internal/auth"
	"lanchat/internal/cipher"
	"lanchat/internal/config"
	"lanchat/internal/eventbus"
	"lanchat/internal/gateway"
	"lanchat/internal/handler"
	"lanchat/internal/history"
	"lanchat/internal/logger"
	"lanchat/internal/presence"
	"lanchat/internal/router"
	"lanchat/internal/store"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 環境変数を読み込み
	cfg := config.Load()
	log := logger.New(cfg)

	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not found, using environment and defaults")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.UsesDefaultEncryptionKey() {
		log.Warn().Msg("CHAT_ENCRYPTION_KEY not set; messages are encrypted with the built-in development key")
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn().Msg("JWT_SECRET not set; accepting tokens signed with the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// メッセージストアを初期化
	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to initialize message store")
	}
	defer st.Close()

	c, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cipher")
	}

	sink, err := eventbus.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event sink")
	}

	// realtime core
	hub := gateway.NewHub()
	registry := presence.NewRegistry(hub)
	opts := []router.Option{router.WithStoreTimeout(cfg.StoreTimeout)}
	if sink != nil {
		opts = append(opts, router.WithSink(sink))
	}
	rt := router.New(st, c, registry, hub, log, opts...)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	gw := gateway.New(gateway.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		RateBurst:      cfg.RateLimitBurst,
		RatePerSecond:  cfg.RateLimitPerSecond,
	}, verifier, registry, hub, rt, log)

	// ハンドラー初期化
	h := handler.New(cfg, verifier, history.NewPaginator(st, c, log), gw, st, gw, log)
	r := h.SetupRouter()

	// CORS対応
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           corsHandler.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("========================================")
	fmt.Println("  LAN Chat Server")
	fmt.Println("========================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Server: http://localhost:%s\n", cfg.ServerPort)
	fmt.Printf("  WebSocket: ws://localhost:%s/ws\n", cfg.ServerPort)
	fmt.Printf("  Store: %s\n", cfg.StoreDriver)
	if cfg.StoreDriver == config.DriverMySQL {
		fmt.Printf("  Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	fmt.Printf("  Allowed Origins: %v\n", cfg.AllowedOrigins)
	fmt.Println("========================================")

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway shutdown")
	}
	if sink != nil {
		if err := sink.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("event sink shutdown")
		}
	}
	log.Info().Msg("server stopped")
}
