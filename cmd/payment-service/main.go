package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gallerix/payment-service/internal/catalog"
	"github.com/gallerix/payment-service/internal/config"
	"github.com/gallerix/payment-service/internal/db"
	"github.com/gallerix/payment-service/internal/discount"
	"github.com/gallerix/payment-service/internal/gateway"
	"github.com/gallerix/payment-service/internal/handler"
	"github.com/gallerix/payment-service/internal/idempotency"
	"github.com/gallerix/payment-service/internal/order"
	"github.com/gallerix/payment-service/internal/refund"
	"github.com/gallerix/payment-service/internal/settlement"
	"github.com/gallerix/payment-service/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "payment-service").Logger()

	log.Info().Msg("Payment service starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	database, err := db.New(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis client")
		}
	}()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	privateKey, err := gateway.LoadPrivateKey(cfg.Gateway.PrivateKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load merchant private key")
	}
	gatewayCerts, err := gateway.LoadCertificates(cfg.Gateway.GatewayCertPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load gateway certificates")
	}
	cipher, err := gateway.NewCipher(cfg.Gateway.APIv3Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init webhook cipher")
	}

	signer := gateway.NewSigner(cfg.Gateway.MerchantID, cfg.Gateway.MerchantSerial, privateKey)
	verifier := gateway.NewVerifier(gatewayCerts)
	client := gateway.NewClient(cfg.Gateway, signer)

	locks := idempotency.NewRedisStore(rdb)
	oracle := catalog.NewOracle(database)
	orderRepo := order.NewRepository(database)
	creditRepo := discount.NewRepository(database)
	refundRepo := refund.NewRepository(database)

	orderSvc := order.NewService(orderRepo, creditRepo, oracle, locks, client, database, cfg.Gateway.Currency)
	settlementSvc := settlement.NewService(orderRepo, refundRepo, oracle, locks, database)
	refundSvc := refund.NewService(refundRepo, orderRepo, client, database, cfg.Gateway.Currency)

	router := transport.NewRouter(
		handler.NewOrderHandler(orderSvc),
		handler.NewWebhookHandler(verifier, cipher, settlementSvc),
		handler.NewRefundHandler(refundSvc),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
