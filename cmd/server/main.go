package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zapsub/bot-server-go/internal/config"
	"github.com/zapsub/bot-server-go/internal/database"
	"github.com/zapsub/bot-server-go/internal/events"
	"github.com/zapsub/bot-server-go/internal/handler"
	"github.com/zapsub/bot-server-go/internal/jobs"
	"github.com/zapsub/bot-server-go/internal/middleware"
	"github.com/zapsub/bot-server-go/internal/redis"
	"github.com/zapsub/bot-server-go/internal/repository"
	"github.com/zapsub/bot-server-go/internal/service"
	"github.com/zapsub/bot-server-go/internal/session"
	"github.com/zapsub/bot-server-go/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	pingCancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	convRepo := repository.NewConversationRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	clientRepo := repository.NewClientRepository(db.DB)
	ticketRepo := repository.NewTicketRepository(db.DB)
	chargeRepo := repository.NewChargeRepository(db.DB)

	broker := events.NewBroker(redisClient)
	defer broker.Close()

	credStore, err := transport.NewCredentialStore(cfg.CredentialsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open credential store")
	}

	gateway := transport.NewGatewayClient(cfg.GatewayWSURL, cfg.GatewayMediaURL)
	sessionManager := session.NewManager(gateway, credStore, session.Config{
		PresenceVisible: cfg.PresenceVisible,
		KeepaliveProbe:  cfg.KeepaliveProbe,
	})

	coordinator := service.NewConversationCoordinator(convRepo)
	identity := service.NewIdentityResolver(convRepo)
	dedup := service.NewDedupCache(config.DedupCacheSize)
	normalizer := service.NewNormalizer(gateway)
	dispatcher := service.NewDispatcher(gateway, coordinator, convRepo, messageRepo)
	pix := service.NewPixClient(cfg.PixAPIURL, cfg.PixAPIKey)
	bot := service.NewBotEngine(
		dispatcher, clientRepo, convRepo, ticketRepo, chargeRepo, pix,
		cfg.MonthlyPriceCents,
	)

	pipeline := service.NewPipeline(
		normalizer, dedup, identity, coordinator, convRepo, messageRepo, bot, broker,
	)
	debouncer := service.NewDebouncer(cfg.DebounceWindow(), pipeline.Flush)
	pipeline.SetDebouncer(debouncer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionManager.OnMessage(func(raw *transport.RawMessage) {
		pipeline.HandleRaw(ctx, raw)
	})
	sessionManager.OnConnected(func() {
		publishConnection(ctx, broker, "connected")
	})
	sessionManager.OnDisconnected(func(reason transport.DisconnectReason) {
		publishConnection(ctx, broker, string(reason))
	})
	sessionManager.OnQR(func(code string) {
		log.Info().Msg("pairing QR received, scan via GET /v1/session")
	})

	go sessionManager.Run(ctx)
	if err := sessionManager.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("initial connect failed, reconnect scheduled")
	}

	// The webhook lands on whichever replica the provider hits; the broker
	// carries the confirmation to the replica holding the session.
	go subscribePayments(ctx, broker, bot, dispatcher)

	authMiddleware := middleware.NewAuthMiddleware(cfg.APIToken)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)
	pixSignatureMiddleware := middleware.NewPixSignatureMiddleware(cfg.PixWebhookSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.MaxRequestBodyBytes)

	apiHandler := handler.NewAPIHandler(sessionManager, dispatcher, bot, convRepo)
	webhookHandler := handler.NewWebhookHandler(chargeRepo, clientRepo, broker)
	eventsHandler := handler.NewEventsHandler(broker, sessionManager)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(pixSignatureMiddleware.Handler)
		r.Post("/pix", webhookHandler.HandlePix)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
		r.Mount("/", apiHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(chargeRepo, messageRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	cancel()
	sessionManager.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func subscribePayments(ctx context.Context, broker *events.Broker, bot *service.BotEngine, dispatcher *service.Dispatcher) {
	client := broker.Subscribe(events.TopicPayments)
	defer broker.Unsubscribe(client)

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done:
			return
		case event := <-client.Events:
			var confirmed events.PaymentConfirmed
			if err := json.Unmarshal(event.Data, &confirmed); err != nil {
				log.Error().Err(err).Msg("payment event unmarshal failed")
				continue
			}

			bot.MarkPaymentConfirmed(confirmed.Phone)

			if err := dispatcher.Send(ctx, confirmed.Phone, "", service.Content{
				Kind: service.ContentText,
				Text: "Pagamento confirmado! ✅ Sua assinatura foi renovada. Obrigado!",
			}); err != nil {
				log.Error().Err(err).Msg("payment confirmation send failed")
			}
		}
	}
}

func publishConnection(ctx context.Context, broker *events.Broker, status string) {
	if err := broker.PublishJSON(ctx, events.TopicConnection, "connection_status", map[string]string{
		"status": status,
	}); err != nil {
		log.Error().Err(err).Msg("connection status publish failed")
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
