// ==============================================================================
// FUND SERVICE MAIN - cmd/fund/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"stokvel/internal/authority"
	"stokvel/internal/custody"
	"stokvel/internal/domain"
	"stokvel/internal/exchange"
	"stokvel/internal/fund"
	"stokvel/internal/handler"
	"stokvel/internal/lending"
	"stokvel/internal/middleware"
	"stokvel/internal/repository/postgres"
	"stokvel/internal/stream"
	"stokvel/pkg/config"
	"stokvel/pkg/logger"
	"stokvel/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("fund-service")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Fund Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Redis connected", nil)

	ctx := context.Background()

	// Repositories
	store := postgres.NewFundStore(db)
	custodyRepo := postgres.NewCustodyRepository(db)
	authorityRepo := postgres.NewAuthorityRepository(db)

	// Access control: seed the first owner on an empty database, then load
	// the role assignments into memory.
	authorityService := authority.NewService(authorityRepo, cfg.JWT.Secret, cfg.Admin.OperatorTokenTTL)
	if cfg.Admin.BootstrapSecret != "" {
		if err := authorityService.Bootstrap(ctx, cfg.Admin.BootstrapName, cfg.Admin.BootstrapSecret); err != nil {
			log.Fatal("Failed to bootstrap authority", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := authorityService.Load(ctx); err != nil {
		log.Fatal("Failed to load authority (set ADMIN_BOOTSTRAP_SECRET to seed an empty database)", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Collaborators
	custodyService := custody.NewService(custodyRepo, log)
	lendingClient := lending.NewClient(cfg.Lending, log)
	exchangeClient := exchange.NewClient(cfg.Exchange, log)
	hub := stream.NewHub(log)

	// Rebuild the in-memory ledger from the persisted snapshot.
	snapshot, err := store.Load(ctx)
	if err != nil {
		log.Fatal("Failed to load fund snapshot", map[string]interface{}{"error": err.Error()})
	}
	var ledger *fund.Ledger
	if snapshot == nil {
		ledger = fund.NewLedger(cfg.Pool.Capacity)
		log.Info("Initialized fresh pool", map[string]interface{}{"capacity": cfg.Pool.Capacity.String()})
	} else {
		ledger = fund.Rehydrate(snapshot)
		log.Info("Rehydrated pool from snapshot", map[string]interface{}{
			"total_staked":  snapshot.Pool.TotalStaked.String(),
			"opened_rounds": snapshot.Pool.OpenedRounds,
		})
	}

	fundService := fund.NewService(
		ledger,
		store,
		custodyService,
		lendingClient,
		exchangeClient,
		authorityService,
		hub,
		cfg.Pool.RoundFee,
		clockwork.NewRealClock(),
		log,
	)

	watcherCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	fundService.StartMaturityWatcher(watcherCtx, cfg.Pool.WatchInterval)

	// Handlers
	val := validator.New()
	blacklist := middleware.NewRedisTokenBlacklist(redisClient)

	poolHandler := handler.NewPoolHandler(fundService, val, log)
	roundsHandler := handler.NewRoundsHandler(fundService, val, log)
	adminHandler := handler.NewAdminHandler(fundService, authorityService, custodyService, blacklist, cfg.Admin.OperatorTokenTTL, val, log)
	eventsHandler := handler.NewEventsHandler(store, hub, log)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.Metrics)
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB global cap
	r.Use(middleware.NewRateLimiter(redisClient, cfg.Admin.RateLimit, cfg.Admin.RateLimitWindow).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret, blacklist)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, cfg.Admin.IdempotencyTTL)
	stepUp := middleware.NewStepUp(cfg.Admin.TOTPSecret)

	// Probes and metrics (no auth)
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	r.HandleFunc("/ready", healthHandler.Ready).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public reads and operator login
	api.HandleFunc("/pool", poolHandler.GetPool).Methods("GET")
	api.HandleFunc("/rounds", roundsHandler.List).Methods("GET")
	api.HandleFunc("/rounds/{index:[0-9]+}", roundsHandler.Get).Methods("GET")
	api.HandleFunc("/events", eventsHandler.List).Methods("GET")
	api.HandleFunc("/events/stream", eventsHandler.Stream).Methods("GET")
	api.HandleFunc("/admin/login", adminHandler.Login).Methods("POST")

	// User pool operations
	pool := api.PathPrefix("/pool").Subrouter()
	pool.Use(authMW.Authenticate)
	pool.Use(idemMW.Require)
	pool.HandleFunc("/deposits", poolHandler.Deposit).Methods("POST")
	pool.HandleFunc("/withdrawals", poolHandler.RequestWithdraw).Methods("POST")
	pool.HandleFunc("/withdrawals/cancel", poolHandler.CancelWithdraw).Methods("POST")
	pool.HandleFunc("/withdrawals/complete", poolHandler.CompleteWithdraw).Methods("POST")
	pool.HandleFunc("/settle", poolHandler.Settle).Methods("POST")
	pool.HandleFunc("/accounts/me", poolHandler.Me).Methods("GET")

	// Operator account lookup falls through the user subrouter above.
	accounts := api.PathPrefix("/pool/accounts").Subrouter()
	accounts.Use(authMW.AuthenticateOperator)
	accounts.HandleFunc("/{id}", poolHandler.GetAccount).Methods("GET")

	// Round lifecycle: manager operators with TOTP step-up
	roundOps := api.PathPrefix("/rounds").Subrouter()
	roundOps.Use(authMW.AuthenticateOperator)
	roundOps.Use(middleware.RequireRole(domain.OperatorRoleManager, domain.OperatorRoleOwner))
	roundOps.Use(stepUp.Require)
	roundOps.Use(idemMW.Require)
	roundOps.HandleFunc("/open", roundsHandler.Open).Methods("POST")
	roundOps.HandleFunc("/close", roundsHandler.Close).Methods("POST")

	// Operator reads and logout
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMW.AuthenticateOperator)
	admin.HandleFunc("/logout", adminHandler.Logout).Methods("POST")
	admin.HandleFunc("/authority", adminHandler.GetAuthority).Methods("GET")
	admin.HandleFunc("/vault", adminHandler.GetVault).Methods("GET")
	admin.HandleFunc("/vault/movements", adminHandler.GetVaultMovements).Methods("GET")

	// Owner control surface: TOTP step-up on every mutation
	ownerOps := api.PathPrefix("/admin").Subrouter()
	ownerOps.Use(authMW.AuthenticateOperator)
	ownerOps.Use(middleware.RequireRole(domain.OperatorRoleManager, domain.OperatorRoleOwner))
	ownerOps.Use(stepUp.Require)
	ownerOps.Use(idemMW.Require)
	ownerOps.HandleFunc("/operators", adminHandler.RegisterOperator).Methods("POST")
	ownerOps.HandleFunc("/capacity", adminHandler.SetCapacity).Methods("POST")
	ownerOps.HandleFunc("/manager", adminHandler.SetManager).Methods("POST")
	ownerOps.HandleFunc("/fee-recipient", adminHandler.SetFeeRecipient).Methods("POST")
	ownerOps.HandleFunc("/owner/propose", adminHandler.ProposeOwner).Methods("POST")
	ownerOps.HandleFunc("/owner/accept", adminHandler.AcceptOwner).Methods("POST")

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Fund service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down fund service...", nil)
	stopWatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Fund service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Fund service stopped gracefully", nil)
}
