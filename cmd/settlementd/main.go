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
	_ "github.com/lib/pq"

	"spliton/internal/handler"
	"spliton/internal/ledger"
	"spliton/internal/middleware"
	"spliton/internal/repository/postgres"
	"spliton/internal/settlement"
	"spliton/internal/ton"
	"spliton/internal/wallet"
	"spliton/pkg/cache"
	"spliton/pkg/config"
	"spliton/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("settlementd")

	log.Info("Starting settlement daemon", map[string]interface{}{
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

	// Redis cache is optional; address resolution falls back to the database
	var addressCache wallet.Cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("Redis unavailable, running without address cache", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		addressCache = redisCache
		defer redisCache.Close()
	}

	// Chain and contract
	owner := resolveOwner(cfg, log)
	chain := ton.NewChainAt(resolveContractAddress(cfg, log), owner, log)
	chain.Faucet(owner, ton.Nano("1000"))
	connector := ton.NewConnector(chain, owner)

	log.Info("Contract deployed", map[string]interface{}{
		"address": chain.ContractAddress().String(),
		"owner":   owner.String(),
	})

	// Repositories
	debtRepo := postgres.NewDebtRepository(db)
	expenseRepo := postgres.NewExpenseRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	walletRepo := postgres.NewWalletRepository(db)

	// Services
	ledgerService := ledger.NewService(debtRepo, expenseRepo, log)
	directory := wallet.NewDirectory(walletRepo, addressCache, log)
	settlementService := settlement.NewService(
		settlementRepo,
		ledgerService,
		directory,
		connector,
		log,
		cfg.Ton.ConfirmationPoll,
		cfg.Ton.ConfirmationRetries,
		cfg.Settlement.BatchLimit,
	)

	// Background recovery and reconciliation worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go settlementService.StartWorker(workerCtx, cfg.Settlement.WorkerInterval, cfg.Settlement.ReconcileInterval)

	// Handlers
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	settlementHandler := handler.NewSettlementHandler(settlementService, directory)
	contractHandler := handler.NewContractHandler(chain)

	// Router
	r := mux.NewRouter()
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db)).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/expenses", ledgerHandler.RecordExpense).Methods("POST")
	api.HandleFunc("/debts/{id}/offset", ledgerHandler.OffsetDebt).Methods("POST")
	api.HandleFunc("/debts/{id}/pay", settlementHandler.PayDebt).Methods("POST")
	api.HandleFunc("/groups/{groupID}/debts", ledgerHandler.ListDebts).Methods("GET")
	api.HandleFunc("/users/{userID}/debts", ledgerHandler.ListUserDebts).Methods("GET")
	api.HandleFunc("/groups/{groupID}/balances", ledgerHandler.GetBalances).Methods("GET")
	api.HandleFunc("/groups/{groupID}/plan", settlementHandler.PreviewPlan).Methods("GET")
	api.HandleFunc("/groups/{groupID}/settle", settlementHandler.ExecutePlan).Methods("POST")
	api.HandleFunc("/settlements/{id}", settlementHandler.GetSettlement).Methods("GET")
	api.HandleFunc("/wallets/{userID}", settlementHandler.LinkWallet).Methods("PUT")
	api.HandleFunc("/contract", contractHandler.GetContractInfo).Methods("GET")
	api.HandleFunc("/contract/validate", contractHandler.ValidatePayment).Methods("GET")
	api.HandleFunc("/transactions", contractHandler.ListTransactions).Methods("GET")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Settlement daemon started", map[string]interface{}{
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

	log.Info("Shutting down settlement daemon...", nil)
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Settlement daemon forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Settlement daemon stopped gracefully", nil)
}

func resolveOwner(cfg *config.Config, log logger.Logger) ton.Address {
	if cfg.Ton.OwnerAddress != "" {
		owner, err := ton.ParseAddress(cfg.Ton.OwnerAddress)
		if err != nil {
			log.Fatal("Invalid TON_OWNER_ADDRESS", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return owner
	}
	return ton.AddressFromSeed("spliton-operator")
}

func resolveContractAddress(cfg *config.Config, log logger.Logger) ton.Address {
	if cfg.Ton.ContractAddress != "" {
		addr, err := ton.ParseAddress(cfg.Ton.ContractAddress)
		if err != nil {
			log.Fatal("Invalid TON_CONTRACT_ADDRESS", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return addr
	}
	return ton.AddressFromSeed("spliton-split-payment")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"settlementd"}`))
}

func readyCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"settlementd"}`))
	}
}
