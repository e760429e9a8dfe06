package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/audit"
	"procurement/internal/award"
	"procurement/internal/complaint"
	"procurement/internal/config"
	"procurement/internal/consensus"
	"procurement/internal/effects"
	"procurement/internal/escrow"
	"procurement/internal/handlers"
	"procurement/internal/notify"
	"procurement/internal/points"
	"procurement/internal/store"
	"procurement/internal/store/memstore"
	"procurement/internal/tender"
	"procurement/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("open storage", "storage", cfg.Storage, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	chain := audit.NewChain(st)
	fx := effects.New(chain, notify.LogSink{Logger: logger}, logger)
	ledger := points.NewLedger(st, cfg.Points)

	h := handlers.NewHandler(handlers.Services{
		Users:      users.NewService(st, fx),
		Tenders:    tender.NewService(st, fx),
		Awards:     award.NewEngine(st, cfg.Scoring, fx),
		Escrow:     escrow.NewService(st),
		Proofs:     consensus.NewService(st, ledger, cfg.Voting, fx),
		Complaints: complaint.NewService(st, ledger, cfg.Penalty, fx),
		Points:     ledger,
		Audit:      chain,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", h.Routes(handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst)))

	logger.Info("starting server", "addr", cfg.ServerAddress, "storage", cfg.Storage)
	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// openStore connects the configured backend. Postgres is migrated on start.
func openStore(cfg config.Config) (store.Store, func(), error) {
	switch cfg.Storage {
	case "memory":
		return memstore.New(), func() {}, nil
	case "postgres":
		dbConn, err := sqlx.Connect("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := migrations.Run(dbConn.DB); err != nil {
			dbConn.Close()
			return nil, nil, err
		}
		return db.NewStorage(dbConn), func() { dbConn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if lvl == slog.LevelDebug {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
