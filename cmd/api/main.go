package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/darrenwu-git/snap-ledger/internal/api/handlers"
	"github.com/darrenwu-git/snap-ledger/internal/api/middleware"
	"github.com/darrenwu-git/snap-ledger/internal/config"
	"github.com/darrenwu-git/snap-ledger/internal/ledger"
	"github.com/darrenwu-git/snap-ledger/internal/logger"
	"github.com/darrenwu-git/snap-ledger/internal/store"
	"github.com/darrenwu-git/snap-ledger/internal/store/local"
	"github.com/darrenwu-git/snap-ledger/internal/store/remote"
	"github.com/darrenwu-git/snap-ledger/internal/voice"
)

func main() {
	log := logger.New()
	cfg := config.Load()
	ctx := context.Background()

	// Local store is always available.
	localStore, err := local.Open(local.DefaultConfig(cfg.DBPath), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer localStore.Close()

	// Remote mode needs a project; without one, sign-in is rejected as a
	// precondition failure instead of failing mid-request.
	remoteErr := cfg.RequireRemote()
	var remoteFactory store.RemoteFactory
	if remoteErr == nil {
		client, err := bigquery.NewClient(ctx, cfg.Project)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer client.Close()

		remoteFactory = func(userID string) store.Store {
			return remote.New(client, cfg.Project, cfg.Dataset, userID, log)
		}
	} else {
		log.Warn().Msg("No remote project configured - running local-only")
	}

	sel := store.NewSelector(localStore, remoteFactory)
	led := ledger.New(sel, log)
	if err := led.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load ledger")
	}

	var parser *voice.Parser
	if cfg.GeminiAPIKey != "" {
		parser, err = voice.NewParser(cfg.GeminiAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create voice parser")
		}
	} else {
		log.Warn().Msg("No Gemini API key configured - voice entry disabled")
	}

	h := handlers.NewLedgerHandler(led, parser, remoteErr, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListTransactions(w, r)
		case http.MethodPost:
			h.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}
		switch r.Method {
		case http.MethodPut:
			h.UpdateTransaction(w, r, id)
		case http.MethodDelete:
			h.DeleteTransaction(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListCategories(w, r)
		case http.MethodPost:
			h.CreateCategory(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/categories/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Category ID is required")
			return
		}
		switch r.Method {
		case http.MethodPut:
			h.UpdateCategory(w, r, id)
		case http.MethodDelete:
			h.DeleteCategory(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateSession(w, r)
		case http.MethodDelete:
			h.DeleteSession(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/backup", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Export(w, r)
		case http.MethodPost:
			h.Import(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/voice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.Voice(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
