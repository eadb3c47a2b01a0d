package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pactwatch/contract-cli/internal/expiry"
	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/store"
)

var servePort int

// maxUploadBytes caps contract uploads at 32 MiB.
const maxUploadBytes = 32 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Scan.WarningDays),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter wires the HTTP API over the app environment. Pipeline
// components left nil by missing credentials make their endpoints return
// 503 instead of failing at startup.
func newRouter(env *appEnv, defaultWarningDays int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/contracts", func(r chi.Router) {
		r.Post("/", handleUpload(env))
		r.Get("/", handleList(env))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGet(env))
			r.Delete("/", handleDelete(env))
			r.Post("/discover", handleDiscover(env))
			r.Get("/discoveries", handleDiscoveries(env))
		})
	})

	r.Get("/alerts/expiring", handleExpiring(env, defaultWarningDays))

	return r
}

func handleUpload(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if env.Extractor == nil {
			writeError(w, http.StatusServiceUnavailable, "extraction is not configured (missing anthropic key)")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload")
			return
		}

		rec, err := env.Extractor.Extract(r.Context(), model.RawDocument{
			Name: header.Filename,
			Data: data,
		})
		if err != nil {
			zap.L().Error("upload extraction failed",
				zap.String("file", header.Filename),
				zap.Error(err),
			)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		saved, err := env.Store.SaveContract(r.Context(), *rec)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save contract")
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func handleList(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		recs, err := env.Store.ListContracts(r.Context(), store.ContractFilter{
			Provider:      q.Get("provider"),
			RenewalStatus: model.RenewalStatus(q.Get("renewal_status")),
			EndingBy:      q.Get("ending_by"),
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list contracts")
			return
		}
		if recs == nil {
			recs = []model.ContractRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleGet(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := env.Store.GetContract(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "contract not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get contract")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDelete(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := env.Store.DeleteContract(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "contract not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "delete contract")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDiscover(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if env.Discoverer == nil {
			writeError(w, http.StatusServiceUnavailable, "discovery is not configured (missing anthropic or serpapi key)")
			return
		}

		var req struct {
			Requirement string `json:"requirement"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Requirement == "" {
			writeError(w, http.StatusBadRequest, "requirement is required")
			return
		}

		rec, err := env.Store.GetContract(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "contract not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get contract")
			return
		}

		report, err := env.Discoverer.Discover(r.Context(), *rec, req.Requirement)
		if err != nil {
			zap.L().Error("discovery failed",
				zap.String("contract_id", rec.ID),
				zap.Error(err),
			)
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		saved, err := env.Store.SaveDiscovery(r.Context(), rec.ID, req.Requirement, *report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save discovery")
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleDiscoveries(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := env.Store.ListDiscoveries(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list discoveries")
			return
		}
		if recs == nil {
			recs = []model.DiscoveryRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// handleExpiring classifies stored contracts against the warning window.
// Advisory generation stays in the scan command.
func handleExpiring(env *appEnv, defaultWarningDays int) http.HandlerFunc {
	type flaggedContract struct {
		ContractID string             `json:"contract_id"`
		Provider   string             `json:"provider"`
		Service    string             `json:"service"`
		EndDate    string             `json:"end_date"`
		Status     model.ExpiryStatus `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		windowDays := defaultWarningDays
		if v := r.URL.Query().Get("window_days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 365 {
				writeError(w, http.StatusBadRequest, "window_days must be between 1 and 365")
				return
			}
			windowDays = n
		}

		recs, err := env.Store.ListContracts(r.Context(), store.ContractFilter{Limit: 1000})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list contracts")
			return
		}

		classifier := expiry.New(nil, expiry.Config{WarningDays: windowDays})
		flagged := []flaggedContract{}
		for _, rec := range recs {
			status := classifier.Classify(rec)
			if status == model.ExpiryOK {
				continue
			}
			flagged = append(flagged, flaggedContract{
				ContractID: rec.ID,
				Provider:   rec.ProviderName(),
				Service:    rec.ServiceName(),
				EndDate:    rec.EndDate,
				Status:     status,
			})
		}
		writeJSON(w, http.StatusOK, flagged)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
