package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

	"github.com/sells-group/hearing-sync/internal/model"
	"github.com/sells-group/hearing-sync/internal/monitoring"
	"github.com/sells-group/hearing-sync/internal/store"
	"github.com/sells-group/hearing-sync/internal/syncer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only sync status API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSync(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Breakers, env.Orch)
		handler := newRouter(env.Orch, env.Store, collector, cfg.Monitoring.LookbackWindowHours, cfg.Server.CORSOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// statusProvider is the orchestrator surface the status API reads.
type statusProvider interface {
	GetSyncStatus(ctx context.Context) (*syncer.Status, error)
}

// hearingReader loads single hearings.
type hearingReader interface {
	Get(ctx context.Context, id int64) (*model.HearingRecord, error)
}

// newRouter builds the status API. collector may be nil.
func newRouter(status statusProvider, hearings hearingReader, collector *monitoring.Collector, lookbackHours int, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sync/status", func(w http.ResponseWriter, req *http.Request) {
			st, err := status.GetSyncStatus(req.Context())
			if err != nil {
				respondError(w, req, http.StatusInternalServerError, err)
				return
			}
			respondJSON(w, http.StatusOK, st)
		})

		r.Get("/hearings/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil || id <= 0 {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hearing id"})
				return
			}
			h, err := hearings.Get(req.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				respondJSON(w, http.StatusNotFound, map[string]string{"error": "hearing not found"})
				return
			}
			if err != nil {
				respondError(w, req, http.StatusInternalServerError, err)
				return
			}
			respondJSON(w, http.StatusOK, h)
		})

		if collector != nil {
			r.Get("/monitoring/snapshot", func(w http.ResponseWriter, req *http.Request) {
				snap, err := collector.Collect(req.Context(), lookbackHours)
				if err != nil {
					respondError(w, req, http.StatusInternalServerError, err)
					return
				}
				respondJSON(w, http.StatusOK, snap)
			})
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, code int, err error) {
	zap.L().Error("status api error",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	respondJSON(w, code, map[string]string{"error": http.StatusText(code)})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
