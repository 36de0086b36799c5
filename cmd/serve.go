package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/resolve"
	"github.com/smartcompare/compare-cli/internal/store"
)

var servePort int

// resolver is the slice of the pipeline the HTTP handlers use.
type resolver interface {
	Compare(ctx context.Context, rawQuery string, opts resolve.Options) (*model.ComparisonResult, error)
	ResolveProduct(ctx context.Context, q model.ProductQuery, opts resolve.Options) (*model.ValidatedProductRecord, model.Usage, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the comparison API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Pipeline, env.Store, cfg.Resolve.Region),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API routes. st may be nil; the searches endpoint then
// reports the store as unavailable.
func newRouter(rv resolver, st store.Store, defaultRegion string) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/compare", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Query   string `json:"query"`
			Region  string `json:"region"`
			NoCache bool   `json:"no_cache"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if body.Region == "" {
			body.Region = defaultRegion
		}

		result, err := rv.Compare(req.Context(), body.Query, resolve.Options{
			Region:      body.Region,
			BypassCache: body.NoCache,
		})
		if err != nil {
			if eris.Is(err, resolve.ErrNotAComparison) {
				writeError(w, http.StatusUnprocessableEntity, "request must name two products")
				return
			}
			zap.L().Error("compare request failed",
				zap.String("query", body.Query),
				zap.String("request_id", requestIDFrom(req)),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "comparison failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	r.Post("/v1/resolve", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Name     string `json:"name"`
			Brand    string `json:"brand"`
			Variant  string `json:"variant"`
			Category string `json:"category"`
			Region   string `json:"region"`
			NoCache  bool   `json:"no_cache"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		if body.Region == "" {
			body.Region = defaultRegion
		}

		q := model.ProductQuery{
			Name:     body.Name,
			Brand:    body.Brand,
			Variant:  body.Variant,
			Category: body.Category,
		}
		rec, usage, err := rv.ResolveProduct(req.Context(), q, resolve.Options{
			Region:      body.Region,
			BypassCache: body.NoCache,
		})
		if err != nil {
			zap.L().Error("resolve request failed",
				zap.String("product", q.FullName()),
				zap.String("request_id", requestIDFrom(req)),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "resolution failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"product": rec,
			"usage":   usage,
		})
	})

	r.Get("/v1/searches", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "search history requires a store")
			return
		}
		limit := 20
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}
		logs, err := st.RecentSearches(req.Context(), limit)
		if err != nil {
			zap.L().Error("search history query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "search history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, logs)
	})

	return r
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID tags every request with a UUID, echoed in the response header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(req *http.Request) string {
	if id, ok := req.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
