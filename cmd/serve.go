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
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/model"
	"github.com/sells-group/trip-cli/internal/pipeline"
	"github.com/sells-group/trip-cli/internal/resilience"
	"github.com/sells-group/trip-cli/internal/store"
)

var servePort int

const (
	// maxRequestBody caps the size of a planning request body.
	maxRequestBody = 64 << 10

	// Planning requests beyond the concurrency cap wait in a backlog of this
	// size for at most planBacklogTimeout before getting a 429.
	planBacklog        = 64
	planBacklogTimeout = 2 * time.Minute
)

// planner runs one planning request.
type planner interface {
	Process(ctx context.Context, text string) *pipeline.Result
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP planning API",
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
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Pipeline, env.Store, env.Breakers, cfg.Server.AllowedOrigins, cfg.Batch.MaxConcurrentRequests),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the HTTP API. p or st may be nil; the affected routes
// then answer 503. br, when set, reports price lookup circuits on /health.
// concurrency caps in-flight planning requests.
func buildRouter(p planner, st store.Store, br *resilience.Breakers, origins []string, concurrency int) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if concurrency < 1 {
		concurrency = 1
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth(br))

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.ThrottleBacklog(concurrency, planBacklog, planBacklogTimeout)).Post("/itineraries", handlePlan(p))
		r.Get("/runs", handleListRuns(st))
		r.Get("/runs/{id}", handleGetRun(st))
		r.Get("/runs/{id}/phases", handleListPhases(st))
	})

	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

func handleHealth(br *resilience.Breakers) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		if br != nil {
			resp.Circuits = br.States()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type planRequestBody struct {
	Request string `json:"request"`
}

type planResponse struct {
	RunID   string        `json:"run_id,omitempty"`
	Payload model.Payload `json:"payload"`
}

// handlePlan plans synchronously. Error payloads are still a 200: the
// request was processed and the payload carries the outcome.
func handlePlan(p planner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			writeError(w, http.StatusServiceUnavailable, "planner not configured")
			return
		}

		var body planRequestBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Request == "" {
			writeError(w, http.StatusBadRequest, "request is required")
			return
		}

		res := p.Process(r.Context(), body.Request)
		writeJSON(w, http.StatusOK, planResponse{RunID: res.RunID, Payload: res.Payload})
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}

		filter := store.RunFilter{Status: model.Status(r.URL.Query().Get("status"))}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			filter.Limit = n
		}

		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}

		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListPhases(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}

		phases, err := st.ListPhases(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			zap.L().Error("list phases failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list phases failed")
			return
		}
		if phases == nil {
			phases = []model.RunPhase{}
		}
		writeJSON(w, http.StatusOK, phases)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
