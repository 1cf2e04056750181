package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/graintrack/weighbridge-cli/internal/ingest"
	"github.com/graintrack/weighbridge-cli/internal/model"
	"github.com/graintrack/weighbridge-cli/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingestion API",
	Long:  "Exposes ingestion, record queries, and the mix registry over HTTP for dashboards and automated feeds.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close()

		ing, err := newIngestor(st)
		if err != nil {
			return eris.Wrap(err, "create ingestor")
		}

		addr := ":" + strconv.Itoa(cfg.Server.Port)
		zap.L().Info("http server listening", zap.String("addr", addr))

		srv := &http.Server{
			Addr:    addr,
			Handler: newRouter(st, ing, cfg.Server.AllowedOrigins),
		}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "http server")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type ingestRequest struct {
	CompanyID string           `json:"company_id,omitempty"`
	Rows      []model.WeighRow `json:"rows"`
}

func newRouter(st store.Store, ing *ingest.Ingestor, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/ingest", func(w http.ResponseWriter, req *http.Request) {
		var body ingestRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request"))
			return
		}
		if body.CompanyID != "" {
			for i := range body.Rows {
				if body.Rows[i].CompanyID == "" {
					body.Rows[i].CompanyID = body.CompanyID
				}
			}
		}
		result, err := ing.IngestBatch(req.Context(), body.Rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/records", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.RecordFilter{
			CompanyID: q.Get("company_id"),
			DateKey:   q.Get("date_key"),
			Limit:     queryInt(q.Get("limit")),
			Offset:    queryInt(q.Get("offset")),
		}
		if t := q.Get("type"); t != "" {
			wt, ok := model.ParseWeighType(t)
			if !ok {
				writeError(w, http.StatusBadRequest, eris.Errorf("invalid weigh type %q", t))
				return
			}
			filter.WeighType = wt
		}
		recs, err := st.ListRecords(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	})

	r.Get("/api/records/days", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		days, err := st.CountByDay(req.Context(), q.Get("company_id"), queryInt(q.Get("limit")))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, days)
	})

	r.Post("/api/mix", func(w http.ResponseWriter, req *http.Request) {
		var entry model.MixEntry
		if err := json.NewDecoder(req.Body).Decode(&entry); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "decode request"))
			return
		}
		saved, err := st.UpsertMix(req.Context(), entry)
		if err != nil {
			if eris.Is(err, store.ErrMixConflict) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	})

	r.Get("/api/mix", func(w http.ResponseWriter, req *http.Request) {
		entries, err := st.ListMix(req.Context(), req.URL.Query().Get("company_id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/api/mix/resolve", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		entry, err := st.ResolveMix(req.Context(),
			q.Get("company_id"), q.Get("product_code"), q.Get("product_name"), q.Get("site_name"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if entry == nil {
			writeError(w, http.StatusNotFound, eris.New("no matching mix entry"))
			return
		}
		writeJSON(w, http.StatusOK, entry)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
