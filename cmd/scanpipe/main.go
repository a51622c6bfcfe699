// scanpipe runs the checkout capture pipeline as an HTTP service: codes
// come in over POST /v1/scan (and, when wired on the host, from the camera
// and USB scanner paths), the cart and sales log live in SQLite, and the
// status surface reports the live lane state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/tillworks/scanpipe/catalog"
	"github.com/tillworks/scanpipe/dbopen"
	"github.com/tillworks/scanpipe/feedback"
	"github.com/tillworks/scanpipe/saleslog"
	"github.com/tillworks/scanpipe/scan"
	"github.com/tillworks/scanpipe/stats"
)

func main() {
	cfgPath := "scanpipe.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var lvl slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Application DB: catalog + sales log share one file.
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(catalog.Schema),
		dbopen.WithSchema(saleslog.Schema),
	)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// Stats DB is separate to keep event batches off the sales write path.
	statsPath := cfg.StatsDBPath
	if statsPath == "" {
		statsPath = filepath.Join(filepath.Dir(cfg.DBPath), "scanpipe_stats.db")
	}
	statsDB, err := dbopen.Open(statsPath, dbopen.WithMkdirAll(), dbopen.WithSchema(stats.Schema))
	if err != nil {
		log.Fatalf("open stats db: %v", err)
	}
	defer statsDB.Close()

	store := catalog.NewStore(db)
	if err := seedCatalog(ctx, store, cfg.SeedProducts); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	sales := saleslog.NewStore(db)

	recorder := stats.NewRecorder(statsDB, 100, 5*time.Second, logger)
	defer recorder.Close()
	if cfg.StatsRetentionDays > 0 {
		if n, err := recorder.Cleanup(ctx, time.Duration(cfg.StatsRetentionDays)*24*time.Hour); err != nil {
			slog.Warn("stats cleanup", "error", err)
		} else if n > 0 {
			slog.Info("stats cleanup", "removed", n)
		}
	}

	// Cue routing: without till hardware attached, cues go to the log.
	router := feedback.NewRouter(logger)
	router.Register(feedback.SinkFunc(func(ctx context.Context, e feedback.Event) {
		tone := feedback.ToneFor(e.Kind)
		slog.Info("cue", "kind", e.Kind, "text", e.Text, "tone_hz", tone.FrequencyHz)
	}))

	opts := []scan.Option{
		scan.WithLogger(logger),
		scan.WithPersister(sales),
		scan.WithFeedback(router),
		scan.WithStats(recorder),
	}
	if cfg.CameraDir != "" {
		interval := time.Duration(cfg.FrameIntervalMS) * time.Millisecond
		opts = append(opts, scan.WithCamera(newImageDirDevice(cfg.CameraDir, interval)))
	}
	svc, err := scan.New(cfg.ScanConfig(), store, opts...)
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	go func() {
		if err := svc.Run(ctx); err != nil {
			slog.Error("pipeline", "error", err)
		}
	}()

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, svc.Status())
	})

	r.Get("/v1/cart", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, svc.Cart())
	})

	r.Post("/v1/scan", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Code   string `json:"code"`
			Source string `json:"source"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, 400, err)
			return
		}
		source := scan.SourceManual
		if body.Source != "" {
			source = scan.Source(body.Source)
		}
		err := svc.Submit(req.Context(), source, body.Code)
		switch {
		case err == nil:
			writeJSON(w, 200, svc.Cart())
		case errors.Is(err, scan.ErrEmptyCode):
			writeError(w, 400, err)
		case errors.Is(err, scan.ErrDuplicate):
			writeJSON(w, 409, map[string]string{"error": err.Error()})
		case errors.Is(err, catalog.ErrNotFound):
			writeError(w, 404, err)
		default:
			writeError(w, 500, err)
		}
	})

	r.Delete("/v1/cart/{ref}", func(w http.ResponseWriter, req *http.Request) {
		if !svc.RemoveLine(chi.URLParam(req, "ref")) {
			writeJSON(w, 404, map[string]string{"error": "no such line"})
			return
		}
		writeJSON(w, 200, svc.Cart())
	})

	r.Post("/v1/checkout", func(w http.ResponseWriter, req *http.Request) {
		sale, err := svc.Flush(req.Context())
		switch {
		case err == nil:
			writeJSON(w, 200, sale)
		case errors.Is(err, scan.ErrEmptyCart):
			writeError(w, 409, err)
		default:
			writeError(w, 500, err)
		}
	})

	r.Get("/v1/sales", func(w http.ResponseWriter, req *http.Request) {
		list, err := sales.ListRecent(req.Context(), 50)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, list)
	})

	r.Get("/v1/sales/{id}", func(w http.ResponseWriter, req *http.Request) {
		sale, err := sales.Get(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, saleslog.ErrNotFound) {
			writeError(w, 404, err)
			return
		}
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, sale)
	})

	r.Get("/v1/stats", func(w http.ResponseWriter, req *http.Request) {
		recorder.Flush()
		totals, err := recorder.Totals(req.Context(), time.Time{})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, totals)
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// seedCatalog upserts the configured products so a fresh till rings up
// out of the box.
func seedCatalog(ctx context.Context, store *catalog.Store, seeds []SeedProduct) error {
	for _, s := range seeds {
		p := &catalog.Product{
			ID:        s.ID,
			Name:      s.Name,
			Barcode:   s.Barcode,
			SKU:       s.SKU,
			UnitPrice: s.UnitPrice,
			Active:    true,
		}
		if err := store.Put(ctx, p); err != nil {
			return err
		}
	}
	if len(seeds) > 0 {
		slog.Info("catalog seeded", "products", len(seeds))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
