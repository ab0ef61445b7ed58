package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor headless and export Prometheus metrics",
	Long: `Run sampling cycles on the configured interval and serve:

  /metrics          Prometheus metrics for the last cycle
  /api/connections  records of the last cycle (JSON)
  /api/history      rolling connection counts (JSON)
  /api/refresh      POST to request an immediate cycle
  /healthz          liveness`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address (default from config, :9137)")
	serveCmd.Flags().StringVar(&filterFlag, "filter", "", "Only count connections whose local or remote port contains this text")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	filter := cfg.Filter
	if cmd.Flags().Changed("filter") {
		filter = filterFlag
	}

	mon, err := newMonitor(cfg, filter, logger)
	if err != nil {
		return err
	}
	sched := monitor.NewScheduler(mon, cfg.RefreshInterval,
		monitor.WithSchedulerLogger(logger),
		monitor.WithOnCycle(func(c monitor.Cycle) {
			if c.Err == nil {
				logger.Info("cycle", "seq", c.Seq, "count", c.Count(), "suspicious", c.Suspicious, "duration", c.Duration)
			}
		}),
	)
	session := monitor.NewSession(mon, sched)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		monitor.NewCollector(mon),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newServeMux(session, registry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("serving", "addr", cfg.MetricsAddr, "source", cfg.Source, "interval", cfg.RefreshInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("serve stopped", "err", err)
		return err
	}
	logger.Info("serve stopped")
	return nil
}

// newServeMux builds the HTTP surface. Manual refreshes are rate limited to
// one per refresh interval on top of the scheduler's own coalescing.
func newServeMux(s *monitor.Session, registry *prometheus.Registry, logger *slog.Logger) *http.ServeMux {
	limiter := rate.NewLimiter(rate.Every(s.Interval()), 1)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /api/connections", func(w http.ResponseWriter, r *http.Request) {
		records := s.CurrentRecords()
		if r.URL.Query().Get("suspicious") == "true" {
			records = onlySuspicious(records)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, toJSONRecords(records)); err != nil {
			logger.Error("encode connections", "err", err)
		}
	})

	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		type historyOutput struct {
			Capacity int   `json:"capacity"`
			Counts   []int `json:"counts"`
			Min      int   `json:"min"`
			Max      int   `json:"max"`
			Last     int   `json:"last"`
		}
		stats := s.HistoryStats()
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, historyOutput{
			Capacity: s.HistoryCapacity(),
			Counts:   s.CurrentHistory(),
			Min:      stats.Min,
			Max:      stats.Max,
			Last:     stats.Last,
		}); err != nil {
			logger.Error("encode history", "err", err)
		}
	})

	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "refresh rate limited", http.StatusTooManyRequests)
			return
		}
		queued := s.RefreshNow()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := writeJSON(w, map[string]bool{"queued": queued}); err != nil {
			logger.Error("encode refresh", "err", err)
		}
	})

	return mux
}
