package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lu-zhengda/tcpmon/internal/config"
	"github.com/lu-zhengda/tcpmon/internal/monitor"
	"github.com/lu-zhengda/tcpmon/internal/tui"
	"github.com/spf13/cobra"
)

var (
	watchInterval time.Duration
	watchAlert    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Auto-refresh connection table in terminal",
	Long: `Continuously display TCP connections with periodic refresh and a
trend line of the connection count.

With --alert, nothing is drawn until a connection on a suspicious port shows
up; tcpmon then prints it and exits with code 1. Useful for security
monitoring.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Refresh interval (default from config, 2s)")
	watchCmd.Flags().StringVar(&filterFlag, "filter", "", "Only show connections whose local or remote port contains this text")
	watchCmd.Flags().BoolVar(&watchAlert, "alert", false, "Alert and exit on the first suspicious connection")
}

// alertExitError is returned when --alert detects suspicious connections.
// The CLI should exit with code 1.
type alertExitError struct {
	count int
}

func (e *alertExitError) Error() string {
	return fmt.Sprintf("alert: %d suspicious connection(s) detected", e.count)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		if err := applyInterval(cfg, watchInterval); err != nil {
			return err
		}
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Set from the cycle hook, which runs inside sched.Run below.
	var alertErr error
	onCycle := func(c monitor.Cycle) {
		if err := renderWatch(os.Stdout, c, mon.CurrentHistory(), mon.HistoryCapacity()); err != nil {
			logger.Error("render cycle", "seq", c.Seq, "err", err)
		}
	}
	if watchAlert {
		if !jsonOutput {
			fmt.Printf("Monitoring for connections on %d suspicious port(s)... (interval: %s)\n",
				mon.Watchlist().Len(), cfg.RefreshInterval)
		}
		onCycle = func(c monitor.Cycle) {
			hits := onlySuspicious(c.Records)
			if len(hits) == 0 {
				return
			}
			alertErr = printAlert(os.Stdout, hits)
			cancel()
		}
	}

	sched := monitor.NewScheduler(mon, cfg.RefreshInterval,
		monitor.WithSchedulerLogger(logger),
		monitor.WithOnCycle(onCycle),
	)
	if err := sched.Run(ctx); err != nil {
		return err
	}

	if alertErr != nil {
		return alertErr
	}
	if !jsonOutput {
		fmt.Println("\nStopped watching.")
	}
	return nil
}

// applyInterval overrides the refresh interval. A cycle timeout that no
// longer fits inside the new interval is cut to three quarters of it.
func applyInterval(cfg *config.Config, d time.Duration) error {
	cfg.RefreshInterval = d
	if d > 0 && cfg.CycleTimeout >= d {
		cfg.CycleTimeout = d * 3 / 4
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid --interval: %w", err)
	}
	return nil
}

func printAlert(w io.Writer, records []monitor.Record) error {
	if jsonOutput {
		type alertOutput struct {
			Alert   string       `json:"alert"`
			Count   int          `json:"count"`
			Entries []jsonRecord `json:"entries"`
		}
		out := alertOutput{
			Alert:   "suspicious_connections",
			Count:   len(records),
			Entries: toJSONRecords(records),
		}
		if err := writeJSON(w, out); err != nil {
			return fmt.Errorf("failed to encode alert JSON: %w", err)
		}
		return &alertExitError{count: len(records)}
	}

	fmt.Fprintf(w, "\nALERT: %d suspicious connection(s) detected!\n\n", len(records))
	if err := printRecordsTable(w, records); err != nil {
		return fmt.Errorf("failed to print alert: %w", err)
	}
	return &alertExitError{count: len(records)}
}

func renderWatch(w io.Writer, c monitor.Cycle, history []int, capacity int) error {
	if jsonOutput {
		type watchOutput struct {
			Seq        uint64       `json:"seq"`
			At         time.Time    `json:"at"`
			Filter     string       `json:"filter,omitempty"`
			Count      int          `json:"count"`
			Suspicious int          `json:"suspicious"`
			Error      string       `json:"error,omitempty"`
			History    []int        `json:"history"`
			Records    []jsonRecord `json:"records"`
		}
		out := watchOutput{
			Seq:        c.Seq,
			At:         c.At,
			Filter:     c.Filter,
			Count:      c.Count(),
			Suspicious: c.Suspicious,
			History:    history,
			Records:    toJSONRecords(c.Records),
		}
		if c.Err != nil {
			out.Error = c.Err.Error()
		}
		// One object per line.
		if err := json.NewEncoder(w).Encode(out); err != nil {
			return fmt.Errorf("failed to encode cycle JSON: %w", err)
		}
		return nil
	}

	// Clear screen.
	fmt.Fprint(w, "\033[2J\033[H")

	fmt.Fprintf(w, "tcpmon watch | Connections: %d  Suspicious: %d | %s | Ctrl+C to stop\n",
		c.Count(), c.Suspicious, c.At.Format("15:04:05"))
	fmt.Fprintf(w, "Trend: %s  (%d/%d cycles)\n\n", tui.Sparkline(history, capacity), len(history), capacity)

	if c.Err != nil {
		fmt.Fprintf(w, "Sampling failed: %v\n", c.Err)
		return nil
	}
	if c.Count() == 0 {
		fmt.Fprintln(w, "No connections found matching filter.")
		return nil
	}

	if err := printRecordsTable(w, c.Records); err != nil {
		return err
	}

	if c.Filter != "" {
		fmt.Fprintf(w, "\nFilter: port contains %q\n", c.Filter)
	}
	return nil
}
